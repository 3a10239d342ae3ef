package auth

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/pinsync/pinsync/internal/remote"
)

// Refresher obtains a new bearer token.
type Refresher interface {
	Refresh(ctx context.Context) (string, bool, error)
}

// WithAuthRetry runs fn and, if it fails with remote.ErrAuth, refreshes the
// token once and runs fn one more time. Any other error is returned as is.
// This is not an offline back-off: nothing but an auth failure is retried.
func WithAuthRetry[T any](ctx context.Context, r Refresher, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		if attempt > 0 {
			_, ok, err := r.Refresh(ctx)
			if err != nil {
				return zero, backoff.Permanent(fmt.Errorf("%w (refresh failed: %v)", remote.ErrAuth, err))
			}
			if !ok {
				return zero, backoff.Permanent(remote.ErrAuth)
			}
		}
		attempt++

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if remote.IsAuth(err) {
			return zero, err
		}
		return zero, backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	return backoff.RetryWithData(op, policy)
}
