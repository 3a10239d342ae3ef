package sync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyncDisabled is returned when settings.enabled is false.
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrSyncInProgress is returned when another pass is already running.
	// No work is done for the rejected call.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when the connectivity check fails.
	ErrOffline = errors.New("device is offline")
)

// PassError is returned by Engine.Sync when any phase or record failed. It
// unwraps to every underlying error, so errors.Is(err, remote.ErrAuth) works.
type PassError struct {
	Report *Report
	Errs   []error
}

func (e *PassError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d sync errors: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *PassError) Unwrap() []error {
	return e.Errs
}
