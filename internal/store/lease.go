package store

import (
	"context"
	"fmt"
	"time"
)

const leaseKeyPrefix = "lease:"

// ClaimLease takes the named lease for owner until now+ttl, or extends it when
// owner already holds it. It reports false when another owner holds a lease
// that has not expired.
//
// The claim is a single upsert, so it is atomic across every process that
// opens the same database file.
func (s *Store) ClaimLease(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	if owner == "" {
		return false, fmt.Errorf("lease owner cannot be empty")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive")
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, json_object('owner', ?, 'expires', ?))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		WHERE json_extract(metadata.value, '$.owner') = ?
		   OR json_extract(metadata.value, '$.expires') <= ?
	`, leaseKeyPrefix+name, owner, now.Add(ttl).UnixMilli(), owner, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to claim lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim lease %s: %w", name, err)
	}
	return n == 1, nil
}

// ReleaseLease drops the named lease if owner holds it.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM metadata WHERE key = ? AND json_extract(value, '$.owner') = ?`,
		leaseKeyPrefix+name, owner)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
