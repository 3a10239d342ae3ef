package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pinsync/pinsync/internal/schema"
)

// ListCollections returns every local collection ordered by creation time.
func (s *Store) ListCollections(ctx context.Context) ([]*schema.Collection, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, goal, color, created_at
		FROM collections
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []*schema.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return out, nil
}

// GetCollection returns the collection with the given id or ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, id string) (*schema.Collection, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, goal, color, created_at
		FROM collections WHERE id = ?
	`, id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	return c, err
}

// InsertCollection stores a new collection. An empty id is replaced with a
// fresh UUID and a zero CreatedAt with the current time; both are written
// back to c. An existing id fails with ErrDuplicate.
func (s *Store) InsertCollection(ctx context.Context, c *schema.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid collection: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO collections (id, name, goal, color, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Goal, c.Color, formatTime(c.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("collection %s: %w", c.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert collection %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCollection removes a collection locally. Its pins are kept and become
// unassigned. The deletion is never propagated to the remote.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pins SET collection_id = '' WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("failed to unassign pins of %s: %w", id, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(r rowScanner) (*schema.Collection, error) {
	var (
		c         schema.Collection
		createdAt string
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Goal, &c.Color, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}
