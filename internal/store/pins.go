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

const pinColumns = `id, collection_id, url, title, og_image_url, site_name,
	summary_text, summary_created_at, note, created_at`

// ListPins returns every local pin ordered by creation time.
func (s *Store) ListPins(ctx context.Context) ([]*schema.Pin, error) {
	return s.queryPins(ctx, `SELECT `+pinColumns+` FROM pins ORDER BY created_at, id`)
}

// ListPinsByCollection returns the pins assigned to collectionID.
func (s *Store) ListPinsByCollection(ctx context.Context, collectionID string) ([]*schema.Pin, error) {
	return s.queryPins(ctx,
		`SELECT `+pinColumns+` FROM pins WHERE collection_id = ? ORDER BY created_at, id`,
		collectionID)
}

// ListPinsSince returns pins created at or after since.
func (s *Store) ListPinsSince(ctx context.Context, since time.Time) ([]*schema.Pin, error) {
	return s.queryPins(ctx,
		`SELECT `+pinColumns+` FROM pins WHERE created_at >= ? ORDER BY created_at, id`,
		formatTime(since))
}

// FindPinByURL returns the oldest pin saved for url, or ErrNotFound.
func (s *Store) FindPinByURL(ctx context.Context, url string) (*schema.Pin, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+pinColumns+` FROM pins WHERE url = ? ORDER BY created_at, id LIMIT 1`, url)
	p, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pin for %s: %w", url, ErrNotFound)
	}
	return p, err
}

// GetPin returns the pin with the given id or ErrNotFound.
func (s *Store) GetPin(ctx context.Context, id string) (*schema.Pin, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+pinColumns+` FROM pins WHERE id = ?`, id)
	p, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	return p, err
}

// InsertPin stores a new pin, assigning an id and defaults when missing.
// An existing id (or, under schema revision 1, an existing url) fails with
// ErrDuplicate.
func (s *Store) InsertPin(ctx context.Context, p *schema.Pin) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pin: %w", err)
	}

	var summaryText, summaryAt sql.NullString
	if p.Summary != nil {
		summaryText = sql.NullString{String: p.Summary.Text, Valid: true}
		summaryAt = timeToNullString(&p.Summary.CreatedAt)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pins (`+pinColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.CollectionID, p.Page.URL, p.Page.Title, p.Page.OGImageURL, p.Page.SiteName,
		summaryText, summaryAt, p.Note, formatTime(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("pin %s: %w", p.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert pin %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePinNote replaces the free-form note of a pin. Local only.
func (s *Store) UpdatePinNote(ctx context.Context, id, note string) error {
	return s.execOne(ctx, id, `UPDATE pins SET note = ? WHERE id = ?`, note, id)
}

// SetPinSummary attaches an AI summary to a pin. Local only.
func (s *Store) SetPinSummary(ctx context.Context, id string, sum *schema.Summary) error {
	if sum == nil {
		return s.execOne(ctx, id,
			`UPDATE pins SET summary_text = NULL, summary_created_at = NULL WHERE id = ?`, id)
	}
	at := sum.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.execOne(ctx, id,
		`UPDATE pins SET summary_text = ?, summary_created_at = ? WHERE id = ?`,
		sum.Text, formatTime(at), id)
}

// SetPinCollection moves a pin to another collection. Local only.
func (s *Store) SetPinCollection(ctx context.Context, id, collectionID string) error {
	return s.execOne(ctx, id, `UPDATE pins SET collection_id = ? WHERE id = ?`, collectionID, id)
}

// DeletePin removes a pin locally. Local only.
func (s *Store) DeletePin(ctx context.Context, id string) error {
	return s.execOne(ctx, id, `DELETE FROM pins WHERE id = ?`, id)
}

func (s *Store) execOne(ctx context.Context, id, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update pin %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pin %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryPins(ctx context.Context, query string, args ...any) ([]*schema.Pin, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	defer rows.Close()

	var out []*schema.Pin
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pins: %w", err)
	}
	return out, nil
}

func scanPin(r rowScanner) (*schema.Pin, error) {
	var (
		p                      schema.Pin
		summaryText, summaryAt sql.NullString
		createdAt              string
	)
	err := r.Scan(&p.ID, &p.CollectionID, &p.Page.URL, &p.Page.Title, &p.Page.OGImageURL,
		&p.Page.SiteName, &summaryText, &summaryAt, &p.Note, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pin: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	if summaryText.Valid {
		p.Summary = &schema.Summary{Text: summaryText.String}
		if at := nullStringToTime(summaryAt); at != nil {
			p.Summary.CreatedAt = *at
		}
	}
	return &p, nil
}
