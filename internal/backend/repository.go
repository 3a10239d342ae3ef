package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pinsync/pinsync/internal/schema"
)

var (
	// ErrNotFound is returned when the owner has no record with the id.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an id belongs to another owner.
	ErrConflict = errors.New("conflict")
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const backendSchema = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_collections_owner ON collections(owner_id);

CREATE TABLE IF NOT EXISTS pins (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	collection_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pins_owner_collection ON pins(owner_id, collection_id);
CREATE INDEX IF NOT EXISTS idx_pins_owner_url ON pins(owner_id, url);
`

// Repository stores per-owner collections and pins in SQLite or PostgreSQL.
type Repository struct {
	db      *sql.DB
	dialect dialect
}

// OpenRepository opens the database named by dsn. postgres:// and
// postgresql:// DSNs use lib/pq; anything else is a SQLite path, optionally
// prefixed with sqlite://.
func OpenRepository(ctx context.Context, dsn string) (*Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		d = dialectPostgres
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(2)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	default:
		d = dialectSQLite
		path := strings.TrimPrefix(dsn, "sqlite://")
		db, err = sql.Open("sqlite3", "file:"+path)
		if err == nil {
			// A single writer keeps :memory: databases coherent and avoids
			// SQLITE_BUSY on files.
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &Repository{db: db, dialect: d}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(backendSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.rebind(q), args...)
}

func (r *Repository) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.rebind(q), args...)
}

func (r *Repository) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.rebind(q), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) || errors.Is(err, sqlite3.CONSTRAINT_UNIQUE)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- collections ---

const collectionColumns = `id, name, description, color, created_at`

// ListCollections returns owner's collections, oldest first.
func (r *Repository) ListCollections(ctx context.Context, owner string) ([]schema.RemoteCollection, error) {
	rows, err := r.query(ctx, `SELECT `+collectionColumns+` FROM collections
		WHERE owner_id = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	out := []schema.RemoteCollection{}
	for rows.Next() {
		c, err := scanRemoteCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetCollection returns one of owner's collections.
func (r *Repository) GetCollection(ctx context.Context, owner, id string) (*schema.RemoteCollection, error) {
	row := r.queryRow(ctx, `SELECT `+collectionColumns+` FROM collections
		WHERE owner_id = ? AND id = ?`, owner, id)
	c, err := scanRemoteCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// CreateCollection inserts a collection. When in.ID is already owned by
// owner the stored record is returned with created=false.
func (r *Repository) CreateCollection(ctx context.Context, owner string, in schema.CollectionInput) (c *schema.RemoteCollection, created bool, err error) {
	if in.ID == "" {
		in.ID = newID()
	} else if existing, err := r.GetCollection(ctx, owner, in.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	rc := &schema.RemoteCollection{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = r.exec(ctx, `INSERT INTO collections (id, owner_id, name, description, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rc.ID, owner, rc.Name, rc.Description, rc.Color, formatTime(rc.CreatedAt))
	if isUniqueViolation(err) {
		return nil, false, fmt.Errorf("%w: collection id %s is taken", ErrConflict, rc.ID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert collection: %w", err)
	}
	return rc, true, nil
}

// CollectionPatch lists the fields PATCH /collections/{id} may change.
type CollectionPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
}

// UpdateCollection applies p and returns the updated record.
func (r *Repository) UpdateCollection(ctx context.Context, owner, id string, p CollectionPatch) (*schema.RemoteCollection, error) {
	c, err := r.GetCollection(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if _, err := r.exec(ctx, `UPDATE collections SET name = ?, description = ?, color = ?
		WHERE owner_id = ? AND id = ?`, c.Name, c.Description, c.Color, owner, id); err != nil {
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}
	return c, nil
}

// DeleteCollection removes a collection and unassigns its pins.
func (r *Repository) DeleteCollection(ctx context.Context, owner, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM collections WHERE owner_id = ? AND id = ?`), owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE pins SET collection_id = '' WHERE owner_id = ? AND collection_id = ?`), owner, id); err != nil {
		return fmt.Errorf("failed to unassign pins: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemoteCollection(s rowScanner) (*schema.RemoteCollection, error) {
	var c schema.RemoteCollection
	var createdAt string
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// --- pins ---

const pinColumns = `id, url, title, description, image_url, collection_id, created_at`

// ListPins returns owner's pins, oldest first. A non-empty collectionID
// narrows the list to that collection.
func (r *Repository) ListPins(ctx context.Context, owner, collectionID string) ([]schema.RemotePin, error) {
	q := `SELECT ` + pinColumns + ` FROM pins WHERE owner_id = ?`
	args := []any{owner}
	if collectionID != "" {
		q += ` AND collection_id = ?`
		args = append(args, collectionID)
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	defer rows.Close()

	out := []schema.RemotePin{}
	for rows.Next() {
		p, err := scanRemotePin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPin returns one of owner's pins.
func (r *Repository) GetPin(ctx context.Context, owner, id string) (*schema.RemotePin, error) {
	p, err := scanRemotePin(r.queryRow(ctx, `SELECT `+pinColumns+` FROM pins WHERE owner_id = ? AND id = ?`, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindPinByURL returns owner's oldest pin for url.
func (r *Repository) FindPinByURL(ctx context.Context, owner, url string) (*schema.RemotePin, error) {
	p, err := scanRemotePin(r.queryRow(ctx, `SELECT `+pinColumns+` FROM pins
		WHERE owner_id = ? AND url = ? ORDER BY created_at, id LIMIT 1`, owner, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// CreatePin inserts a pin. When in.ID is already owned by owner the stored
// record is returned with created=false. Without an id, a pin whose URL the
// owner already has is rejected with ErrConflict.
func (r *Repository) CreatePin(ctx context.Context, owner string, in schema.PinInput) (p *schema.RemotePin, created bool, err error) {
	if in.ID == "" {
		if _, err := r.FindPinByURL(ctx, owner, in.URL); err == nil {
			return nil, false, fmt.Errorf("%w: url already pinned", ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		in.ID = newID()
	} else if existing, err := r.GetPin(ctx, owner, in.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	rp := &schema.RemotePin{
		ID:           in.ID,
		URL:          in.URL,
		Title:        in.Title,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		CollectionID: in.CollectionID,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = r.exec(ctx, `INSERT INTO pins (id, owner_id, collection_id, url, title, description, image_url, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rp.ID, owner, rp.CollectionID, rp.URL, rp.Title, rp.Description, rp.ImageURL,
		strings.Join(in.Tags, ","), formatTime(rp.CreatedAt))
	if isUniqueViolation(err) {
		return nil, false, fmt.Errorf("%w: pin id %s is taken", ErrConflict, rp.ID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert pin: %w", err)
	}
	return rp, true, nil
}

// PinPatch lists the fields PATCH /pins/{id} may change.
type PinPatch struct {
	Title        *string `json:"title" validate:"omitempty,max=1000"`
	Description  *string `json:"description"`
	ImageURL     *string `json:"imageUrl" validate:"omitempty,url"`
	CollectionID *string `json:"collectionId" validate:"omitempty,max=64"`
}

// UpdatePin applies p and returns the updated record.
func (r *Repository) UpdatePin(ctx context.Context, owner, id string, p PinPatch) (*schema.RemotePin, error) {
	pin, err := r.GetPin(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		pin.Title = *p.Title
	}
	if p.Description != nil {
		pin.Description = *p.Description
	}
	if p.ImageURL != nil {
		pin.ImageURL = *p.ImageURL
	}
	if p.CollectionID != nil {
		pin.CollectionID = *p.CollectionID
	}
	if _, err := r.exec(ctx, `UPDATE pins SET title = ?, description = ?, image_url = ?, collection_id = ?
		WHERE owner_id = ? AND id = ?`,
		pin.Title, pin.Description, pin.ImageURL, pin.CollectionID, owner, id); err != nil {
		return nil, fmt.Errorf("failed to update pin: %w", err)
	}
	return pin, nil
}

// DeletePin removes a pin.
func (r *Repository) DeletePin(ctx context.Context, owner, id string) error {
	res, err := r.exec(ctx, `DELETE FROM pins WHERE owner_id = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRemotePin(s rowScanner) (*schema.RemotePin, error) {
	var p schema.RemotePin
	var createdAt string
	if err := s.Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.ImageURL, &p.CollectionID, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
