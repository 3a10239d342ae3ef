package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SchemaVersion is the current revision of the local schema.
//
// Revision 1 enforced UNIQUE(url) on pins, which made pulling two remote pins
// for the same URL fail. Revision 2 drops that constraint and keeps a plain
// index for URL lookups.
const SchemaVersion = 2

const metadataTable = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	goal TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);`

const pinsTableV2 = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	og_image_url TEXT NOT NULL DEFAULT '',
	site_name TEXT NOT NULL DEFAULT '',
	summary_text TEXT,
	summary_created_at TEXT,
	note TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);`

const pinsIndexesV2 = `
CREATE INDEX IF NOT EXISTS idx_pins_collection ON pins(collection_id);
CREATE INDEX IF NOT EXISTS idx_pins_url ON pins(url);
`

// InitSchema creates the schema, or upgrades a revision 1 database.
// It is idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, metadataTable); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		for _, stmt := range []string{collectionsTable, fmt.Sprintf(pinsTableV2, "pins"), pinsIndexesV2} {
			if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}
		return s.SetMetadata(ctx, keySchemaVersion, strconv.Itoa(SchemaVersion))
	case version == 1:
		return s.upgradeToV2(ctx)
	case version == SchemaVersion:
		return nil
	default:
		return fmt.Errorf("database schema revision %d is newer than supported revision %d", version, SchemaVersion)
	}
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	raw, err := s.GetMetadata(ctx, keySchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema revision %q: %w", raw, err)
	}
	return v, nil
}

// upgradeToV2 rebuilds the pins table without the url uniqueness constraint.
func (s *Store) upgradeToV2(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []string{
		fmt.Sprintf(pinsTableV2, "pins_v2"),
		`INSERT INTO pins_v2 (` + pinColumns + `) SELECT ` + pinColumns + ` FROM pins`,
		`DROP TABLE pins`,
		`ALTER TABLE pins_v2 RENAME TO pins`,
		pinsIndexesV2,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			return fmt.Errorf("schema upgrade to revision 2 failed: %w", err)
		}
	}

	if err := setMetadataTx(ctx, tx, keySchemaVersion, strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema upgrade: %w", err)
	}
	return nil
}

func setMetadataTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}
