package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pinsync/pinsync/internal/schema"
)

// Well-known metadata keys.
const (
	keySchemaVersion = "schema_version"
	KeySyncSettings  = "sync_settings"
	KeySyncStatus    = "sync_status"
	KeyAuthToken     = "auth_token"
)

// GetMetadata returns the value stored under key or ErrNotFound.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// DeleteMetadata removes key. Deleting a missing key is not an error.
func (s *Store) DeleteMetadata(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", key, err)
	}
	return nil
}

// LoadSettings returns the persisted sync settings, or the defaults when none
// have been saved.
func (s *Store) LoadSettings(ctx context.Context) (schema.SyncSettings, error) {
	settings := schema.DefaultSyncSettings()
	found, err := s.loadJSON(ctx, KeySyncSettings, &settings)
	if err != nil || !found {
		return schema.DefaultSyncSettings(), err
	}
	return settings, nil
}

// SaveSettings validates and persists the sync settings.
func (s *Store) SaveSettings(ctx context.Context, settings schema.SyncSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid sync settings: %w", err)
	}
	return s.saveJSON(ctx, KeySyncSettings, settings)
}

// LoadStatus returns the persisted sync status, or a zero status.
func (s *Store) LoadStatus(ctx context.Context) (schema.SyncStatus, error) {
	var status schema.SyncStatus
	if _, err := s.loadJSON(ctx, KeySyncStatus, &status); err != nil {
		return schema.SyncStatus{}, err
	}
	return status, nil
}

// SaveStatus persists the sync status.
func (s *Store) SaveStatus(ctx context.Context, status schema.SyncStatus) error {
	return s.saveJSON(ctx, KeySyncStatus, status)
}

// Counts summarizes the local store for status output.
type Counts struct {
	Collections int `json:"collections"`
	Pins        int `json:"pins"`
	Unassigned  int `json:"unassigned"`
}

// Counts returns record totals. Unassigned pins are the ones sync skips.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM collections),
			(SELECT COUNT(*) FROM pins),
			(SELECT COUNT(*) FROM pins WHERE collection_id = '')
	`).Scan(&c.Collections, &c.Pins, &c.Unassigned)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

func (s *Store) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.GetMetadata(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode metadata %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode metadata %s: %w", key, err)
	}
	return s.SetMetadata(ctx, key, string(data))
}
