package schema

import (
	"fmt"
	"time"
)

// DefaultSyncInterval is the auto-sync period in minutes for fresh installs.
const DefaultSyncInterval = 15

// SyncSettings is the persisted sync configuration.
type SyncSettings struct {
	Enabled  bool `json:"enabled"`
	AutoSync bool `json:"autoSync"`

	// SyncInterval is in minutes.
	SyncInterval int `json:"syncInterval"`

	// WifiOnly is persisted and displayed but not consulted by the engine.
	WifiOnly bool `json:"wifiOnly"`
}

// DefaultSyncSettings returns the settings of a fresh install: sync disabled
// until the user opts in, auto-sync on once enabled.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Enabled:      false,
		AutoSync:     true,
		SyncInterval: DefaultSyncInterval,
	}
}

// Validate checks the settings before they are persisted.
func (s SyncSettings) Validate() error {
	if s.SyncInterval < 1 {
		return fmt.Errorf("syncInterval must be at least 1 minute (got %d)", s.SyncInterval)
	}
	if s.SyncInterval > 24*60 {
		return fmt.Errorf("syncInterval must be at most 1440 minutes (got %d)", s.SyncInterval)
	}
	return nil
}

// Interval returns SyncInterval as a duration.
func (s SyncSettings) Interval() time.Duration {
	return time.Duration(s.SyncInterval) * time.Minute
}

// SyncStatus is the observable state of the sync subsystem.
type SyncStatus struct {
	IsSyncing      bool       `json:"isSyncing"`
	LastSyncTime   *time.Time `json:"lastSyncTime"`
	Error          *string    `json:"error"`
	PendingChanges int        `json:"pendingChanges"`
}

// Clone returns a deep copy safe to hand to observers.
func (s SyncStatus) Clone() SyncStatus {
	out := s
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

// ErrorMessage returns the error string or "" when none is recorded.
func (s SyncStatus) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}
