package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/schema"
	pinsync "github.com/pinsync/pinsync/internal/sync"
)

// State is the orchestrator's coarse state.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Engine runs one reconciliation pass.
type Engine interface {
	Sync(ctx context.Context) (*pinsync.Report, error)
}

// StateStore persists settings and status.
type StateStore interface {
	LoadSettings(ctx context.Context) (schema.SyncSettings, error)
	SaveSettings(ctx context.Context, s schema.SyncSettings) error
	LoadStatus(ctx context.Context) (schema.SyncStatus, error)
	SaveStatus(ctx context.Context, s schema.SyncStatus) error
}

// PassLease coordinates passes between processes that share one database.
// *store.Store implements it.
type PassLease interface {
	ClaimLease(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

const (
	syncLeaseName   = "sync"
	defaultLeaseTTL = 2 * time.Minute
)

// ServiceConfig holds the orchestrator's collaborators.
type ServiceConfig struct {
	Engine Engine
	Store  StateStore

	// Broker receives every status mutation. Nil creates a private one.
	Broker *Broker

	// IntervalUnit scales SyncSettings.SyncInterval. Defaults to a minute.
	IntervalUnit time.Duration

	// Lease, when set, is held for the duration of every pass. A pass that
	// cannot claim it is skipped because another process is syncing.
	Lease PassLease

	// LeaseTTL bounds how long a crashed holder blocks other processes.
	// The lease is renewed at a third of this while a pass runs.
	LeaseTTL time.Duration

	// OnPass, when set, is called after every pass that reached the engine.
	OnPass func(report *pinsync.Report, err error)

	Logger *log.Logger
	Now    func() time.Time
}

// Service owns sync settings, status and the periodic timer, and runs passes
// through the engine. One Service exists per process.
type Service struct {
	cfg    ServiceConfig
	broker *Broker
	logger *log.Logger
	now    func() time.Time
	owner  string

	mu        sync.Mutex
	running   bool
	settings  schema.SyncSettings
	status    schema.SyncStatus
	baseCtx   context.Context
	cancel    context.CancelFunc
	stopTimer context.CancelFunc

	timers   sync.WaitGroup
	triggers sync.WaitGroup
}

// NewService loads persisted settings and status. A status left "syncing" by
// a crashed process is reset, unless another process still holds the lease.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Broker == nil {
		cfg.Broker = NewBroker()
	}
	if cfg.IntervalUnit <= 0 {
		cfg.IntervalUnit = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}

	settings, err := cfg.Store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	status, err := cfg.Store.LoadStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load status: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		broker:   cfg.Broker,
		logger:   cfg.Logger,
		now:      cfg.Now,
		owner:    uuid.NewString(),
		settings: settings,
		status:   status,
	}

	if status.IsSyncing {
		claimed, err := s.claimLease(ctx)
		if err != nil {
			return nil, err
		}
		if claimed {
			s.status.IsSyncing = false
			err := cfg.Store.SaveStatus(ctx, s.status)
			s.releaseLease(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to reset stale status: %w", err)
			}
		}
	}
	return s, nil
}

// Broker returns the status broker.
func (s *Service) Broker() *Broker {
	return s.broker
}

// Subscribe is shorthand for Broker().Subscribe.
func (s *Service) Subscribe(buffer int) (<-chan schema.SyncStatus, func()) {
	return s.broker.Subscribe(buffer)
}

// Settings returns the current settings.
func (s *Service) Settings() schema.SyncSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Status returns a snapshot of the current status.
func (s *Service) Status() schema.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Clone()
}

// State derives the coarse state from the status.
func (s *Service) State() State {
	return StateOf(s.Status())
}

// StateOf maps a status snapshot to its coarse state.
func StateOf(st schema.SyncStatus) State {
	switch {
	case st.IsSyncing:
		return StateSyncing
	case st.Error != nil:
		return StateError
	default:
		return StateIdle
	}
}

// Start arms the periodic timer according to the settings. Scheduled and
// triggered passes run under ctx until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseCtx != nil {
		return fmt.Errorf("service already started")
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.rearmLocked()
	return nil
}

// Stop disarms the timer, cancels in-flight passes, waits for them and
// closes the broker.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.timers.Wait()
	s.triggers.Wait()
	s.broker.Close()
}

// Wait blocks until every pass started by Trigger has finished.
func (s *Service) Wait() {
	s.triggers.Wait()
}

// Trigger starts one pass in the background and returns immediately.
func (s *Service) Trigger() {
	ctx := s.runContext()
	s.triggers.Add(1)
	go func() {
		defer s.triggers.Done()
		if err := s.Sync(ctx); err != nil && !errors.Is(err, pinsync.ErrSyncDisabled) {
			s.logger.Printf("Triggered sync failed: %v", err)
		}
	}()
}

// Sync runs one pass. It is a no-op while a pass is already running, here or
// in another process holding the lease, and fails with ErrSyncDisabled when
// sync is turned off. The syncing flag is always cleared when the pass ends,
// even on panic.
func (s *Service) Sync(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Printf("Sync already running, ignoring request")
		return nil
	}
	if !s.settings.Enabled {
		s.mu.Unlock()
		return pinsync.ErrSyncDisabled
	}
	s.running = true
	s.mu.Unlock()

	claimed, err := s.claimLease(ctx)
	if err != nil || !claimed {
		s.setRunning(false)
		if err == nil {
			s.logger.Printf("Sync running in another process, ignoring request")
		}
		return err
	}
	stopRenew := s.renewLease(ctx)

	s.mu.Lock()
	if s.cfg.Lease != nil {
		// Pick up the outcome of passes run by other processes.
		if persisted, err := s.cfg.Store.LoadStatus(ctx); err == nil {
			s.status = persisted
		}
	}
	s.status.IsSyncing = true
	snap := s.status.Clone()
	s.mu.Unlock()
	s.publish(ctx, snap)

	var report *pinsync.Report
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
		stopRenew()
		s.finish(ctx, report, err)
		s.releaseLease(ctx)
		s.setRunning(false)
	}()

	report, err = s.cfg.Engine.Sync(ctx)
	return err
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Service) claimLease(ctx context.Context) (bool, error) {
	if s.cfg.Lease == nil {
		return true, nil
	}
	ok, err := s.cfg.Lease.ClaimLease(ctx, syncLeaseName, s.owner, s.now(), s.cfg.LeaseTTL)
	if err != nil {
		return false, fmt.Errorf("failed to claim sync lease: %w", err)
	}
	return ok, nil
}

func (s *Service) releaseLease(ctx context.Context) {
	if s.cfg.Lease == nil {
		return
	}
	if err := s.cfg.Lease.ReleaseLease(context.WithoutCancel(ctx), syncLeaseName, s.owner); err != nil {
		s.logger.Printf("Failed to release sync lease: %v", err)
	}
}

// renewLease extends the lease until the returned stop func is called.
func (s *Service) renewLease(ctx context.Context) (stop func()) {
	if s.cfg.Lease == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.claimLease(ctx)
				if err != nil {
					s.logger.Printf("%v", err)
				} else if !ok {
					s.logger.Printf("Sync lease taken over by another process")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Service) finish(ctx context.Context, report *pinsync.Report, err error) {
	s.mu.Lock()
	s.status.IsSyncing = false
	switch {
	case err == nil:
		now := s.now()
		s.status.LastSyncTime = &now
		s.status.Error = nil
		s.status.PendingChanges = 0
	case errors.Is(err, pinsync.ErrSyncInProgress):
	case remote.IsAuth(err):
		s.logger.Printf("Sync paused, waiting for re-authentication")
	case errors.Is(err, context.Canceled):
		s.logger.Printf("Sync canceled")
	default:
		msg := err.Error()
		s.status.Error = &msg
	}
	snap := s.status.Clone()
	s.mu.Unlock()

	s.publish(ctx, snap)
	if s.cfg.OnPass != nil && !errors.Is(err, pinsync.ErrSyncInProgress) {
		s.cfg.OnPass(report, err)
	}
}

// publish persists and broadcasts a status snapshot.
func (s *Service) publish(ctx context.Context, snap schema.SyncStatus) {
	if err := s.cfg.Store.SaveStatus(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.Printf("Failed to persist sync status: %v", err)
	}
	s.broker.Publish(snap)
}

// Enable turns sync on, re-arms the timer and triggers one pass.
func (s *Service) Enable(ctx context.Context) error {
	if _, err := s.UpdateSettings(ctx, func(st *schema.SyncSettings) { st.Enabled = true }); err != nil {
		return err
	}
	s.Trigger()
	return nil
}

// Disable turns sync off and stops the timer. A running pass finishes.
func (s *Service) Disable(ctx context.Context) error {
	_, err := s.UpdateSettings(ctx, func(st *schema.SyncSettings) { st.Enabled = false })
	return err
}

// UpdateSettings applies fn to a copy of the settings, persists the result
// and re-arms the timer.
func (s *Service) UpdateSettings(ctx context.Context, fn func(*schema.SyncSettings)) (schema.SyncSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	if err := s.cfg.Store.SaveSettings(ctx, next); err != nil {
		return s.settings, err
	}
	s.settings = next
	s.rearmLocked()
	return next, nil
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// rearmLocked tears down the timer and, if sync is enabled with auto-sync,
// starts a new one. Caller holds s.mu.
func (s *Service) rearmLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	if s.baseCtx == nil || s.baseCtx.Err() != nil {
		return
	}
	if !s.settings.Enabled || !s.settings.AutoSync {
		s.logger.Printf("Periodic sync off")
		return
	}

	interval := time.Duration(s.settings.SyncInterval) * s.cfg.IntervalUnit
	timerCtx, cancel := context.WithCancel(s.baseCtx)
	s.stopTimer = cancel
	s.timers.Add(1)
	go s.runTimer(timerCtx, s.baseCtx, interval)
	s.logger.Printf("Periodic sync every %v", interval)
}

func (s *Service) runTimer(timerCtx, syncCtx context.Context, interval time.Duration) {
	defer s.timers.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timerCtx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(syncCtx); err != nil && !errors.Is(err, pinsync.ErrSyncDisabled) {
				s.logger.Printf("Scheduled sync failed: %v", err)
			}
		}
	}
}
