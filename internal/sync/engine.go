package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/pinsync/pinsync/internal/auth"
	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/schema"
	"github.com/pinsync/pinsync/internal/store"
)

// Config holds the engine's collaborators.
type Config struct {
	Local    LocalStore     // required
	Remote   Remote         // required
	Tokens   TokenSource    // required
	Settings SettingsSource // required

	// Connectivity is consulted before every pass. Nil means always online.
	Connectivity Connectivity

	// Refresher, when set, renews the token and retries a remote call once
	// after a 401.
	Refresher Refresher

	// Logger for pass progress. Nil writes to stderr.
	Logger *log.Logger

	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Engine runs reconciliation passes. It is safe for concurrent use; at most
// one pass runs at a time.
type Engine struct {
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
	running atomic.Bool

	mu   stdsync.Mutex
	last *Report
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings source is required")
	}

	e := &Engine{cfg: cfg, logger: cfg.Logger, now: cfg.Now}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Running reports whether a pass is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastReport returns the report of the most recent pass that got past its
// preconditions, or nil.
func (e *Engine) LastReport() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Sync runs one pull-then-push pass.
//
// A concurrent call returns ErrSyncInProgress at once without touching either
// store. Precondition failures return ErrSyncDisabled, ErrOffline or
// remote.ErrAuth with a nil report. Otherwise the report is always returned,
// and err is a *PassError when any phase or record failed.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if err := e.checkPreconditions(ctx); err != nil {
		return nil, err
	}

	report := &Report{StartedAt: e.now()}
	e.logger.Printf("Starting sync pass")

	if err := e.pull(ctx, report); err != nil {
		report.PhaseErrors = append(report.PhaseErrors, fmt.Errorf("pull: %w", err))
	}
	if !report.authFailed() {
		if err := e.push(ctx, report); err != nil {
			report.PhaseErrors = append(report.PhaseErrors, fmt.Errorf("push: %w", err))
		}
	}

	report.FinishedAt = e.now()
	e.mu.Lock()
	e.last = report
	e.mu.Unlock()

	if !report.OK() {
		e.logger.Printf("Sync pass finished with errors: %s", report)
		return report, &PassError{Report: report, Errs: report.errors()}
	}
	e.logger.Printf("Sync pass complete: %s (%s)", report, report.Duration().Round(time.Millisecond))
	return report, nil
}

func (e *Engine) checkPreconditions(ctx context.Context) error {
	settings, err := e.cfg.Settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync settings: %w", err)
	}
	if !settings.Enabled {
		return ErrSyncDisabled
	}

	if e.cfg.Connectivity != nil && !e.cfg.Connectivity.Online(ctx) {
		return ErrOffline
	}

	_, ok, err := e.cfg.Tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if !ok {
		return fmt.Errorf("no cached token: %w", remote.ErrAuth)
	}
	return nil
}

// pull inserts remote-only collections, then remote-only pins.
func (e *Engine) pull(ctx context.Context, r *Report) error {
	remoteColls, err := call(ctx, e, e.cfg.Remote.ListCollections)
	if err != nil {
		return fmt.Errorf("list remote collections: %w", err)
	}
	remotePins, err := call(ctx, e, e.cfg.Remote.ListPins)
	if err != nil {
		return fmt.Errorf("list remote pins: %w", err)
	}
	localColls, err := e.cfg.Local.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list local collections: %w", err)
	}
	localPins, err := e.cfg.Local.ListPins(ctx)
	if err != nil {
		return fmt.Errorf("list local pins: %w", err)
	}

	have := make(map[string]struct{}, len(localColls))
	for _, c := range localColls {
		have[c.ID] = struct{}{}
	}
	for _, rc := range remoteColls {
		if _, ok := have[rc.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		have[rc.ID] = struct{}{}
		e.applyLocal(r, KindCollection, rc.ID, func() error {
			return e.cfg.Local.InsertCollection(ctx, schema.FromRemoteCollection(rc))
		})
	}

	have = make(map[string]struct{}, len(localPins))
	for _, p := range localPins {
		have[p.ID] = struct{}{}
	}
	for _, rp := range remotePins {
		if _, ok := have[rp.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		have[rp.ID] = struct{}{}
		e.applyLocal(r, KindPin, rp.ID, func() error {
			return e.cfg.Local.InsertPin(ctx, schema.FromRemotePin(rp))
		})
	}

	e.logger.Printf("Pull: %d collections, %d pins inserted",
		Count(r.Pulled, PhasePull, KindCollection), Count(r.Pulled, PhasePull, KindPin))
	return nil
}

func (e *Engine) applyLocal(r *Report, kind Kind, id string, insert func() error) {
	err := insert()
	switch {
	case err == nil:
		r.Pulled = append(r.Pulled, Outcome{Phase: PhasePull, Kind: kind, ID: id})
	case errors.Is(err, store.ErrDuplicate):
		r.Skipped = append(r.Skipped, Outcome{Phase: PhasePull, Kind: kind, ID: id, Reason: "already present locally"})
	default:
		e.logger.Printf("Failed to insert %s %s: %v", kind, id, err)
		r.Failed = append(r.Failed, Outcome{Phase: PhasePull, Kind: kind, ID: id, Err: err})
	}
}

// push creates local-only collections, then local-only syncable pins, keeping
// their ids. Both sides are re-read so freshly pulled records are excluded.
func (e *Engine) push(ctx context.Context, r *Report) error {
	localColls, err := e.cfg.Local.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list local collections: %w", err)
	}
	localPins, err := e.cfg.Local.ListPins(ctx)
	if err != nil {
		return fmt.Errorf("list local pins: %w", err)
	}
	remoteColls, err := call(ctx, e, e.cfg.Remote.ListCollections)
	if err != nil {
		return fmt.Errorf("list remote collections: %w", err)
	}
	remotePins, err := call(ctx, e, e.cfg.Remote.ListPins)
	if err != nil {
		return fmt.Errorf("list remote pins: %w", err)
	}

	have := make(map[string]struct{}, len(remoteColls))
	for _, rc := range remoteColls {
		have[rc.ID] = struct{}{}
	}
	for _, c := range localColls {
		if _, ok := have[c.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		in := c.ToRemote()
		_, err := call(ctx, e, func(ctx context.Context) (*schema.RemoteCollection, error) {
			return e.cfg.Remote.CreateCollection(ctx, in)
		})
		if stop := e.recordPush(r, KindCollection, c.ID, err); stop != nil {
			return stop
		}
	}

	have = make(map[string]struct{}, len(remotePins))
	for _, rp := range remotePins {
		have[rp.ID] = struct{}{}
	}
	for _, p := range localPins {
		if _, ok := have[p.ID]; ok {
			continue
		}
		if !p.Syncable() {
			r.Skipped = append(r.Skipped, Outcome{Phase: PhasePush, Kind: KindPin, ID: p.ID, Reason: "missing collectionId or page.url"})
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		in := p.ToRemote()
		_, err := call(ctx, e, func(ctx context.Context) (*schema.RemotePin, error) {
			return e.cfg.Remote.CreatePin(ctx, in)
		})
		if stop := e.recordPush(r, KindPin, p.ID, err); stop != nil {
			return stop
		}
	}

	e.logger.Printf("Push: %d collections, %d pins created",
		Count(r.Pushed, PhasePush, KindCollection), Count(r.Pushed, PhasePush, KindPin))
	return nil
}

// recordPush records one create. It returns the error only when the rest of
// the phase must stop (authentication failure).
func (e *Engine) recordPush(r *Report, kind Kind, id string, err error) error {
	if err == nil {
		r.Pushed = append(r.Pushed, Outcome{Phase: PhasePush, Kind: kind, ID: id})
		return nil
	}
	if remote.IsAuth(err) {
		return err
	}
	e.logger.Printf("Failed to push %s %s: %v", kind, id, err)
	r.Failed = append(r.Failed, Outcome{Phase: PhasePush, Kind: kind, ID: id, Err: err})
	return nil
}

// call runs a remote operation, refreshing the token and retrying once on a
// 401 when a Refresher is configured.
func call[T any](ctx context.Context, e *Engine, fn func(context.Context) (T, error)) (T, error) {
	if e.cfg.Refresher == nil {
		return fn(ctx)
	}
	return auth.WithAuthRetry(ctx, e.cfg.Refresher, fn)
}

func (r *Report) authFailed() bool {
	for _, err := range r.PhaseErrors {
		if remote.IsAuth(err) {
			return true
		}
	}
	return false
}
