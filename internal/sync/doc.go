// Package sync reconciles the local pin store with the remote REST backend.
//
// Overview
//
// One pass makes each side a superset of the other, deciding what is missing
// purely by id membership. Records present on both sides are never compared,
// merged or overwritten, and updates and deletes are never propagated.
//
//	     Remote (REST)                          Local (SQLite)
//	 GET /collections, /pins  ──── pull ────▶  insert remote-only ids
//	 POST /collections, /pins ◀──── push ────  local-only ids, same id kept
//
// Pull always runs before push so that records just pulled are no longer
// local-only when push computes its difference.
//
// Preconditions, checked in order before any remote call:
//
//  1. no other pass in flight (ErrSyncInProgress, no work done)
//  2. settings.enabled (ErrSyncDisabled)
//  3. connectivity (ErrOffline)
//  4. a cached bearer token (remote.ErrAuth)
//
// Failure model
//
// Each record is created or inserted on its own; a failure is recorded as an
// Outcome in the Report and the loop moves on. A listing failure aborts the
// rest of its phase, and the next phase still runs. An authentication
// failure aborts the whole pass. Nothing is rolled back, so a failed pass may
// leave both sides partially synchronized; the next pass picks up where it
// left off because already-present ids are skipped.
//
// Usage
//
//	engine, err := sync.New(sync.Config{
//	    Local:    st,
//	    Remote:   remote.New(apiURL, provider),
//	    Tokens:   provider,
//	    Settings: st,
//	})
//	if err != nil {
//	    return err
//	}
//	report, err := engine.Sync(ctx)
package sync
