// Package syncer drains the mutation queue against the remote API. Entries
// replay strictly in FIFO order; each entry gets a bounded number of attempts
// before it is dropped with an error, so one poisoned mutation cannot wedge
// the queue forever.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mvoronin-dev/pocketledger/internal/client/api"
	"github.com/mvoronin-dev/pocketledger/internal/client/events"
	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/metadata"
	"github.com/mvoronin-dev/pocketledger/internal/client/store"
	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

// DefaultRetryCap is the total number of delivery attempts an entry gets
// before it is dropped.
const DefaultRetryCap = 3

// CacheJanitor removes expired response-cache entries. The interception
// transport implements it; the engine runs it after every pass.
type CacheJanitor interface {
	Cleanup(ctx context.Context) error
}

// ItemError records one entry that exhausted its attempts and was dropped.
type ItemError struct {
	EntryID    string            `json:"entryId"`
	Collection models.Collection `json:"collection"`
	Operation  models.Operation  `json:"operation"`
	Reason     string            `json:"reason"`
}

// Result summarizes one sync pass.
type Result struct {
	Success     bool        `json:"success"`
	SyncedItems int         `json:"syncedItems"`
	Errors      []ItemError `json:"errors"`
}

// Status is a point-in-time view of the sync state for display.
type Status struct {
	Online       bool
	Syncing      bool
	PendingCount int
	LastSyncAt   *time.Time
}

// Engine replays queued mutations. Safe for concurrent use: overlapping Sync
// calls collapse into one, the loser returning common.ErrSyncInProgress.
type Engine struct {
	store    *store.Store
	api      api.Client
	bus      *events.Bus
	janitor  CacheJanitor
	log      logging.Logger
	retryCap int
	now      func() time.Time

	syncing atomic.Bool
	online  atomic.Bool
}

// EngineOption tweaks an Engine.
type EngineOption func(*Engine)

// WithRetryCap overrides the per-entry attempt cap.
func WithRetryCap(n int) EngineOption {
	return func(e *Engine) { e.retryCap = n }
}

// WithJanitor wires a response-cache janitor to run after each pass.
func WithJanitor(j CacheJanitor) EngineOption {
	return func(e *Engine) { e.janitor = j }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a sync engine over the local store and the remote API.
func NewEngine(st *store.Store, client api.Client, bus *events.Bus, log logging.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logging.NopLogger{}
	}
	e := &Engine{
		store:    st,
		api:      client,
		bus:      bus,
		log:      log,
		retryCap: DefaultRetryCap,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Sync runs one full pass over the mutation queue. The pass works on a
// snapshot of the queue taken at its start, so an entry re-enqueued after a
// failure waits for the next pass rather than being retried immediately.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, common.ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	token, err := e.store.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, common.ErrNotAuthenticated
	}
	if tokenExpired(token, e.now()) {
		// fail fast instead of burning an attempt per entry on guaranteed 401s
		return nil, common.ErrTokenExpired
	}

	entries, err := e.store.Queue().List(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := e.apply(ctx, entry)
		if err == nil {
			if err := e.store.Queue().Remove(ctx, entry.Id); err != nil {
				return nil, err
			}
			result.SyncedItems++
			continue
		}

		if errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrTokenExpired) {
			// every later entry would fail the same way
			return nil, err
		}

		e.log.Warn(ctx, "queue entry failed",
			"entry", entry.Id, "collection", entry.Collection,
			"operation", entry.Operation, "attempt", entry.RetryCount+1, "error", err)

		if entry.RetryCount+1 >= e.retryCap {
			if rmErr := e.store.Queue().Remove(ctx, entry.Id); rmErr != nil {
				return nil, rmErr
			}
			result.Errors = append(result.Errors, ItemError{
				EntryID:    entry.Id,
				Collection: entry.Collection,
				Operation:  entry.Operation,
				Reason:     err.Error(),
			})
			continue
		}
		if err := e.store.Queue().Requeue(ctx, entry.Id); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}
	result.Success = len(result.Errors) == 0

	e.finishPass(ctx, result)
	return result, nil
}

// finishPass does the post-pass bookkeeping: last-sync timestamp, cache
// cleanup, and view invalidation. Failures here are logged, never surfaced;
// the pass itself already succeeded.
func (e *Engine) finishPass(ctx context.Context, result *Result) {
	at := e.now().UTC().Format(time.RFC3339Nano)
	if err := e.store.Metadata().Set(ctx, metadata.KeyLastSyncAt, []byte(at)); err != nil {
		e.log.Warn(ctx, "failed to record last sync time", "error", err)
	}
	if e.janitor != nil {
		if err := e.janitor.Cleanup(ctx); err != nil {
			e.log.Warn(ctx, "response cache cleanup failed", "error", err)
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.ViewsInvalidated})
		e.bus.Publish(events.Event{Type: events.SyncCompleted, Payload: result})
	}
	e.log.Info(ctx, "sync pass finished", "synced", result.SyncedItems, "errors", len(result.Errors))
}

// apply replays one queue entry against the API and settles the local store.
func (e *Engine) apply(ctx context.Context, entry models.QueueEntry) error {
	switch entry.Operation {
	case models.OpCreate:
		return e.applyCreate(ctx, entry)
	case models.OpUpdate:
		id, payload, err := splitPayloadID(entry.Payload)
		if err != nil {
			return err
		}
		if err := e.api.Update(ctx, entry.Collection, id, payload); err != nil {
			return err
		}
		return e.store.MarkRecordSynced(ctx, entry.Collection, id)
	case models.OpDelete:
		id, _, err := splitPayloadID(entry.Payload)
		if err != nil {
			return err
		}
		if err := e.api.Delete(ctx, entry.Collection, id); err != nil {
			return err
		}
		// usually already removed optimistically; DeleteByID is idempotent
		return e.store.DeleteRecord(ctx, entry.Collection, id)
	}
	return fmt.Errorf("unknown operation %q", entry.Operation)
}

// applyCreate posts the payload without its temporary id, then swaps the
// local temporary record for the server-confirmed one. Temporary ids never
// reach the server.
func (e *Engine) applyCreate(ctx context.Context, entry models.QueueEntry) error {
	tempID, outbound, err := prepareCreate(entry.Payload)
	if err != nil {
		return err
	}
	serverPayload, err := e.api.Create(ctx, entry.Collection, outbound)
	if err != nil {
		return err
	}

	if tempID != "" {
		return e.store.ReplaceRecordID(ctx, entry.Collection, tempID, serverPayload)
	}
	// no temp id to swap; adopt the server copy directly
	var withSynced map[string]json.RawMessage
	if err := json.Unmarshal(serverPayload, &withSynced); err != nil {
		return fmt.Errorf("malformed create response: %w", err)
	}
	withSynced["synced"] = json.RawMessage(`true`)
	merged, err := json.Marshal(withSynced)
	if err != nil {
		return err
	}
	return e.store.PutRecord(ctx, entry.Collection, merged)
}

// Status reports the current engine state for display.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{
		Online:  e.online.Load(),
		Syncing: e.syncing.Load(),
	}
	n, err := e.store.Queue().Count(ctx)
	if err != nil {
		return st, err
	}
	st.PendingCount = n

	raw, err := e.store.Metadata().Get(ctx, metadata.KeyLastSyncAt)
	if err != nil {
		return st, err
	}
	if raw != nil {
		if at, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			st.LastSyncAt = &at
		}
	}
	return st, nil
}

// Online reports the last observed connectivity state.
func (e *Engine) Online() bool { return e.online.Load() }

// setOnline flips the connectivity flag and reports whether this was an
// offline-to-online transition.
func (e *Engine) setOnline(v bool) (cameOnline bool) {
	prev := e.online.Swap(v)
	return v && !prev
}

// tokenExpired checks the exp claim without verifying the signature; the
// client has no key material and only needs the timestamp. Malformed tokens
// pass through so the server stays the authority on their validity.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

// prepareCreate strips the temporary id and the local synced flag from a
// queued create payload and returns them separately.
func prepareCreate(payload json.RawMessage) (tempID string, outbound json.RawMessage, err error) {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", nil, fmt.Errorf("queued payload is not a JSON object: %w", err)
	}
	if raw, ok := m["id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && models.IsTempID(id) {
			tempID = id
			delete(m, "id")
		}
	}
	delete(m, "synced")
	outbound, err = json.Marshal(m)
	return tempID, outbound, err
}

// splitPayloadID extracts the record id from a queued payload, leaving the
// payload itself untouched.
func splitPayloadID(payload json.RawMessage) (string, json.RawMessage, error) {
	var probe struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", nil, fmt.Errorf("queued payload is not a JSON object: %w", err)
	}
	if probe.Id == "" {
		return "", nil, errors.New("queued payload carries no record id")
	}
	return probe.Id, payload, nil
}
