package syncer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
	"github.com/mvoronin-dev/pocketledger/internal/netx"
)

// Default watcher cadences.
const (
	DefaultProbeInterval = 10 * time.Second
	DefaultSyncInterval  = 5 * time.Minute
)

// Watcher tracks server reachability and triggers sync passes: immediately on
// an offline-to-online transition, and periodically while online.
type Watcher struct {
	engine        *Engine
	client        *http.Client
	probeURL      string
	probeInterval time.Duration
	syncInterval  time.Duration
	log           logging.Logger
}

// NewWatcher builds a watcher that probes probeURL. The probe client must NOT
// carry the interception transport, otherwise offline probes would be served
// from cache and connectivity would never read as lost.
func NewWatcher(engine *Engine, client *http.Client, probeURL string, probeInterval, syncInterval time.Duration, log logging.Logger) *Watcher {
	if client == nil {
		client = &http.Client{}
	}
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Watcher{
		engine:        engine,
		client:        client,
		probeURL:      probeURL,
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
		log:           log,
	}
}

// Run blocks until ctx is done, probing connectivity and syncing.
func (w *Watcher) Run(ctx context.Context) {
	w.probe(ctx)

	probeTicker := time.NewTicker(w.probeInterval)
	defer probeTicker.Stop()
	syncTicker := time.NewTicker(w.syncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probeTicker.C:
			w.probe(ctx)
		case <-syncTicker.C:
			if w.engine.Online() {
				w.sync(ctx, "periodic")
			}
		}
	}
}

// ProbeOnce checks reachability immediately and updates the engine's online
// flag, without triggering a sync. Used by one-shot commands that want a
// current answer rather than the last observed one.
func (w *Watcher) ProbeOnce(ctx context.Context) bool {
	online := netx.Probe(ctx, w.client, w.probeURL) == nil
	w.engine.setOnline(online)
	return online
}

// probe checks reachability once and syncs on the offline-to-online edge.
func (w *Watcher) probe(ctx context.Context) {
	err := netx.Probe(ctx, w.client, w.probeURL)
	online := err == nil
	if w.engine.setOnline(online) {
		w.log.Info(ctx, "connectivity restored", "url", w.probeURL)
		w.sync(ctx, "reconnect")
	} else if !online {
		w.log.Debug(ctx, "server unreachable", "url", w.probeURL, "error", err)
	}
}

func (w *Watcher) sync(ctx context.Context, trigger string) {
	result, err := w.engine.Sync(ctx)
	switch {
	case errors.Is(err, common.ErrSyncInProgress):
		// a pass is already running, nothing to do
	case errors.Is(err, common.ErrNotAuthenticated), errors.Is(err, common.ErrTokenExpired):
		w.log.Debug(ctx, "sync skipped", "trigger", trigger, "reason", err)
	case err != nil:
		w.log.Error(ctx, "sync failed", "trigger", trigger, "error", err)
	default:
		w.log.Info(ctx, "sync triggered", "trigger", trigger,
			"synced", result.SyncedItems, "errors", len(result.Errors))
	}
}
