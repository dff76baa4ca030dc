// Package app wires the client components together: the durable store, the
// interception transport, the API clients, the sync engine, and the
// optimistic update manager. Commands talk to an App, never to the parts
// directly.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/buildinfo"
	"github.com/mvoronin-dev/pocketledger/internal/client/api"
	"github.com/mvoronin-dev/pocketledger/internal/client/backup"
	"github.com/mvoronin-dev/pocketledger/internal/client/config"
	"github.com/mvoronin-dev/pocketledger/internal/client/events"
	"github.com/mvoronin-dev/pocketledger/internal/client/intercept"
	"github.com/mvoronin-dev/pocketledger/internal/client/optimistic"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/metadata"
	"github.com/mvoronin-dev/pocketledger/internal/client/store"
	"github.com/mvoronin-dev/pocketledger/internal/client/syncer"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

// App is the assembled client.
type App struct {
	Config     *config.Config
	Log        logging.Logger
	Store      *store.Store
	Bus        *events.Bus
	Transport  *intercept.Transport
	API        api.Client // goes through the interception transport
	Engine     *syncer.Engine
	Watcher    *syncer.Watcher
	Optimistic *optimistic.Manager
}

// New opens the store and builds the full component graph.
//
// Two API clients exist on purpose: user-facing reads and mutations travel
// through the interception transport and degrade gracefully offline, while
// the sync engine replays over a plain client so a failed replay is reported
// as a failure instead of being queued a second time.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NopLogger{}
	}

	st, err := store.Open(ctx, "file:"+cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	bus := events.NewBus()

	transport := intercept.New(nil, st.ResponseCache(), st.Queue(), buildinfo.Version, log,
		intercept.WithTTL(cfg.CacheTTL))
	if err := activateGeneration(ctx, st, transport, log); err != nil {
		_ = st.Close()
		return nil, err
	}

	tokens := api.TokenSource(st.Token)
	intercepted := api.NewRESTClient(cfg.ServerURL,
		&http.Client{Transport: transport, Timeout: 30 * time.Second}, tokens)
	plain := api.NewRESTClient(cfg.ServerURL,
		&http.Client{Timeout: 15 * time.Second}, tokens)

	engine := syncer.NewEngine(st, plain, bus, log,
		syncer.WithRetryCap(cfg.RetryCap),
		syncer.WithJanitor(transport))
	watcher := syncer.NewWatcher(engine, &http.Client{}, cfg.ServerURL+"/api/ping",
		cfg.ProbeInterval, cfg.SyncInterval, log)

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Bus:        bus,
		Transport:  transport,
		API:        intercepted,
		Engine:     engine,
		Watcher:    watcher,
		Optimistic: optimistic.NewManager(st, bus, log),
	}, nil
}

// activateGeneration purges cache entries left behind by a previous client
// version. The stored generation marker tracks which version last ran.
func activateGeneration(ctx context.Context, st *store.Store, tr *intercept.Transport, log logging.Logger) error {
	prev, err := st.Metadata().Get(ctx, metadata.KeyCacheGeneration)
	if err != nil {
		return err
	}
	if string(prev) == buildinfo.Version {
		return nil
	}
	if err := tr.Activate(ctx); err != nil {
		return fmt.Errorf("purging stale cache generations: %w", err)
	}
	if prev != nil {
		log.Info(ctx, "cache generation switched", "from", string(prev), "to", buildinfo.Version)
	}
	return st.Metadata().Set(ctx, metadata.KeyCacheGeneration, []byte(buildinfo.Version))
}

// Login authenticates against the server and stores the token. Uses a plain
// request path: a login must fail honestly when the server is unreachable.
func (a *App) Login(ctx context.Context, email, password string) error {
	plain := api.NewRESTClient(a.Config.ServerURL, &http.Client{Timeout: 15 * time.Second}, nil)
	token, err := plain.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return a.Store.SetToken(ctx, token)
}

// BackupService builds the snapshot service from the configured bucket.
func (a *App) BackupService(ctx context.Context) (*backup.Service, error) {
	return backup.NewService(ctx, backup.Options{
		Bucket:    a.Config.Backup.Bucket,
		Region:    a.Config.Backup.Region,
		Endpoint:  a.Config.Backup.Endpoint,
		AccessKey: a.Config.Backup.AccessKey,
		SecretKey: a.Config.Backup.SecretKey,
	}, a.Log)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
