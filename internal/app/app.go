// Package app assembles the service graph in a samber/do container and
// owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/do/v2"
	"github.com/surrealdb/surrealdb.go"
	"go.uber.org/multierr"

	"github.com/nfrund/huddle/internal/chat"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/database"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/server"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/nfrund/huddle/internal/websocket"
)

// App is a fully wired instance.
type App struct {
	Config   *config.Config
	Hub      *hub.Hub
	Server   *server.Server
	Store    domain.Store
	Backbone pubsub.Backbone

	injector *do.RootScope
	fanout   *chat.Fanout
	presence *presence.Service
	typing   *presence.Typing

	mu      sync.Mutex
	closers []func(context.Context) error
	health  map[string]handlers.HealthChecker
}

// New builds every service for cfg. External connections (store, backbone,
// tracing exporter) are opened here; Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		injector: do.New(),
		health:   make(map[string]handlers.HealthChecker),
	}
	i := a.injector

	do.ProvideValue(i, cfg)
	do.Provide(i, func(do.Injector) (*metrics.Metrics, error) { return metrics.New(), nil })
	do.Provide(i, func(do.Injector) (domain.Store, error) { return a.openStore(ctx, cfg) })
	do.Provide(i, func(do.Injector) (pubsub.Backbone, error) { return a.openBackbone(ctx, cfg) })
	do.Provide(i, provideHub)
	do.Provide(i, provideBlobStore)
	do.Provide(i, provideIngest)
	do.Provide(i, provideFanout)
	do.Provide(i, providePresence)
	do.Provide(i, provideTyping)
	do.Provide(i, provideBridge)
	do.Provide(i, func(i do.Injector) (*server.Server, error) { return a.provideServer(i) })

	var err error
	if a.Server, err = do.Invoke[*server.Server](i); err != nil {
		return nil, multierr.Append(err, a.Close(context.Background()))
	}
	a.Hub = do.MustInvoke[*hub.Hub](i)
	a.Store = do.MustInvoke[domain.Store](i)
	a.Backbone = do.MustInvoke[pubsub.Backbone](i)
	a.fanout = do.MustInvoke[*chat.Fanout](i)
	a.presence = do.MustInvoke[*presence.Service](i)
	a.typing = do.MustInvoke[*presence.Typing](i)
	return a, nil
}

// Start subscribes the fan-out, presence and typing consumers. Subscription
// failures are retried in the background.
func (a *App) Start(ctx context.Context) {
	a.fanout.Start(ctx)
	a.presence.Start(ctx)
	a.typing.Start(ctx)
}

// Run starts the consumers and serves HTTP until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)
	return a.Server.Run(ctx)
}

// Close releases external resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	if a.typing != nil {
		a.typing.Stop()
	}

	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var err error
	for idx := len(closers) - 1; idx >= 0; idx-- {
		err = multierr.Append(err, closers[idx](ctx))
	}
	a.injector.Shutdown()
	return err
}

func (a *App) onClose(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	if cfg.Store != config.AdapterSurreal {
		slog.Info("Using in-memory store")
		return database.NewMemoryStore(), nil
	}

	conn := database.NewConnection(func(ctx context.Context) (*surrealdb.DB, error) {
		return database.NewDB(ctx, cfg)
	})
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	a.onClose(conn.Close)
	conn.StartMonitoring(healthInterval)
	a.health["store"] = conn

	store := database.NewSurrealStore(conn)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (a *App) openBackbone(ctx context.Context, cfg *config.Config) (pubsub.Backbone, error) {
	var backbone pubsub.Backbone
	switch cfg.PubSub {
	case config.AdapterRedis:
		rb, err := pubsub.NewRedisBackbone(ctx, pubsub.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis backbone: %w", err)
		}
		backbone = rb
	default:
		backbone = pubsub.NewWatermillBridge()
	}
	a.onClose(func(context.Context) error { return backbone.Close() })

	if !cfg.TracingEnabled {
		return backbone, nil
	}
	tracer, shutdown, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
		Enabled:     true,
		ServiceName: cfg.TracingServiceName,
		ZipkinURL:   cfg.TracingZipkinURL,
		SampleRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.onClose(shutdown)
	return pubsub.NewTracedBackbone(backbone, tracer, cfg.PubSub), nil
}

func (a *App) provideServer(i do.Injector) (*server.Server, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	store, err := do.Invoke[domain.Store](i)
	if err != nil {
		return nil, err
	}
	h, err := do.Invoke[*hub.Hub](i)
	if err != nil {
		return nil, err
	}
	bridge, err := do.Invoke[*websocket.Bridge](i)
	if err != nil {
		return nil, err
	}
	blobs, err := do.Invoke[*storage.BlobStore](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*metrics.Metrics](i)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { bridge.Shutdown(); return nil })

	return server.New(server.Deps{
		Config:  cfg,
		Store:   store,
		Hub:     h,
		Bridge:  bridge,
		Files:   storage.NewFileHandler(blobs),
		Metrics: m,
		Health:  a.health,
	}), nil
}
