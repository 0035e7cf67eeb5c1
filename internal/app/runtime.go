// Package app assembles the Stellar Map stores, caches and handlers from
// configuration. The CLI and the worker share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alem-hub/stellar-map/config"
	"github.com/alem-hub/stellar-map/internal/application/command"
	"github.com/alem-hub/stellar-map/internal/application/query"
	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/internal/infrastructure/messaging"
	"github.com/alem-hub/stellar-map/internal/infrastructure/observability"
	"github.com/alem-hub/stellar-map/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/stellar-map/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/stellar-map/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/stellar-map/pkg/circuitbreaker"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// EventBus is the bus the runtime publishes domain events on.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Stores groups the persistence ports of one backend.
type Stores struct {
	Content     hierarchy.ContentStore
	Nodes       hierarchy.NodeFinder
	Writer      hierarchy.ContentWriter
	Catalog     hierarchy.CatalogWriter
	Completions completion.Store
	Profiles    completion.ProfileStore
}

// Runtime holds every wired dependency. Close releases them in reverse order.
type Runtime struct {
	Config     *config.Config
	Log        *logger.Logger
	Classifier *visibility.Classifier
	Stores     Stores
	Events     EventBus
	Breaker    *circuitbreaker.CircuitBreaker
	Ledger     *completion.Ledger

	// Trees and CompletionCache are nil when Redis is disabled.
	Trees           hierarchy.TreeCache
	CompletionCache completion.Cache

	Map           *query.GetStellarMapHandler
	Validate      *query.ValidateHierarchyHandler
	Complete      *command.CompleteNodeHandler
	CompleteBatch *command.CompleteNodesHandler
	ApplyReward   *command.ApplyRewardHandler
	ImportNodes   *command.ImportNodesHandler
	ImportCatalog *command.ImportCatalogHandler

	closers []func(context.Context) error
}

// Open connects every backend named by cfg and builds the handlers.
// On error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Runtime, err error) {
	if log == nil {
		log = logger.Nop()
	}
	rt := &Runtime{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Classification table
	// ─────────────────────────────────────────────────────────────────────────
	rt.Classifier = visibility.DefaultClassifier()
	if cfg.Engine.CoreTablePath != "" {
		rt.Classifier, err = visibility.LoadTableFile(cfg.Engine.CoreTablePath)
		if err != nil {
			return nil, fmt.Errorf("load core table: %w", err)
		}
		log.Info("core table loaded", logger.String("path", cfg.Engine.CoreTablePath))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Tracing
	// ─────────────────────────────────────────────────────────────────────────
	shutdown, err := observability.InitTracing(ctx, log, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.closers = append(rt.closers, shutdown)

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	if err := rt.openStores(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis caches and event bus
	// ─────────────────────────────────────────────────────────────────────────
	if err := rt.openRedis(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Handlers
	// ─────────────────────────────────────────────────────────────────────────
	rt.Breaker = circuitbreaker.StoreBreaker("stores", shared.IsExternalService,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})

	rt.Ledger = completion.NewLedger(rt.Stores.Completions,
		command.NewGuardedProfileStore(rt.Stores.Profiles, rt.Breaker))

	rt.Map = query.NewGetStellarMapHandler(
		rt.Classifier,
		rt.Stores.Content,
		rt.Stores.Profiles,
		rt.Ledger,
		rt.Trees,
		rt.CompletionCache,
		rt.Breaker,
		log,
		query.MapOptions{EnforceNodeUnlockXP: cfg.Engine.EnforceNodeUnlockXP},
	)
	rt.Validate = query.NewValidateHierarchyHandler(rt.Classifier, rt.Stores.Content, log)
	rt.Complete = command.NewCompleteNodeHandler(rt.Ledger, rt.CompletionCache, rt.Events, nil, log,
		command.CompleteOptions{Nodes: rt.Stores.Nodes, DefaultReward: cfg.Engine.DefaultReward})
	rt.CompleteBatch = command.NewCompleteNodesHandler(rt.Complete)
	rt.ApplyReward = command.NewApplyRewardHandler(rt.Ledger, rt.Events, log)
	rt.ImportNodes = command.NewImportNodesHandler(rt.Classifier, rt.Stores.Writer, rt.Trees, rt.Events, log)
	rt.ImportCatalog = command.NewImportCatalogHandler(rt.Classifier, rt.Stores.Content, rt.Stores.Catalog, rt.Trees, log)

	return rt, nil
}

func (rt *Runtime) openStores(ctx context.Context) error {
	cfg := rt.Config.Database
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err := postgres.Connect(ctx, cfg.URL, cfg.PoolSettings())
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			conn.Close()
			return nil
		})

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		rt.Log.Info("database schema is up to date", logger.Int("applied", applied))

		content := postgres.NewContentRepository(conn)
		rt.Stores = Stores{
			Content:     content,
			Nodes:       content,
			Writer:      content,
			Catalog:     content,
			Completions: postgres.NewCompletionRepository(conn),
			Profiles:    postgres.NewProfileRepository(conn),
		}

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		rt.Stores = Stores{
			Content:     store,
			Nodes:       store,
			Writer:      store,
			Catalog:     store,
			Completions: store,
			Profiles:    store,
		}

	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	return nil
}

func (rt *Runtime) openRedis(ctx context.Context) error {
	cfg := rt.Config.Redis
	busConfig := messaging.InMemoryEventBusConfig{Logger: rt.Log}

	if !cfg.Enabled {
		bus := messaging.NewInMemoryEventBus(busConfig)
		rt.Events = bus
		rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })
		return nil
	}

	cache, err := redis.NewCache(cfg.CacheConfig())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return cache.Close() })
	rt.Trees = redis.NewHierarchyCache(cache, rt.Config.Engine.HierarchyCacheTTL)
	rt.CompletionCache = redis.NewCompletionCache(cache, cfg.CompletionCacheTTL)
	rt.Log.Info("redis connection established", logger.String("addr", cfg.CacheConfig().Addr()))

	if !cfg.PublishEvents {
		bus := messaging.NewInMemoryEventBus(busConfig)
		rt.Events = bus
		rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })
		return nil
	}

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:         cache.Client(),
		LocalBusConfig: busConfig,
		Logger:         rt.Log,
	})
	if err != nil {
		return fmt.Errorf("start redis event bus: %w", err)
	}
	rt.Events = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })
	return nil
}

// Close releases every opened resource, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
