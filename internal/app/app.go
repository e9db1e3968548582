// Package app wires fragd's partitions, sagas and HTTP API together and
// manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alem-hub/fragstore/config"
	"github.com/alem-hub/fragstore/internal/application/command"
	"github.com/alem-hub/fragstore/internal/application/query"
	"github.com/alem-hub/fragstore/internal/application/saga"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/infrastructure/idgen"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/alem-hub/fragstore/internal/interface/http"
	"github.com/alem-hub/fragstore/internal/interface/http/handlers"
	"github.com/alem-hub/fragstore/pkg/logger"
	"github.com/alem-hub/fragstore/pkg/retry"
)

// App owns every long-lived resource of a fragd process.
type App struct {
	cfg *config.Config
	log *logger.Logger

	fragments *fragment.Map
	dir       *partition.Directory
	redis     *goredis.Client
	server    *httpserver.Server

	mu      sync.Mutex
	opened  bool
	running bool
}

// New validates cfg and prepares an App. Nothing is opened until Open.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &App{cfg: cfg, log: log.With(logger.Component("app"))}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOURCES
// ══════════════════════════════════════════════════════════════════════════════

// LoadFragments returns the routing table named by cfg, or the built-in
// one when no file is configured.
func LoadFragments(cfg *config.Config) (*fragment.Map, error) {
	if cfg.Storage.FragmentMapFile == "" {
		return fragment.DefaultMap(), nil
	}
	m, err := fragment.LoadFile(cfg.Storage.FragmentMapFile)
	if err != nil {
		return nil, fmt.Errorf("load fragment map %s: %w", cfg.Storage.FragmentMapFile, err)
	}
	return m, nil
}

// PostgresBase returns the credentials and pool settings shared by every
// PostgreSQL partition.
func PostgresBase(cfg *config.Config) postgres.Config {
	base := postgres.DefaultConfig()
	base.User = cfg.Postgres.User
	base.Password = cfg.Postgres.Password
	base.SSLMode = cfg.Postgres.SSLMode
	base.MaxConns = int32(cfg.Postgres.MaxConns)
	return base
}

// Opener returns the partition opener of the configured backend.
func Opener(cfg *config.Config, tenant string) (partition.Opener, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.Opener(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Storage.SQLiteDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", cfg.Storage.SQLiteDir, err)
		}
		return sqlite.Opener(cfg.Storage.SQLiteDir, tenant), nil
	case config.BackendPostgres:
		return postgres.Opener(PostgresBase(cfg), tenant, cfg.Postgres.AutoMigrate), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// withRetry retries opening each partition while its store comes up.
func withRetry(open partition.Opener, log *logger.Logger) partition.Opener {
	return func(ctx context.Context, p fragment.Partition) (partition.Gateway, error) {
		b := retry.Startup(func(attempt int, err error, delay time.Duration) {
			log.Warn("partition not reachable, retrying",
				logger.PartitionID(string(p.ID)),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		})
		return retry.Value(ctx, b, func(ctx context.Context) (partition.Gateway, error) {
			return open(ctx, p)
		})
	}
}

// Open connects every partition and builds the HTTP server.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return errors.New("app is already open")
	}

	m, err := LoadFragments(a.cfg)
	if err != nil {
		return err
	}
	a.fragments = m

	open, err := Opener(a.cfg, m.Tenant())
	if err != nil {
		return err
	}
	dir, err := partition.OpenDirectory(ctx, m, withRetry(open, a.log))
	if err != nil {
		return fmt.Errorf("open partitions: %w", err)
	}
	a.dir = dir
	a.log.Info("partitions opened",
		logger.String("backend", string(a.cfg.Storage.Backend)),
		logger.String("tenant", m.Tenant()),
		logger.Int("partitions", len(m.Partitions())),
	)

	ids, err := a.allocator(ctx)
	if err != nil {
		a.closeResources()
		return err
	}

	server, err := httpserver.NewServer(a.serverConfig(), a.dependencies(ids))
	if err != nil {
		a.closeResources()
		return fmt.Errorf("build http server: %w", err)
	}
	a.server = server
	a.opened = true
	return nil
}

func (a *App) allocator(ctx context.Context) (saga.IDAllocator, error) {
	if a.cfg.IDs.Allocator != config.AllocatorRedis {
		return idgen.NewScanAllocator(a.dir), nil
	}

	rcfg := redis.DefaultConfig()
	rcfg.Host = a.cfg.Redis.Host
	rcfg.Port = a.cfg.Redis.Port
	rcfg.Password = a.cfg.Redis.Password
	rcfg.DB = a.cfg.Redis.DB
	if a.cfg.Redis.DialTimeout > 0 {
		rcfg.DialTimeout = a.cfg.Redis.DialTimeout
	}
	client, err := redis.NewClient(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	a.redis = client

	key := a.cfg.IDs.RedisKey
	if key == "" {
		key = redis.CounterKey(a.fragments.Tenant(), partition.CollectionStudents)
	}
	a.log.Info("using redis id allocator", logger.String("key", key), logger.String("addr", rcfg.Addr()))
	return idgen.NewRedisAllocator(client, key, func(ctx context.Context) (int64, error) {
		return idgen.MaxNumericID(ctx, a.dir)
	}), nil
}

func (a *App) serverConfig() httpserver.Config {
	sc := httpserver.DefaultConfig()
	sc.Host = a.cfg.HTTP.Host
	sc.Port = a.cfg.HTTP.Port
	if a.cfg.HTTP.ReadTimeout > 0 {
		sc.ReadTimeout = a.cfg.HTTP.ReadTimeout
	}
	if a.cfg.HTTP.WriteTimeout > 0 {
		sc.WriteTimeout = a.cfg.HTTP.WriteTimeout
	}
	sc.APIKeyHashes = a.cfg.HTTP.APIKeyHashes
	sc.Version = a.cfg.App.Version
	return sc
}

func (a *App) dependencies(ids saga.IDAllocator) httpserver.Dependencies {
	resolver := fragment.NewResolver(a.fragments)
	return httpserver.Dependencies{
		InsertStudent:   saga.NewInsertStudentSaga(a.dir, resolver, ids, a.log),
		DeleteStudent:   saga.NewDeleteStudentSaga(a.dir, a.log),
		UpgradeYear:     saga.NewUpgradeYearSaga(a.dir, resolver, a.log),
		DeleteCourse:    saga.NewDeleteCourseSaga(a.dir, a.log),
		MoveCourse:      saga.NewMoveCourseSaga(a.dir, resolver, a.log),
		AddReview:       command.NewAddReviewHandler(a.dir, idgen.UUIDGenerator{}, a.log),
		ListStudents:    query.NewListStudentsHandler(a.dir, a.log),
		NearestDocument: query.NewNearestDocumentHandler(a.dir, resolver, a.log),
		Fragments:       a.fragments,
		Logger:          a.log,
		HealthChecker:   a.healthChecker(),
	}
}

// healthChecker registers a ping check for every partition whose gateway
// supports one, plus Redis when it is in use.
func (a *App) healthChecker() handlers.HealthChecker {
	hc := handlers.NewCompositeHealthChecker(a.cfg.App.Version)
	hc.SetTimeout(3 * time.Second)
	for _, p := range a.fragments.Partitions() {
		gw, err := a.dir.Gateway(p.ID)
		if err != nil {
			continue
		}
		if pinger, ok := gw.(handlers.Pinger); ok {
			hc.AddCheck("partition:"+string(p.ID), handlers.NewPingCheck(pinger))
		}
	}
	if a.redis != nil {
		client := a.redis
		hc.AddCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return hc
}

// Directory returns the opened partition directory.
func (a *App) Directory() *partition.Directory { return a.dir }

// Fragments returns the loaded routing table.
func (a *App) Fragments() *fragment.Map { return a.fragments }

// Handler returns the HTTP API handler. Open must have succeeded.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start opens the app if needed and starts serving HTTP. Listener errors
// arrive on the returned channel.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	a.mu.Lock()
	opened := a.opened
	a.mu.Unlock()
	if !opened {
		if err := a.Open(ctx); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil, errors.New("app is already running")
	}
	a.running = true
	a.log.Info("fragd started",
		logger.String("address", a.cfg.HTTP.Addr()),
		logger.String("env", string(a.cfg.App.Environment)),
	)
	return a.server.StartAsync(), nil
}

// Shutdown stops the HTTP server and closes every partition.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.server != nil && a.running {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		a.running = false
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	a.opened = false

	if len(errs) > 0 {
		a.log.Warn("shutdown completed with errors", logger.Err(errors.Join(errs...)))
		return errors.Join(errs...)
	}
	a.log.Info("shutdown completed")
	return nil
}

func (a *App) closeResources() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redis = nil
	}
	if a.dir != nil {
		if err := a.dir.Close(); err != nil {
			errs = append(errs, fmt.Errorf("partitions: %w", err))
		}
		a.dir = nil
	}
	return errors.Join(errs...)
}
