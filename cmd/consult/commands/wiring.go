package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/internal/evaluator"
	"github.com/wonny/aegis/consult/internal/registry"
	"github.com/wonny/aegis/consult/internal/snapshot"
	"github.com/wonny/aegis/consult/internal/template"
	"github.com/wonny/aegis/consult/pkg/config"
	"github.com/wonny/aegis/consult/pkg/database"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/metrics"
	"github.com/wonny/aegis/consult/pkg/redis"
)

// keyPrefix namespaces every Redis key written by this service
const keyPrefix = "consult"

// app holds the shared dependencies of every subcommand
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB      // nil unless a postgres backend is selected
	rdb *redis.Client     // disabled client when REDIS_ENABLED=false
	rec *metrics.Recorder // nil when METRICS_ENABLED=false

	instances contracts.InstanceSource
	templates contracts.TemplateSource
}

// newApp loads config and connects the selected backends.
// The evaluator is built lazily by engine() so that read-only commands work without credentials.
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	a := &app{cfg: cfg, log: logger.New(cfg)}

	// 3. Connect to database (postgres backends only)
	if cfg.UsesPostgres() {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.log.Debug("Connected to database")
	}

	// 4. Connect to Redis
	rdb, err := redis.New(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb

	// 5. Registry + templates
	switch cfg.Registry.Backend {
	case "postgres":
		a.instances = registry.NewPostgresSource(a.db.Pool)
		a.templates = template.NewPostgresStore(a.db.Pool)
	default:
		a.instances = registry.NewFileSource(cfg.Registry.InstancesDir)
		a.templates = template.NewFileStore(cfg.Registry.TemplatesDir)
	}

	if rdb.Enabled() && cfg.Registry.CacheTTL > 0 {
		cache := redis.NewCache(rdb, keyPrefix)
		a.instances = registry.NewCachedSource(a.instances, cache, cfg.Registry.CacheTTL, a.log)
	}

	return a, nil
}

// snapshots returns the configured append-only snapshot store
func (a *app) snapshots() contracts.SnapshotWriter {
	switch a.cfg.Snapshot.Backend {
	case "postgres":
		return snapshot.NewPostgresWriter(a.db.Pool)
	case "redis":
		return snapshot.NewRedisWriter(a.rdb, keyPrefix, a.cfg.Snapshot.TTL)
	default:
		return snapshot.NewFileWriter(a.cfg.Snapshot.Dir)
	}
}

// engine builds the consultation engine with the configured evaluator
func (a *app) engine() (*consult.Engine, error) {
	ev, err := evaluator.New(a.cfg, a.rdb, a.log)
	if err != nil {
		return nil, fmt.Errorf("create evaluator: %w", err)
	}

	if a.cfg.MetricsEnabled && a.rec == nil {
		a.rec = metrics.New(prometheus.DefaultRegisterer)
	}

	return consult.NewEngine(a.instances, a.templates, a.snapshots(), ev, a.rec, a.log), nil
}

// baseRequest returns a request carrying the configured run limits
func (a *app) baseRequest() consult.Request {
	return consult.Request{
		SectorFilter:     a.cfg.Consult.DefaultSector,
		MaxConcurrent:    a.cfg.Consult.MaxConcurrent,
		PerCallTimeoutMs: int(a.cfg.Consult.PerCallTimeout.Milliseconds()),
		RunDeadlineMs:    int(a.cfg.Consult.RunDeadline.Milliseconds()),
	}
}

// Close releases database and Redis connections
func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
