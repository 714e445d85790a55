package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/starledger"
	audithook "github.com/xraph/starledger/audit_hook"
	"github.com/xraph/starledger/balance/rediscache"
	"github.com/xraph/starledger/config"
	"github.com/xraph/starledger/id"
	kafkahook "github.com/xraph/starledger/kafka_hook"
	"github.com/xraph/starledger/observability"
	"github.com/xraph/starledger/scheduler"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/store/memory"
	mongostore "github.com/xraph/starledger/store/mongo"
	pgstore "github.com/xraph/starledger/store/postgres"
	sqlitestore "github.com/xraph/starledger/store/sqlite"
)

// app is a fully wired ledger plus the clients it owns.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	ledger   *starledger.Ledger
	redis    *redis.Client
	registry *prometheus.Registry
}

func build(ctx context.Context, cfg config.Config) (*app, error) {
	logger := cfg.Log.Logger(os.Stderr)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []starledger.Option{
		starledger.WithLogger(logger),
		starledger.WithGuardPolicy(cfg.Guard.Policy()),
		starledger.WithDefaultTimezone(cfg.DefaultTimezone),
		starledger.WithPluginTimeout(cfg.PluginTimeout),
		starledger.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(a.registry))),
	}

	if cfg.AuditLog {
		opts = append(opts, starledger.WithPlugin(audithook.New(slogRecorder(logger), audithook.WithLogger(logger))))
	}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, starledger.WithBalanceCache(rediscache.New(a.redis, rediscache.WithTTL(cfg.Redis.CacheTTL))))
	}

	if cfg.Kafka.Enabled() {
		w := kafkahook.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts = append(opts, starledger.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(logger))))
	}

	a.ledger = starledger.New(s, opts...)
	return a, nil
}

// close stops the ledger, which closes the store, then the Redis client.
func (a *app) close() error {
	err := a.ledger.Stop()
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	return err
}

// runner builds the settlement scheduler for the configured families, or
// every family when none are listed.
func (a *app) runner() (*scheduler.Runner, error) {
	sc := a.cfg.Settlement

	source := func(ctx context.Context) ([]id.FamilyID, error) {
		families, err := a.ledger.ListFamilies(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]id.FamilyID, 0, len(families))
		for _, f := range families {
			ids = append(ids, f.ID)
		}
		return ids, nil
	}
	if len(sc.Families) > 0 {
		ids := make([]id.FamilyID, 0, len(sc.Families))
		for _, raw := range sc.Families {
			famID, err := id.ParseFamilyID(raw)
			if err != nil {
				return nil, fmt.Errorf("settlement.families: %w", err)
			}
			ids = append(ids, famID)
		}
		source = scheduler.Static(ids...)
	}

	period := scheduler.Daily()
	if !strings.EqualFold(sc.Period, "daily") {
		day, err := sc.PeriodWeekday()
		if err != nil {
			return nil, err
		}
		period = scheduler.Weekly(day)
	}

	var locker scheduler.Locker
	if a.redis != nil {
		locker = scheduler.NewRedisLocker(a.redis)
	}

	return scheduler.New(a.ledger, source, locker,
		scheduler.WithLogger(a.logger),
		scheduler.WithInterval(sc.Interval),
		scheduler.WithLockTTL(sc.LockTTL),
		scheduler.WithPeriod(period),
	), nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "memory":
		return memory.New(), nil

	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, sc.DSN); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, err
		}
		return sqlitestore.New(db), nil

	case "postgres":
		drv := pgdriver.New()
		if err := drv.Open(ctx, sc.DSN); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, err
		}
		return pgstore.New(db), nil

	case "mongo":
		drv := mongodriver.New()
		if err := drv.Open(ctx, sc.DSN, mongodriver.WithDatabase(sc.Database)); err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, err
		}
		return mongostore.New(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// slogRecorder writes audit events as structured log lines.
func slogRecorder(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"category", ev.Category,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"reason", ev.Reason,
			"metadata", ev.Metadata,
		)
		return nil
	}
}
