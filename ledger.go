package starledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/plugin"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/types"
)

const instrumentationName = "github.com/xraph/starledger"

// Ledger is the star ledger engine. It is safe for concurrent use; every
// mutation runs inside one store.Atomic block.
type Ledger struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate

	now         func() time.Time
	guard       *guard.Guard
	calculator  settlement.Calculator
	limitPolicy settlement.LimitPolicy
	cache       balance.Cache
	defaultLoc  *time.Location
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		validate:    newValidator(),
		now:         time.Now,
		guard:       guard.New(guard.DefaultPolicy()),
		calculator:  settlement.DefaultCalculator(),
		limitPolicy: settlement.KeepLimit,
		defaultLoc:  time.UTC,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithClock replaces time.Now. Tests use it to drive cooldown windows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithGuardPolicy sets the duplicate and rate-limit policy for child requests.
func WithGuardPolicy(p guard.Policy) Option {
	return func(l *Ledger) {
		l.guard = guard.New(p)
	}
}

// WithCalculator sets the interest calculator used by settlements.
func WithCalculator(c settlement.Calculator) Option {
	return func(l *Ledger) {
		l.calculator = c
	}
}

// WithLimitPolicy sets how credit limits move after a settlement.
// The default keeps the limit unchanged.
func WithLimitPolicy(p settlement.LimitPolicy) Option {
	return func(l *Ledger) {
		if p != nil {
			l.limitPolicy = p
		}
	}
}

// WithBalanceCache puts an external read cache in front of the stored
// balance row.
func WithBalanceCache(c balance.Cache) Option {
	return func(l *Ledger) {
		l.cache = c
	}
}

// WithDefaultTimezone sets the zone used for families without one.
func WithDefaultTimezone(name string) Option {
	return func(l *Ledger) {
		l.defaultLoc = types.LoadLocation(name, time.UTC)
	}
}

// WithTracerProvider sets the OpenTelemetry provider for engine spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Ledger) {
		l.tracer = tp.Tracer(instrumentationName)
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		l.logger.Error("store migration failed", "error", err)
		return err
	}

	l.plugins.EmitInit(ctx, l)

	p := l.guard.Policy()
	l.logger.Info("starledger started",
		"quest_cooldown", p.QuestCooldown,
		"global_window", p.GlobalWindow,
		"global_limit", p.GlobalLimit,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts plugins down and closes the store.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	l.logger.Info("starledger stopped")
	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Logger returns the engine logger.
func (l *Ledger) Logger() *slog.Logger { return l.logger }

// Ping checks the store.
func (l *Ledger) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (l *Ledger) clock() time.Time { return l.now().UTC() }

// startSpan opens a span for op. The returned func records *errp on the
// span and ends it; call it with defer on a named error result.
func (l *Ledger) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	ctx, span := l.tracer.Start(ctx, "starledger."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}

func idAttr(key string, i id.ID) attribute.KeyValue {
	return attribute.String(key, i.String())
}

// logFailure logs storage failures at Error; domain rejections are the
// caller's business and are not logged here.
func (l *Ledger) logFailure(op string, err error, args ...any) {
	if !IsRetryable(err) && !isStorage(err) {
		return
	}
	l.logger.Error(op+" failed", append(args, "error", err, "retryable", IsRetryable(err))...)
}

// invalidateCache drops the external cached balance after a commit.
func (l *Ledger) invalidateCache(ctx context.Context, childID id.MemberID) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, childID); err != nil {
		l.logger.Warn("balance cache invalidation failed", "child_id", childID, "error", err)
	}
}
