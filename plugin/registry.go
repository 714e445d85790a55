package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry holds registered plugins with their hook interfaces resolved
// once at registration, so dispatch is a slice walk.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                    []OnInit
	onShutdown                []OnShutdown
	onFamilyCreated           []OnFamilyCreated
	onMemberAdded             []OnMemberAdded
	onStarTransactionCreated  []OnStarTransactionCreated
	onStarTransactionReviewed []OnStarTransactionReviewed
	onGuardRejected           []OnGuardRejected
	onRedemptionCreated       []OnRedemptionCreated
	onRedemptionReviewed      []OnRedemptionReviewed
	onRedemptionFulfilled     []OnRedemptionFulfilled
	onCreditTransaction       []OnCreditTransaction
	onSettlementCompleted     []OnSettlementCompleted
	onBalanceDrift            []OnBalanceDrift
	onBatchCompleted          []OnBatchCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func appendIf[T any](list []T, p Plugin) []T {
	if v, ok := p.(T); ok {
		return append(list, v)
	}
	return list
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	r.onInit = appendIf(r.onInit, p)
	r.onShutdown = appendIf(r.onShutdown, p)
	r.onFamilyCreated = appendIf(r.onFamilyCreated, p)
	r.onMemberAdded = appendIf(r.onMemberAdded, p)
	r.onStarTransactionCreated = appendIf(r.onStarTransactionCreated, p)
	r.onStarTransactionReviewed = appendIf(r.onStarTransactionReviewed, p)
	r.onGuardRejected = appendIf(r.onGuardRejected, p)
	r.onRedemptionCreated = appendIf(r.onRedemptionCreated, p)
	r.onRedemptionReviewed = appendIf(r.onRedemptionReviewed, p)
	r.onRedemptionFulfilled = appendIf(r.onRedemptionFulfilled, p)
	r.onCreditTransaction = appendIf(r.onCreditTransaction, p)
	r.onSettlementCompleted = appendIf(r.onSettlementCompleted, p)
	r.onBalanceDrift = appendIf(r.onBalanceDrift, p)
	r.onBatchCompleted = appendIf(r.onBatchCompleted, p)

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnFamilyCreated", reflect.TypeFor[OnFamilyCreated]()},
	{"OnMemberAdded", reflect.TypeFor[OnMemberAdded]()},
	{"OnStarTransactionCreated", reflect.TypeFor[OnStarTransactionCreated]()},
	{"OnStarTransactionReviewed", reflect.TypeFor[OnStarTransactionReviewed]()},
	{"OnGuardRejected", reflect.TypeFor[OnGuardRejected]()},
	{"OnRedemptionCreated", reflect.TypeFor[OnRedemptionCreated]()},
	{"OnRedemptionReviewed", reflect.TypeFor[OnRedemptionReviewed]()},
	{"OnRedemptionFulfilled", reflect.TypeFor[OnRedemptionFulfilled]()},
	{"OnCreditTransaction", reflect.TypeFor[OnCreditTransaction]()},
	{"OnSettlementCompleted", reflect.TypeFor[OnSettlementCompleted]()},
	{"OnBalanceDrift", reflect.TypeFor[OnBalanceDrift]()},
	{"OnBatchCompleted", reflect.TypeFor[OnBatchCompleted]()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in list. Failures are logged and never
// returned: a hook must not fail the ledger write that triggered it.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, l) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitFamilyCreated(ctx context.Context, f *family.Family) {
	emit(ctx, r, "OnFamilyCreated", &r.onFamilyCreated, func(p OnFamilyCreated) error {
		return p.OnFamilyCreated(ctx, f)
	})
}

func (r *Registry) EmitMemberAdded(ctx context.Context, m *family.Member) {
	emit(ctx, r, "OnMemberAdded", &r.onMemberAdded, func(p OnMemberAdded) error {
		return p.OnMemberAdded(ctx, m)
	})
}

func (r *Registry) EmitStarTransactionCreated(ctx context.Context, t *transaction.StarTransaction) {
	emit(ctx, r, "OnStarTransactionCreated", &r.onStarTransactionCreated, func(p OnStarTransactionCreated) error {
		return p.OnStarTransactionCreated(ctx, t)
	})
}

func (r *Registry) EmitStarTransactionReviewed(ctx context.Context, t *transaction.StarTransaction) {
	emit(ctx, r, "OnStarTransactionReviewed", &r.onStarTransactionReviewed, func(p OnStarTransactionReviewed) error {
		return p.OnStarTransactionReviewed(ctx, t)
	})
}

func (r *Registry) EmitGuardRejected(ctx context.Context, childID id.MemberID, questID id.QuestID, gerr *guard.Error) {
	emit(ctx, r, "OnGuardRejected", &r.onGuardRejected, func(p OnGuardRejected) error {
		return p.OnGuardRejected(ctx, childID, questID, gerr)
	})
}

func (r *Registry) EmitRedemptionCreated(ctx context.Context, rd *redemption.Redemption) {
	emit(ctx, r, "OnRedemptionCreated", &r.onRedemptionCreated, func(p OnRedemptionCreated) error {
		return p.OnRedemptionCreated(ctx, rd)
	})
}

func (r *Registry) EmitRedemptionReviewed(ctx context.Context, rd *redemption.Redemption) {
	emit(ctx, r, "OnRedemptionReviewed", &r.onRedemptionReviewed, func(p OnRedemptionReviewed) error {
		return p.OnRedemptionReviewed(ctx, rd)
	})
}

func (r *Registry) EmitRedemptionFulfilled(ctx context.Context, rd *redemption.Redemption) {
	emit(ctx, r, "OnRedemptionFulfilled", &r.onRedemptionFulfilled, func(p OnRedemptionFulfilled) error {
		return p.OnRedemptionFulfilled(ctx, rd)
	})
}

func (r *Registry) EmitCreditTransaction(ctx context.Context, t *credit.Transaction) {
	emit(ctx, r, "OnCreditTransaction", &r.onCreditTransaction, func(p OnCreditTransaction) error {
		return p.OnCreditTransaction(ctx, t)
	})
}

func (r *Registry) EmitSettlementCompleted(ctx context.Context, s *settlement.Settlement) {
	emit(ctx, r, "OnSettlementCompleted", &r.onSettlementCompleted, func(p OnSettlementCompleted) error {
		return p.OnSettlementCompleted(ctx, s)
	})
}

func (r *Registry) EmitBalanceDrift(ctx context.Context, cached, actual *balance.Balance) {
	emit(ctx, r, "OnBalanceDrift", &r.onBalanceDrift, func(p OnBalanceDrift) error {
		return p.OnBalanceDrift(ctx, cached, actual)
	})
}

func (r *Registry) EmitBatchCompleted(ctx context.Context, op string, succeeded, failed int, elapsed time.Duration) {
	emit(ctx, r, "OnBatchCompleted", &r.onBatchCompleted, func(p OnBatchCompleted) error {
		return p.OnBatchCompleted(ctx, op, succeeded, failed, elapsed)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// A slow plugin must never stall the request that triggered it.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
