// Package observability provides a metrics extension for the star ledger
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/plugin"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                    = (*MetricsExtension)(nil)
	_ plugin.OnInit                    = (*MetricsExtension)(nil)
	_ plugin.OnFamilyCreated           = (*MetricsExtension)(nil)
	_ plugin.OnMemberAdded             = (*MetricsExtension)(nil)
	_ plugin.OnStarTransactionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnStarTransactionReviewed = (*MetricsExtension)(nil)
	_ plugin.OnGuardRejected           = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionCreated       = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionReviewed      = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionFulfilled     = (*MetricsExtension)(nil)
	_ plugin.OnCreditTransaction       = (*MetricsExtension)(nil)
	_ plugin.OnSettlementCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnBalanceDrift            = (*MetricsExtension)(nil)
	_ plugin.OnBatchCompleted          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a ledger plugin to track stars, redemptions and credit.
type MetricsExtension struct {
	factory MetricFactory

	// Family metrics
	FamiliesCreated Counter
	MembersAdded    Counter

	// Star metrics
	StarsRequested   Counter
	StarsRecorded    Counter
	StarsApproved    Counter
	StarsRejected    Counter
	StarsAwarded     Counter
	StarsDeducted    Counter
	DuplicatePending Counter
	RateLimited      Counter

	// Redemption metrics
	RedemptionsRequested Counter
	RedemptionsApproved  Counter
	RedemptionsRejected  Counter
	RedemptionsFulfilled Counter
	StarsSpent           Counter
	RedemptionCost       Histogram

	// Credit metrics
	CreditUsed       Counter
	CreditRepaid     Counter
	InterestCharged  Counter
	Settlements      Counter
	SettlementDebt   Histogram
	LimitAdjustments Counter

	// Integrity metrics
	BalanceDrift  Counter
	BatchItemsOK  Counter
	BatchFailures Counter
	BatchLatency  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory outside forge, app.Metrics() inside it.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		FamiliesCreated: factory.Counter("starledger.family.created"),
		MembersAdded:    factory.Counter("starledger.member.added"),

		StarsRequested:   factory.Counter("starledger.stars.requested"),
		StarsRecorded:    factory.Counter("starledger.stars.recorded"),
		StarsApproved:    factory.Counter("starledger.stars.approved"),
		StarsRejected:    factory.Counter("starledger.stars.rejected"),
		StarsAwarded:     factory.Counter("starledger.stars.awarded"),
		StarsDeducted:    factory.Counter("starledger.stars.deducted"),
		DuplicatePending: factory.Counter("starledger.guard.duplicate_pending"),
		RateLimited:      factory.Counter("starledger.guard.rate_limited"),

		RedemptionsRequested: factory.Counter("starledger.redemption.requested"),
		RedemptionsApproved:  factory.Counter("starledger.redemption.approved"),
		RedemptionsRejected:  factory.Counter("starledger.redemption.rejected"),
		RedemptionsFulfilled: factory.Counter("starledger.redemption.fulfilled"),
		StarsSpent:           factory.Counter("starledger.redemption.stars_spent"),
		RedemptionCost:       factory.Histogram("starledger.redemption.cost"),

		CreditUsed:       factory.Counter("starledger.credit.used"),
		CreditRepaid:     factory.Counter("starledger.credit.repaid"),
		InterestCharged:  factory.Counter("starledger.credit.interest_charged"),
		Settlements:      factory.Counter("starledger.settlement.completed"),
		SettlementDebt:   factory.Histogram("starledger.settlement.debt"),
		LimitAdjustments: factory.Counter("starledger.settlement.limit_adjusted"),

		BalanceDrift:  factory.Counter("starledger.balance.drift"),
		BatchItemsOK:  factory.Counter("starledger.batch.succeeded"),
		BatchFailures: factory.Counter("starledger.batch.failed"),
		BatchLatency:  factory.Histogram("starledger.batch.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Family hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnFamilyCreated(_ context.Context, _ *family.Family) error {
	m.FamiliesCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnMemberAdded(_ context.Context, _ *family.Member) error {
	m.MembersAdded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Star transaction hooks
// ──────────────────────────────────────────────────

// OnStarTransactionCreated implements plugin.OnStarTransactionCreated.
// Parent records are approved on creation, so their stars count here.
func (m *MetricsExtension) OnStarTransactionCreated(_ context.Context, t *transaction.StarTransaction) error {
	if t.Source == transaction.SourceChildRequest {
		m.StarsRequested.Inc()
		return nil
	}
	m.StarsRecorded.Inc()
	m.countStars(t.Stars)
	return nil
}

func (m *MetricsExtension) OnStarTransactionReviewed(_ context.Context, t *transaction.StarTransaction) error {
	if t.Status == transaction.StatusRejected {
		m.StarsRejected.Inc()
		return nil
	}
	m.StarsApproved.Inc()
	m.countStars(t.Stars)
	return nil
}

func (m *MetricsExtension) OnGuardRejected(_ context.Context, _ id.MemberID, _ id.QuestID, gerr *guard.Error) error {
	if gerr.Rule == guard.RuleDuplicatePending {
		m.DuplicatePending.Inc()
	} else {
		m.RateLimited.Inc()
	}
	return nil
}

func (m *MetricsExtension) countStars(stars int64) {
	if stars >= 0 {
		m.StarsAwarded.Add(float64(stars))
	} else {
		m.StarsDeducted.Add(float64(-stars))
	}
}

// ──────────────────────────────────────────────────
// Redemption hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnRedemptionCreated(_ context.Context, r *redemption.Redemption) error {
	m.RedemptionsRequested.Inc()
	m.RedemptionCost.Observe(float64(r.StarsSpent))
	if r.Status == redemption.StatusApproved {
		m.StarsSpent.Add(float64(r.StarsSpent))
	}
	return nil
}

func (m *MetricsExtension) OnRedemptionReviewed(_ context.Context, r *redemption.Redemption) error {
	if r.Status == redemption.StatusRejected {
		m.RedemptionsRejected.Inc()
		return nil
	}
	m.RedemptionsApproved.Inc()
	m.StarsSpent.Add(float64(r.StarsSpent))
	return nil
}

func (m *MetricsExtension) OnRedemptionFulfilled(_ context.Context, _ *redemption.Redemption) error {
	m.RedemptionsFulfilled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnCreditTransaction(_ context.Context, t *credit.Transaction) error {
	amount := float64(t.Amount)
	switch t.Type {
	case credit.TypeCreditUsed:
		m.CreditUsed.Add(amount)
	case credit.TypeCreditRepaid:
		m.CreditRepaid.Add(amount)
	case credit.TypeInterestCharged:
		m.InterestCharged.Add(amount)
	}
	return nil
}

func (m *MetricsExtension) OnSettlementCompleted(_ context.Context, s *settlement.Settlement) error {
	m.Settlements.Inc()
	m.SettlementDebt.Observe(float64(s.DebtAmount))
	if s.CreditLimitAdjustment != 0 {
		m.LimitAdjustments.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Integrity hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnBalanceDrift(_ context.Context, _, _ *balance.Balance) error {
	m.BalanceDrift.Inc()
	return nil
}

func (m *MetricsExtension) OnBatchCompleted(_ context.Context, _ string, succeeded, failed int, elapsed time.Duration) error {
	m.BatchItemsOK.Add(float64(succeeded))
	m.BatchFailures.Add(float64(failed))
	m.BatchLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
