package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/observability"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

func newExtension(t *testing.T) (*observability.MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)), reg
}

func value(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	if !ok {
		t.Fatalf("counter %T is not a prometheus counter", c)
	}
	return testutil.ToFloat64(pc)
}

func TestStarCounters(t *testing.T) {
	m, _ := newExtension(t)
	ctx := context.Background()

	_ = m.OnStarTransactionCreated(ctx, &transaction.StarTransaction{Source: transaction.SourceChildRequest, Stars: 5})  //nolint:errcheck // always nil
	_ = m.OnStarTransactionReviewed(ctx, &transaction.StarTransaction{Status: transaction.StatusApproved, Stars: 5})     //nolint:errcheck // always nil
	_ = m.OnStarTransactionCreated(ctx, &transaction.StarTransaction{Source: transaction.SourceParentRecord, Stars: -3}) //nolint:errcheck // always nil
	_ = m.OnStarTransactionReviewed(ctx, &transaction.StarTransaction{Status: transaction.StatusRejected, Stars: 8})     //nolint:errcheck // always nil

	tests := []struct {
		name string
		c    observability.Counter
		want float64
	}{
		{"requested", m.StarsRequested, 1},
		{"recorded", m.StarsRecorded, 1},
		{"approved", m.StarsApproved, 1},
		{"rejected", m.StarsRejected, 1},
		{"awarded", m.StarsAwarded, 5},
		{"deducted", m.StarsDeducted, 3},
	}
	for _, tt := range tests {
		if got := value(t, tt.c); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGuardCounters(t *testing.T) {
	m, _ := newExtension(t)
	ctx := context.Background()

	_ = m.OnGuardRejected(ctx, id.NewMemberID(), id.NewQuestID(), guard.NewError(guard.RuleDuplicatePending, 0))          //nolint:errcheck // always nil
	_ = m.OnGuardRejected(ctx, id.NewMemberID(), id.NewQuestID(), guard.NewError(guard.RuleGlobalCooldown, time.Minute))  //nolint:errcheck // always nil
	_ = m.OnGuardRejected(ctx, id.NewMemberID(), id.NewQuestID(), guard.NewError(guard.RuleQuestCooldown, 2*time.Minute)) //nolint:errcheck // always nil

	if got := value(t, m.DuplicatePending); got != 1 {
		t.Errorf("got %v duplicates, want 1", got)
	}
	if got := value(t, m.RateLimited); got != 2 {
		t.Errorf("got %v rate limited, want 2", got)
	}
}

func TestRedemptionAndCreditCounters(t *testing.T) {
	m, _ := newExtension(t)
	ctx := context.Background()

	// parent redemptions arrive approved
	_ = m.OnRedemptionCreated(ctx, &redemption.Redemption{Status: redemption.StatusApproved, StarsSpent: 20})  //nolint:errcheck // always nil
	_ = m.OnRedemptionCreated(ctx, &redemption.Redemption{Status: redemption.StatusPending, StarsSpent: 60})   //nolint:errcheck // always nil
	_ = m.OnRedemptionReviewed(ctx, &redemption.Redemption{Status: redemption.StatusApproved, StarsSpent: 60}) //nolint:errcheck // always nil

	for _, ct := range []*credit.Transaction{
		{Type: credit.TypeCreditUsed, Amount: 30},
		{Type: credit.TypeCreditRepaid, Amount: 20},
		{Type: credit.TypeInterestCharged, Amount: 2},
	} {
		_ = m.OnCreditTransaction(ctx, ct) //nolint:errcheck // always nil
	}
	_ = m.OnSettlementCompleted(ctx, &settlement.Settlement{DebtAmount: 10, CreditLimitAdjustment: -5}) //nolint:errcheck // always nil

	tests := []struct {
		name string
		c    observability.Counter
		want float64
	}{
		{"requested", m.RedemptionsRequested, 2},
		{"approved", m.RedemptionsApproved, 1},
		{"spent", m.StarsSpent, 80},
		{"credit used", m.CreditUsed, 30},
		{"credit repaid", m.CreditRepaid, 20},
		{"interest", m.InterestCharged, 2},
		{"settlements", m.Settlements, 1},
		{"limit adjustments", m.LimitAdjustments, 1},
	}
	for _, tt := range tests {
		if got := value(t, tt.c); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPrometheusFactoryNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("starledger.stars.approved")
	b := f.Counter("starledger.stars.approved")
	if a != b {
		t.Error("same name returned two collectors")
	}
	a.Add(2)
	f.Histogram("starledger.batch.latency_ms").Observe(12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"starledger_stars_approved_total", "starledger_batch_latency_ms"} {
		if !names[want] {
			t.Errorf("metric %q not registered, have %v", want, names)
		}
	}
}
