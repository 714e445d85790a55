package settlement_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/starledger/settlement"
)

func ptr(v int64) *int64 { return &v }

func tier(order int, minDebt int64, maxDebt *int64, rate string) *settlement.Tier {
	return &settlement.Tier{
		Order:   order,
		MinDebt: minDebt,
		MaxDebt: maxDebt,
		Rate:    decimal.RequireFromString(rate),
	}
}

func TestComputeTwoTiers(t *testing.T) {
	tiers := []*settlement.Tier{
		tier(1, 0, ptr(100), "0.05"),
		tier(2, 100, nil, "0.10"),
	}

	res := settlement.DefaultCalculator().Compute(150, tiers)
	if res.Interest != 10 {
		t.Fatalf("got interest %d, want 10", res.Interest)
	}
	if len(res.Breakdown) != 2 {
		t.Fatalf("got %d breakdown rows, want 2", len(res.Breakdown))
	}
	if res.Breakdown[0].DebtInTier != 100 || res.Breakdown[0].InterestAmount != 5 {
		t.Errorf("tier 1: got %+v", res.Breakdown[0])
	}
	if res.Breakdown[1].DebtInTier != 50 || res.Breakdown[1].InterestAmount != 5 {
		t.Errorf("tier 2: got %+v", res.Breakdown[1])
	}
}

func TestComputeOrdersTiers(t *testing.T) {
	tiers := []*settlement.Tier{
		tier(2, 100, nil, "0.10"),
		tier(1, 0, ptr(100), "0.05"),
	}
	res := settlement.DefaultCalculator().Compute(150, tiers)
	if res.Breakdown[0].TierOrder != 1 || res.Breakdown[1].TierOrder != 2 {
		t.Errorf("breakdown not ordered: %+v", res.Breakdown)
	}
}

func TestZeroTierConventions(t *testing.T) {
	tiers := []*settlement.Tier{
		tier(1, 0, ptr(100), "0.05"),
		tier(2, 100, ptr(200), "0.10"),
		tier(3, 200, nil, "0.20"),
	}

	t.Run("included", func(t *testing.T) {
		res := settlement.Calculator{IncludeZeroTiers: true}.Compute(80, tiers)
		if len(res.Breakdown) != 3 {
			t.Fatalf("got %d rows, want 3", len(res.Breakdown))
		}
		for _, b := range res.Breakdown[1:] {
			if b.DebtInTier != 0 || b.InterestAmount != 0 {
				t.Errorf("unreached tier %d: got %+v", b.TierOrder, b)
			}
		}
		if res.Interest != 4 {
			t.Errorf("got interest %d, want 4", res.Interest)
		}
	})

	t.Run("omitted", func(t *testing.T) {
		res := settlement.Calculator{IncludeZeroTiers: false}.Compute(80, tiers)
		if len(res.Breakdown) != 1 {
			t.Fatalf("got %d rows, want 1", len(res.Breakdown))
		}
		if res.Interest != 4 {
			t.Errorf("got interest %d, want 4", res.Interest)
		}
	})
}

func TestRoundingPerTier(t *testing.T) {
	// Each half rounds up on its own: 0.5 + 0.5 -> 1 + 1.
	tiers := []*settlement.Tier{
		tier(1, 0, ptr(10), "0.05"),
		tier(2, 10, nil, "0.05"),
	}
	res := settlement.DefaultCalculator().Compute(20, tiers)
	if res.Interest != 2 {
		t.Errorf("got %d, want 2", res.Interest)
	}

	tests := []struct {
		debt int64
		rate string
		want int64
	}{
		{10, "0.05", 1},  // 0.5
		{30, "0.05", 2},  // 1.5
		{9, "0.05", 0},   // 0.45
		{29, "0.05", 1},  // 1.45
		{7, "0.5", 4},    // 3.5
		{1, "1", 1},      // 1
		{100, "0", 0},    // 0
		{333, "0.1", 33}, // 33.3
	}
	for _, tt := range tests {
		res := settlement.DefaultCalculator().Compute(tt.debt, []*settlement.Tier{tier(1, 0, nil, tt.rate)})
		if res.Interest != tt.want {
			t.Errorf("debt %d rate %s: got %d, want %d", tt.debt, tt.rate, res.Interest, tt.want)
		}
	}
}

func TestBreakdownSumsToTotal(t *testing.T) {
	tables := [][]*settlement.Tier{
		{tier(1, 0, ptr(50), "0.033"), tier(2, 50, ptr(75), "0.071"), tier(3, 75, nil, "0.129")},
		{tier(1, 0, nil, "0.015")},
		{tier(1, 0, ptr(3), "0.5"), tier(2, 3, ptr(7), "0.25"), tier(3, 7, nil, "0.125")},
	}
	for ti, tiers := range tables {
		for debt := int64(1); debt <= 500; debt++ {
			res := settlement.DefaultCalculator().Compute(debt, tiers)
			var sum int64
			for _, b := range res.Breakdown {
				sum += b.InterestAmount
			}
			if sum != res.Interest {
				t.Fatalf("table %d debt %d: breakdown sum %d != interest %d", ti, debt, sum, res.Interest)
			}
		}
	}
}

func TestDebtInTier(t *testing.T) {
	tests := []struct {
		name string
		debt int64
		tier *settlement.Tier
		want int64
	}{
		{"below min", 50, tier(1, 100, nil, "0.1"), 0},
		{"at min", 100, tier(1, 100, nil, "0.1"), 0},
		{"inside", 150, tier(1, 100, ptr(200), "0.1"), 50},
		{"above max", 300, tier(1, 100, ptr(200), "0.1"), 100},
		{"unbounded", 300, tier(1, 0, nil, "0.1"), 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settlement.DebtInTier(tt.debt, tt.tier); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidateTiers(t *testing.T) {
	valid := []*settlement.Tier{tier(1, 0, ptr(100), "0.05"), tier(2, 100, nil, "0.1")}
	if errs := settlement.ValidateTiers(valid); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	invalid := []*settlement.Tier{
		tier(1, -1, nil, "0.05"),
		tier(1, 10, ptr(10), "-0.1"),
	}
	// negative min, duplicate order, max not above min, negative rate
	if errs := settlement.ValidateTiers(invalid); len(errs) != 4 {
		t.Errorf("got %d errors, want 4: %v", len(errs), errs)
	}
}

func TestValidateTiersOverlap(t *testing.T) {
	tests := []struct {
		name  string
		tiers []*settlement.Tier
		want  int
	}{
		{"contiguous", []*settlement.Tier{tier(1, 0, ptr(100), "0.05"), tier(2, 100, nil, "0.1")}, 0},
		{"gap allowed", []*settlement.Tier{tier(1, 0, ptr(50), "0.05"), tier(2, 80, nil, "0.1")}, 0},
		{"overlapping ranges", []*settlement.Tier{tier(1, 0, ptr(100), "0.05"), tier(2, 50, nil, "0.1")}, 1},
		{"open-ended tier not last", []*settlement.Tier{tier(1, 0, nil, "0.05"), tier(2, 100, ptr(200), "0.1")}, 1},
		{"checked in tier order", []*settlement.Tier{tier(2, 50, nil, "0.1"), tier(1, 0, ptr(100), "0.05")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := settlement.ValidateTiers(tt.tiers); len(errs) != tt.want {
				t.Errorf("got %d errors, want %d: %v", len(errs), tt.want, errs)
			}
		})
	}
}

func TestStepPolicy(t *testing.T) {
	p := settlement.StepPolicy{Step: 10, Floor: 20}
	tests := []struct {
		name string
		in   settlement.LimitInput
		want int64
	}{
		{"maxed out tightens", settlement.LimitInput{DebtAmount: 100, CreditLimit: 100, OriginalCreditLimit: 100}, 90},
		{"floor holds", settlement.LimitInput{DebtAmount: 25, CreditLimit: 25, OriginalCreditLimit: 100}, 20},
		{"recovers toward original", settlement.LimitInput{DebtAmount: 10, CreditLimit: 80, OriginalCreditLimit: 100}, 90},
		{"caps at original", settlement.LimitInput{DebtAmount: 10, CreditLimit: 95, OriginalCreditLimit: 100}, 100},
		{"unchanged", settlement.LimitInput{DebtAmount: 10, CreditLimit: 100, OriginalCreditLimit: 100}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.NextLimit(context.Background(), tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	got, _ := settlement.KeepLimit.NextLimit(context.Background(), settlement.LimitInput{CreditLimit: 42})
	if got != 42 {
		t.Errorf("KeepLimit: got %d, want 42", got)
	}
}
