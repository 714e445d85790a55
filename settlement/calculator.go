package settlement

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Calculator computes tiered interest. Each tier's interest is rounded
// half up on its own, so the breakdown always sums to the total.
type Calculator struct {
	// IncludeZeroTiers keeps tiers the debt does not reach in the
	// breakdown with zero amounts.
	IncludeZeroTiers bool
}

// DefaultCalculator records every tier.
func DefaultCalculator() Calculator {
	return Calculator{IncludeZeroTiers: true}
}

// Result is the outcome of one interest computation.
type Result struct {
	Interest  int64
	Breakdown []TierBreakdown
}

// Compute walks tiers by Order and charges each the part of debt that
// falls inside [MinDebt, MaxDebt).
func (c Calculator) Compute(debt int64, tiers []*Tier) Result {
	ordered := slices.Clone(tiers)
	slices.SortStableFunc(ordered, func(a, b *Tier) int { return cmp.Compare(a.Order, b.Order) })

	var res Result
	for _, t := range ordered {
		inTier := DebtInTier(debt, t)
		amount := roundHalfUp(decimal.NewFromInt(inTier).Mul(t.Rate))

		if inTier == 0 && !c.IncludeZeroTiers {
			continue
		}
		res.Interest += amount
		res.Breakdown = append(res.Breakdown, TierBreakdown{
			TierOrder:      t.Order,
			MinDebt:        t.MinDebt,
			MaxDebt:        t.MaxDebt,
			Rate:           t.Rate,
			DebtInTier:     inTier,
			InterestAmount: amount,
		})
	}
	return res
}

// DebtInTier is min(debt, MaxDebt) - MinDebt clamped to [0, debt-MinDebt].
// Tiers the debt does not reach yield zero.
func DebtInTier(debt int64, t *Tier) int64 {
	if debt <= t.MinDebt {
		return 0
	}
	upper := debt
	if t.MaxDebt != nil && *t.MaxDebt < upper {
		upper = *t.MaxDebt
	}
	in := upper - t.MinDebt
	if in < 0 {
		return 0
	}
	return min(in, debt-t.MinDebt)
}

func roundHalfUp(d decimal.Decimal) int64 {
	// Round is half away from zero, which is half up for the
	// non-negative products produced here.
	return d.Round(0).IntPart()
}

// TierError describes an invalid tier in a table.
type TierError struct {
	Index  int
	Reason string
}

func (e *TierError) Error() string {
	return fmt.Sprintf("settlement: tier %d: %s", e.Index, e.Reason)
}

// ValidateTiers checks a tier table before it is stored.
func ValidateTiers(tiers []*Tier) []error {
	var errs []error
	seen := make(map[int]bool, len(tiers))
	for i, t := range tiers {
		if t == nil {
			errs = append(errs, &TierError{Index: i, Reason: "nil tier"})
			continue
		}
		if seen[t.Order] {
			errs = append(errs, &TierError{Index: i, Reason: fmt.Sprintf("duplicate tier order %d", t.Order)})
		}
		seen[t.Order] = true
		if t.MinDebt < 0 {
			errs = append(errs, &TierError{Index: i, Reason: "min_debt must not be negative"})
		}
		if t.MaxDebt != nil && *t.MaxDebt <= t.MinDebt {
			errs = append(errs, &TierError{Index: i, Reason: "max_debt must exceed min_debt"})
		}
		if t.Rate.IsNegative() {
			errs = append(errs, &TierError{Index: i, Reason: "interest_rate must not be negative"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return overlaps(tiers)
}

// overlaps reports tiers whose range starts before the previous tier, in
// tier order, has ended. An open-ended tier must come last.
func overlaps(tiers []*Tier) []error {
	idx := make([]int, len(tiers))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return cmp.Compare(tiers[a].Order, tiers[b].Order) })

	var errs []error
	for k := 1; k < len(idx); k++ {
		prev, cur := tiers[idx[k-1]], tiers[idx[k]]
		switch {
		case prev.MaxDebt == nil:
			errs = append(errs, &TierError{Index: idx[k], Reason: fmt.Sprintf("follows open-ended tier order %d", prev.Order)})
		case cur.MinDebt < *prev.MaxDebt:
			errs = append(errs, &TierError{Index: idx[k], Reason: fmt.Sprintf("overlaps tier order %d", prev.Order)})
		}
	}
	return errs
}
