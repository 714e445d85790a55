// Package settlement computes periodic interest on outstanding credit and
// records one immutable settlement per child per period.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/starledger/id"
)

// Tier maps a debt range to an interest rate. MaxDebt nil means unbounded.
type Tier struct {
	ID       id.TierID       `json:"id"`
	FamilyID id.FamilyID     `json:"family_id"`
	Order    int             `json:"tier_order"`
	MinDebt  int64           `json:"min_debt"`
	MaxDebt  *int64          `json:"max_debt"`
	Rate     decimal.Decimal `json:"interest_rate"`
}

type TierBreakdown struct {
	TierOrder      int             `json:"tier_order"`
	MinDebt        int64           `json:"min_debt"`
	MaxDebt        *int64          `json:"max_debt"`
	Rate           decimal.Decimal `json:"rate"`
	DebtInTier     int64           `json:"debt_in_tier"`
	InterestAmount int64           `json:"interest_amount"`
}

type Settlement struct {
	ID                    id.SettlementID `json:"id"`
	FamilyID              id.FamilyID     `json:"family_id"`
	ChildID               id.MemberID     `json:"child_id"`
	PeriodEnd             time.Time       `json:"period_end"`
	BalanceBefore         int64           `json:"balance_before"`
	DebtAmount            int64           `json:"debt_amount"`
	InterestCalculated    int64           `json:"interest_calculated"`
	Breakdown             []TierBreakdown `json:"interest_breakdown"`
	CreditLimitBefore     int64           `json:"credit_limit_before"`
	CreditLimitAfter      int64           `json:"credit_limit_after"`
	CreditLimitAdjustment int64           `json:"credit_limit_adjustment"`
	CreatedAt             time.Time       `json:"created_at"`
}

// BreakdownTotal sums the per-tier interest amounts.
func (s *Settlement) BreakdownTotal() int64 {
	var total int64
	for _, b := range s.Breakdown {
		total += b.InterestAmount
	}
	return total
}
