// Package credit holds per-child credit settings and the credit accounting
// records (usage, repayment, interest) that track outstanding debt.
package credit

import (
	"time"

	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/types"
)

type Type string

const (
	TypeCreditUsed      Type = "credit_used"
	TypeCreditRepaid    Type = "credit_repaid"
	TypeInterestCharged Type = "interest_charged"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCreditUsed, TypeCreditRepaid, TypeInterestCharged:
		return true
	}
	return false
}

// DebtEffect returns the signed change to outstanding debt.
func (t Type) DebtEffect(amount int64) int64 {
	if t == TypeCreditRepaid {
		return -amount
	}
	return amount
}

// StarEffect returns the signed change to the child's current stars.
// Usage and repayment only account for stars already moved by a redemption
// or an earning transaction; interest is a fresh charge.
func (t Type) StarEffect(amount int64) int64 {
	if t == TypeInterestCharged {
		return -amount
	}
	return 0
}

// Transaction is a final, never-mutated credit accounting record.
// BalanceAfter is the outstanding debt once the row is applied.
type Transaction struct {
	ID           id.CreditTransactionID `json:"id"`
	FamilyID     id.FamilyID            `json:"family_id"`
	ChildID      id.MemberID            `json:"child_id"`
	RedemptionID id.RedemptionID        `json:"redemption_id,omitzero"`
	SettlementID id.SettlementID        `json:"settlement_id,omitzero"`
	Type         Type                   `json:"type"`
	Amount       int64                  `json:"amount"`
	BalanceAfter int64                  `json:"balance_after"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Settings is the credit facility of one child.
type Settings struct {
	types.Entity
	ChildID             id.MemberID `json:"child_id"`
	FamilyID            id.FamilyID `json:"family_id"`
	CreditLimit         int64       `json:"credit_limit"`
	OriginalCreditLimit int64       `json:"original_credit_limit"`
	Enabled             bool        `json:"enabled"`
}

// Debt folds transactions into outstanding debt, clamped at zero.
func Debt(txs []*Transaction) int64 {
	var debt int64
	for _, t := range txs {
		debt += t.Type.DebtEffect(t.Amount)
	}
	if debt < 0 {
		return 0
	}
	return debt
}
