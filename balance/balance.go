// Package balance derives a child's star balance from the ledger.
//
// Project is a pure function over ledger entries; the cache types only
// store its output and are always rebuildable from the ledger.
package balance

import (
	"time"

	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/transaction"
)

type Balance struct {
	ChildID         id.MemberID `json:"child_id"`
	CurrentStars    int64       `json:"current_stars"`
	LifetimeStars   int64       `json:"lifetime_stars"`
	CreditUsed      int64       `json:"credit_used"`
	AvailableCredit int64       `json:"available_credit"`
	SpendableStars  int64       `json:"spendable_stars"`
	CreditLimit     int64       `json:"credit_limit"`
	CreditEnabled   bool        `json:"credit_enabled"`
	// LastEntryID is the newest balance-affecting entry folded in.
	LastEntryID id.ID     `json:"last_entry_id,omitzero"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Input is everything Project needs. Entries in any status may be passed;
// only those that count are folded in.
type Input struct {
	ChildID      id.MemberID
	Transactions []*transaction.StarTransaction
	Redemptions  []*redemption.Redemption
	Credit       []*credit.Transaction
	Settings     *credit.Settings
}

// Project computes the balance. It has no side effects and returns the
// same result for the same input.
func Project(in Input, now time.Time) Balance {
	b := Balance{ChildID: in.ChildID, ComputedAt: now.UTC()}
	var last id.ID

	for _, t := range in.Transactions {
		if !t.Counts() {
			continue
		}
		b.CurrentStars += t.Stars
		if t.Stars > 0 {
			b.LifetimeStars += t.Stars
		}
		last = newest(last, t.ID)
	}
	for _, r := range in.Redemptions {
		if !r.Counts() {
			continue
		}
		b.CurrentStars += r.Delta()
		last = newest(last, r.ID)
	}
	for _, c := range in.Credit {
		b.CurrentStars += c.Type.StarEffect(c.Amount)
		last = newest(last, c.ID)
	}
	b.CreditUsed = credit.Debt(in.Credit)
	b.LastEntryID = last

	spendable := max(b.CurrentStars, 0)
	if s := in.Settings; s != nil && s.Enabled {
		b.CreditEnabled = true
		b.CreditLimit = s.CreditLimit
		b.AvailableCredit = max(s.CreditLimit-b.CreditUsed, 0)
		spendable += b.AvailableCredit
	}
	b.SpendableStars = spendable
	return b
}

// newest keeps the id with the later embedded timestamp. TypeIDs sort by
// creation time within the suffix, so the suffix comparison is enough.
func newest(cur, candidate id.ID) id.ID {
	if cur.IsNil() || suffix(candidate) > suffix(cur) {
		return candidate
	}
	return cur
}

func suffix(i id.ID) string {
	s := i.String()
	return s[len(i.Prefix())+1:]
}

// CreditFor is the portion of cost that must be borrowed given current
// stars, and whether the available credit covers it.
func CreditFor(b Balance, cost int64) (amount int64, ok bool) {
	own := max(b.CurrentStars, 0)
	if cost <= own {
		return 0, true
	}
	amount = cost - own
	if !b.CreditEnabled || amount > b.AvailableCredit {
		return amount, false
	}
	return amount, true
}

// SameTotals reports whether b and o agree on every derived amount.
// ComputedAt and LastEntryID are ignored.
func (b Balance) SameTotals(o Balance) bool {
	return b.CurrentStars == o.CurrentStars &&
		b.LifetimeStars == o.LifetimeStars &&
		b.CreditUsed == o.CreditUsed &&
		b.AvailableCredit == o.AvailableCredit &&
		b.SpendableStars == o.SpendableStars &&
		b.CreditLimit == o.CreditLimit &&
		b.CreditEnabled == o.CreditEnabled
}
