// Package redemption models a child spending stars on a reward, optionally
// borrowing part of the cost on credit.
package redemption

import (
	"time"

	"github.com/xraph/starledger/id"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFulfilled Status = "fulfilled"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusFulfilled},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFulfilled:
		return true
	}
	return false
}

// Redemption spends StarsSpent (always positive) on a reward. Its balance
// effect is -StarsSpent once approved.
type Redemption struct {
	ID             id.RedemptionID `json:"id"`
	FamilyID       id.FamilyID     `json:"family_id"`
	ChildID        id.MemberID     `json:"child_id"`
	RewardID       id.RewardID     `json:"reward_id"`
	StarsSpent     int64           `json:"stars_spent"`
	Status         Status          `json:"status"`
	ChildNote      string          `json:"child_note,omitempty"`
	ParentResponse string          `json:"parent_response,omitempty"`
	UsesCredit     bool            `json:"uses_credit"`
	CreditAmount   int64           `json:"credit_amount"`
	CreatedBy      id.MemberID     `json:"created_by"`
	ReviewedBy     id.MemberID     `json:"reviewed_by,omitzero"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	FulfilledAt    *time.Time      `json:"fulfilled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Counts reports whether the redemption contributes to the balance.
func (r *Redemption) Counts() bool {
	return r.Status == StatusApproved || r.Status == StatusFulfilled
}

// Delta is the signed balance effect of the redemption.
func (r *Redemption) Delta() int64 { return -r.StarsSpent }

// ListFilter selects redemptions. Zero fields are ignored.
type ListFilter struct {
	FamilyID id.FamilyID
	ChildID  id.MemberID
	Statuses []Status
	Limit    int
	Offset   int
}

func (f ListFilter) Match(r *Redemption) bool {
	if !f.FamilyID.IsNil() && f.FamilyID.String() != r.FamilyID.String() {
		return false
	}
	if !f.ChildID.IsNil() && f.ChildID.String() != r.ChildID.String() {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == r.Status {
			return true
		}
	}
	return false
}
