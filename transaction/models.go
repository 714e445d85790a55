// Package transaction models star transactions: quest completions and
// parent-recorded awards or deductions.
package transaction

import (
	"time"

	"github.com/xraph/starledger/id"
)

type Source string

const (
	SourceParentRecord Source = "parent_record"
	SourceChildRequest Source = "child_request"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// transitions lists the allowed next states per state.
var transitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
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
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// StarTransaction is a signed star movement for one child. Positive Stars
// credit the child.
type StarTransaction struct {
	ID             id.StarTransactionID `json:"id"`
	FamilyID       id.FamilyID          `json:"family_id"`
	ChildID        id.MemberID          `json:"child_id"`
	QuestID        id.QuestID           `json:"quest_id,omitzero"`
	Description    string               `json:"description,omitempty"`
	Stars          int64                `json:"stars"`
	Source         Source               `json:"source"`
	Status         Status               `json:"status"`
	ChildNote      string               `json:"child_note,omitempty"`
	ParentResponse string               `json:"parent_response,omitempty"`
	CreatedBy      id.MemberID          `json:"created_by"`
	ReviewedBy     id.MemberID          `json:"reviewed_by,omitzero"`
	ReviewedAt     *time.Time           `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Counts reports whether the transaction contributes to the balance.
func (t *StarTransaction) Counts() bool {
	return t.Status == StatusApproved
}

// ListFilter selects star transactions. Zero fields are ignored.
// CreatedFrom and CreatedBefore form a half-open [from, before) window.
type ListFilter struct {
	FamilyID      id.FamilyID
	ChildID       id.MemberID
	QuestID       id.QuestID
	Statuses      []Status
	Sources       []Source
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// Match reports whether t satisfies every set field of f.
func (f ListFilter) Match(t *StarTransaction) bool {
	if !f.FamilyID.IsNil() && f.FamilyID.String() != t.FamilyID.String() {
		return false
	}
	if !f.ChildID.IsNil() && f.ChildID.String() != t.ChildID.String() {
		return false
	}
	if !f.QuestID.IsNil() && f.QuestID.String() != t.QuestID.String() {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == t.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == t.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedFrom.IsZero() && t.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !t.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}
