// Package types provides small value types shared across the star ledger.
package types

import (
	"time"

	"github.com/xraph/starledger/id"
)

// Entity carries the timestamps embedded in mutable catalog records
// (families, members, quests, rewards, credit settings).
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped with t in UTC.
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch sets UpdatedAt to t in UTC.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// Review records who moved a ledger entry out of pending and when.
type Review struct {
	ReviewerID id.MemberID `json:"reviewer_id"`
	At         time.Time   `json:"at"`
	Response   string      `json:"response,omitempty"`
}
