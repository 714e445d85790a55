// Package catalog holds the quests children complete and the rewards they
// redeem stars for.
package catalog

import (
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/types"
)

// Quest is a chore or behaviour with a signed star value. Negative values
// are deductions.
type Quest struct {
	types.Entity
	ID       id.QuestID  `json:"id"`
	FamilyID id.FamilyID `json:"family_id"`
	Name     string      `json:"name"`
	Stars    int64       `json:"stars"`
	Active   bool        `json:"active"`
}

type Reward struct {
	types.Entity
	ID        id.RewardID `json:"id"`
	FamilyID  id.FamilyID `json:"family_id"`
	Name      string      `json:"name"`
	StarsCost int64       `json:"stars_cost"`
	Active    bool        `json:"active"`
}
