package starledger

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
)

// FamilyInput creates a family.
type FamilyInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

// MemberInput adds a parent or child to a family.
type MemberInput struct {
	FamilyID id.FamilyID `json:"family_id" validate:"required,idprefix=fam"`
	Name     string      `json:"name" validate:"required,max=100"`
	Role     family.Role `json:"role" validate:"required,oneof=parent child"`
}

// QuestInput creates a quest. Negative Stars make it a deduction.
type QuestInput struct {
	FamilyID id.FamilyID `json:"family_id" validate:"required,idprefix=fam"`
	Name     string      `json:"name" validate:"required,max=200"`
	Stars    int64       `json:"stars" validate:"ne=0"`
}

type RewardInput struct {
	FamilyID  id.FamilyID `json:"family_id" validate:"required,idprefix=fam"`
	Name      string      `json:"name" validate:"required,max=200"`
	StarsCost int64       `json:"stars_cost" validate:"gt=0"`
}

// ChildRequestInput is a child asking for stars for a quest.
type ChildRequestInput struct {
	ChildID id.MemberID `json:"child_id" validate:"required,idprefix=mbr"`
	QuestID id.QuestID  `json:"quest_id" validate:"required,idprefix=qst"`
	Note    string      `json:"note" validate:"max=500"`
}

// ParentRecordInput is a parent awarding or deducting stars directly.
// With a QuestID, Stars and Description default to the quest's values.
// Without one, both are required.
type ParentRecordInput struct {
	ChildID     id.MemberID `json:"child_id" validate:"required,idprefix=mbr"`
	CreatorID   id.MemberID `json:"creator_id" validate:"required,idprefix=mbr"`
	QuestID     id.QuestID  `json:"quest_id" validate:"omitempty,idprefix=qst"`
	Description string      `json:"description" validate:"required_without=QuestID,max=200"`
	Stars       int64       `json:"stars" validate:"required_without=QuestID"`
	Note        string      `json:"note" validate:"max=500"`
}

type RedemptionInput struct {
	ChildID  id.MemberID `json:"child_id" validate:"required,idprefix=mbr"`
	RewardID id.RewardID `json:"reward_id" validate:"required,idprefix=rwd"`
	Note     string      `json:"note" validate:"max=500"`
}

// ParentRedemptionInput records a redemption made on a child's behalf.
// It is approved immediately and never borrows.
type ParentRedemptionInput struct {
	ChildID   id.MemberID `json:"child_id" validate:"required,idprefix=mbr"`
	RewardID  id.RewardID `json:"reward_id" validate:"required,idprefix=rwd"`
	CreatorID id.MemberID `json:"creator_id" validate:"required,idprefix=mbr"`
	Note      string      `json:"note" validate:"max=500"`
}

// CreditInput configures a child's credit facility.
type CreditInput struct {
	ChildID id.MemberID `json:"child_id" validate:"required,idprefix=mbr"`
	Limit   int64       `json:"limit" validate:"gte=0"`
	Enabled bool        `json:"enabled"`
}

// TierInput is one band of the interest table. A nil MaxDebt is unbounded.
type TierInput struct {
	Order   int             `json:"tier_order"`
	MinDebt int64           `json:"min_debt"`
	MaxDebt *int64          `json:"max_debt"`
	Rate    decimal.Decimal `json:"interest_rate"`
}
