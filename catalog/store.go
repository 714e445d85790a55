package catalog

import (
	"context"

	"github.com/xraph/starledger/id"
)

type Store interface {
	CreateQuest(ctx context.Context, q *Quest) error
	GetQuest(ctx context.Context, questID id.QuestID) (*Quest, error)
	ListQuests(ctx context.Context, familyID id.FamilyID, opts ListOpts) ([]*Quest, error)
	CreateReward(ctx context.Context, r *Reward) error
	GetReward(ctx context.Context, rewardID id.RewardID) (*Reward, error)
	ListRewards(ctx context.Context, familyID id.FamilyID, opts ListOpts) ([]*Reward, error)
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
