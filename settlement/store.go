package settlement

import (
	"context"
	"time"

	"github.com/xraph/starledger/id"
)

type Store interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*Settlement, error)
	GetSettlementForPeriod(ctx context.Context, childID id.MemberID, periodEnd time.Time) (*Settlement, error)
	// ListSettlements returns the child's settlements newest first.
	ListSettlements(ctx context.Context, childID id.MemberID) ([]*Settlement, error)
	// ReplaceInterestTiers swaps the family's whole tier table.
	ReplaceInterestTiers(ctx context.Context, familyID id.FamilyID, tiers []*Tier) error
	// ListInterestTiers returns tiers ordered by Order ascending.
	ListInterestTiers(ctx context.Context, familyID id.FamilyID) ([]*Tier, error)
}
