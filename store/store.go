package store

import (
	"context"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// Store is the unified storage interface for every ledger entity.
// Methods are declared explicitly rather than by embedding the
// sub-interfaces so that backends can be checked against one list.
type Store interface {
	// Family methods
	CreateFamily(ctx context.Context, f *family.Family) error
	GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error)
	ListFamilies(ctx context.Context) ([]*family.Family, error)
	CreateMember(ctx context.Context, m *family.Member) error
	GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error)
	ListMembers(ctx context.Context, familyID id.FamilyID, role family.Role) ([]*family.Member, error)

	// Catalog methods
	CreateQuest(ctx context.Context, q *catalog.Quest) error
	GetQuest(ctx context.Context, questID id.QuestID) (*catalog.Quest, error)
	ListQuests(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Quest, error)
	CreateReward(ctx context.Context, r *catalog.Reward) error
	GetReward(ctx context.Context, rewardID id.RewardID) (*catalog.Reward, error)
	ListRewards(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Reward, error)

	// Star transaction methods
	CreateStarTransaction(ctx context.Context, t *transaction.StarTransaction) error
	GetStarTransaction(ctx context.Context, txID id.StarTransactionID) (*transaction.StarTransaction, error)
	ListStarTransactions(ctx context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error)
	CountStarTransactions(ctx context.Context, f transaction.ListFilter) (int64, error)
	UpdateStarTransactionStatus(ctx context.Context, txID id.StarTransactionID, from, to transaction.Status, review types.Review) error

	// Redemption methods
	CreateRedemption(ctx context.Context, r *redemption.Redemption) error
	GetRedemption(ctx context.Context, redemptionID id.RedemptionID) (*redemption.Redemption, error)
	ListRedemptions(ctx context.Context, f redemption.ListFilter) ([]*redemption.Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, redemptionID id.RedemptionID, from, to redemption.Status, review types.Review) error
	SetRedemptionCredit(ctx context.Context, redemptionID id.RedemptionID, amount int64) error

	// Credit methods
	CreateCreditTransaction(ctx context.Context, t *credit.Transaction) error
	ListCreditTransactions(ctx context.Context, childID id.MemberID) ([]*credit.Transaction, error)
	GetCreditSettings(ctx context.Context, childID id.MemberID) (*credit.Settings, error)
	ListCreditSettings(ctx context.Context, familyID id.FamilyID) ([]*credit.Settings, error)
	SaveCreditSettings(ctx context.Context, s *credit.Settings) error

	// Settlement methods
	CreateSettlement(ctx context.Context, s *settlement.Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error)
	GetSettlementForPeriod(ctx context.Context, childID id.MemberID, periodEnd time.Time) (*settlement.Settlement, error)
	ListSettlements(ctx context.Context, childID id.MemberID) ([]*settlement.Settlement, error)
	ReplaceInterestTiers(ctx context.Context, familyID id.FamilyID, tiers []*settlement.Tier) error
	ListInterestTiers(ctx context.Context, familyID id.FamilyID) ([]*settlement.Tier, error)

	// Balance cache methods
	GetCachedBalance(ctx context.Context, childID id.MemberID) (*balance.Balance, error)
	SetCachedBalance(ctx context.Context, b *balance.Balance) error
	InvalidateBalance(ctx context.Context, childID id.MemberID) error

	// Atomic runs fn inside one serializable unit of work. The Store passed
	// to fn is bound to that unit; calling Atomic on it again reuses it.
	// Returning an error from fn rolls every write back.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the entity sub-interfaces stay a subset of Store.
var (
	_ family.Store      = Store(nil)
	_ catalog.Store     = Store(nil)
	_ transaction.Store = Store(nil)
	_ redemption.Store  = Store(nil)
	_ credit.Store      = Store(nil)
	_ settlement.Store  = Store(nil)
	_ balance.Store     = Store(nil)
)
