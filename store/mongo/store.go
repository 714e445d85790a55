package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	ledgerstore "github.com/xraph/starledger/store"
	"github.com/xraph/starledger/store/model"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// querier is satisfied by both *mongodriver.MongoDB and *mongodriver.MongoTx.
type querier interface {
	NewFind(model ...any) *mongodriver.FindQuery
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
	NewDelete(model any) *mongodriver.DeleteQuery
}

// Store implements store.Store using MongoDB via Grove ORM.
//
// Atomic needs a replica set or sharded cluster. Mongo transactions run at
// snapshot isolation, so every ledger write inside a transaction also bumps
// a counter on the child's member document. Two transactions writing for
// the same child then collide with a WriteConflict, which surfaces as a
// retryable storage error.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
	q   querier
	tx  *mongodriver.MongoTx
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	mdb := mongodriver.Unwrap(db)
	return &Store{db: db, mdb: mdb, q: mdb}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("starledger/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.Ping(ctx))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a multi-document transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return wrap("begin", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("starledger/mongo: unexpected transaction type %T", raw)
	}
	bound := &Store{db: s.db, mdb: s.mdb, q: tx, tx: tx}

	if err := fn(ctx, bound); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error wins
		return err
	}
	return wrap("commit", tx.Commit())
}

// touchChild serializes concurrent ledger writes for one child.
func (s *Store) touchChild(ctx context.Context, childID id.MemberID) error {
	if s.tx == nil {
		return nil
	}
	_, err := s.q.NewUpdate((*model.Member)(nil)).
		Filter(bson.M{"_id": childID.String()}).
		SetUpdate(bson.M{"$inc": bson.M{"write_seq": 1}}).
		Exec(ctx)
	return wrap("touch child", err)
}

// ==================== Family Store ====================

func (s *Store) CreateFamily(ctx context.Context, f *family.Family) error {
	_, err := s.q.NewInsert(model.ToFamily(f)).Exec(ctx)
	return wrap("create family", err)
}

func (s *Store) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	var m model.Family
	if err := s.findOne(ctx, &m, familyID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrFamilyNotFound
		}
		return nil, wrap("get family", err)
	}
	return model.FromFamily(&m)
}

func (s *Store) ListFamilies(ctx context.Context) ([]*family.Family, error) {
	var models []model.Family
	err := s.q.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list families", err)
	}
	return convert(models, model.FromFamily)
}

func (s *Store) CreateMember(ctx context.Context, m *family.Member) error {
	_, err := s.q.NewInsert(model.ToMember(m)).Exec(ctx)
	return wrap("create member", err)
}

func (s *Store) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	var m model.Member
	if err := s.findOne(ctx, &m, memberID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrMemberNotFound
		}
		return nil, wrap("get member", err)
	}
	return model.FromMember(&m)
}

func (s *Store) ListMembers(ctx context.Context, familyID id.FamilyID, role family.Role) ([]*family.Member, error) {
	var models []model.Member
	filter := bson.M{"family_id": familyID.String()}
	if role != "" {
		filter["role"] = string(role)
	}
	err := s.q.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list members", err)
	}
	return convert(models, model.FromMember)
}

// ==================== Catalog Store ====================

func (s *Store) CreateQuest(ctx context.Context, q *catalog.Quest) error {
	_, err := s.q.NewInsert(model.ToQuest(q)).Exec(ctx)
	return wrap("create quest", err)
}

func (s *Store) GetQuest(ctx context.Context, questID id.QuestID) (*catalog.Quest, error) {
	var m model.Quest
	if err := s.findOne(ctx, &m, questID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrQuestNotFound
		}
		return nil, wrap("get quest", err)
	}
	return model.FromQuest(&m)
}

func (s *Store) ListQuests(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Quest, error) {
	var models []model.Quest
	q := s.q.NewFind(&models).
		Filter(catalogFilter(familyID, opts)).
		Sort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	if err := page(q, opts.Limit, opts.Offset).Scan(ctx); err != nil {
		return nil, wrap("list quests", err)
	}
	return convert(models, model.FromQuest)
}

func (s *Store) CreateReward(ctx context.Context, r *catalog.Reward) error {
	_, err := s.q.NewInsert(model.ToReward(r)).Exec(ctx)
	return wrap("create reward", err)
}

func (s *Store) GetReward(ctx context.Context, rewardID id.RewardID) (*catalog.Reward, error) {
	var m model.Reward
	if err := s.findOne(ctx, &m, rewardID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrRewardNotFound
		}
		return nil, wrap("get reward", err)
	}
	return model.FromReward(&m)
}

func (s *Store) ListRewards(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Reward, error) {
	var models []model.Reward
	q := s.q.NewFind(&models).
		Filter(catalogFilter(familyID, opts)).
		Sort(bson.D{{Key: "stars_cost", Value: 1}, {Key: "_id", Value: 1}})
	if err := page(q, opts.Limit, opts.Offset).Scan(ctx); err != nil {
		return nil, wrap("list rewards", err)
	}
	return convert(models, model.FromReward)
}

func catalogFilter(familyID id.FamilyID, opts catalog.ListOpts) bson.M {
	filter := bson.M{"family_id": familyID.String()}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	return filter
}

// ==================== Star Transaction Store ====================

func (s *Store) CreateStarTransaction(ctx context.Context, t *transaction.StarTransaction) error {
	if err := s.touchChild(ctx, t.ChildID); err != nil {
		return err
	}
	_, err := s.q.NewInsert(model.ToStarTransaction(t)).Exec(ctx)
	return wrap("create star transaction", err)
}

func (s *Store) GetStarTransaction(ctx context.Context, txID id.StarTransactionID) (*transaction.StarTransaction, error) {
	var m model.StarTransaction
	if err := s.findOne(ctx, &m, txID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrEntryNotFound
		}
		return nil, wrap("get star transaction", err)
	}
	return model.FromStarTransaction(&m)
}

func (s *Store) ListStarTransactions(ctx context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error) {
	var models []model.StarTransaction
	q := s.q.NewFind(&models).
		Filter(starTransactionFilter(f)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := page(q, f.Limit, f.Offset).Scan(ctx); err != nil {
		return nil, wrap("list star transactions", err)
	}
	return convert(models, model.FromStarTransaction)
}

func (s *Store) CountStarTransactions(ctx context.Context, f transaction.ListFilter) (int64, error) {
	n, err := s.q.NewFind((*model.StarTransaction)(nil)).
		Filter(starTransactionFilter(f)).
		Count(ctx)
	if err != nil {
		return 0, wrap("count star transactions", err)
	}
	return n, nil
}

func starTransactionFilter(f transaction.ListFilter) bson.M {
	filter := bson.M{}
	if !f.FamilyID.IsNil() {
		filter["family_id"] = f.FamilyID.String()
	}
	if !f.ChildID.IsNil() {
		filter["child_id"] = f.ChildID.String()
	}
	if !f.QuestID.IsNil() {
		filter["quest_id"] = f.QuestID.String()
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if len(f.Sources) > 0 {
		sources := make([]string, len(f.Sources))
		for i, src := range f.Sources {
			sources[i] = string(src)
		}
		filter["source"] = bson.M{"$in": sources}
	}
	created := bson.M{}
	if !f.CreatedFrom.IsZero() {
		created["$gte"] = f.CreatedFrom.UTC()
	}
	if !f.CreatedBefore.IsZero() {
		created["$lt"] = f.CreatedBefore.UTC()
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

func (s *Store) UpdateStarTransactionStatus(ctx context.Context, txID id.StarTransactionID, from, to transaction.Status, review types.Review) error {
	cur, err := s.GetStarTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if err := s.touchChild(ctx, cur.ChildID); err != nil {
		return err
	}

	set := bson.M{
		"status":      string(to),
		"reviewed_by": review.ReviewerID.String(),
		"reviewed_at": review.At.UTC(),
	}
	if review.Response != "" {
		set["parent_response"] = review.Response
	}
	res, err := s.q.NewUpdate((*model.StarTransaction)(nil)).
		Filter(bson.M{"_id": txID.String(), "status": string(from)}).
		SetUpdate(bson.M{"$set": set}).
		Exec(ctx)
	if err != nil {
		return wrap("update star transaction status", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, txID, cur.Status)
}

// ==================== Redemption Store ====================

func (s *Store) CreateRedemption(ctx context.Context, r *redemption.Redemption) error {
	if err := s.touchChild(ctx, r.ChildID); err != nil {
		return err
	}
	_, err := s.q.NewInsert(model.ToRedemption(r)).Exec(ctx)
	return wrap("create redemption", err)
}

func (s *Store) GetRedemption(ctx context.Context, redemptionID id.RedemptionID) (*redemption.Redemption, error) {
	var m model.Redemption
	if err := s.findOne(ctx, &m, redemptionID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrEntryNotFound
		}
		return nil, wrap("get redemption", err)
	}
	return model.FromRedemption(&m)
}

func (s *Store) ListRedemptions(ctx context.Context, f redemption.ListFilter) ([]*redemption.Redemption, error) {
	var models []model.Redemption
	filter := bson.M{}
	if !f.FamilyID.IsNil() {
		filter["family_id"] = f.FamilyID.String()
	}
	if !f.ChildID.IsNil() {
		filter["child_id"] = f.ChildID.String()
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	q := s.q.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := page(q, f.Limit, f.Offset).Scan(ctx); err != nil {
		return nil, wrap("list redemptions", err)
	}
	return convert(models, model.FromRedemption)
}

func (s *Store) UpdateRedemptionStatus(ctx context.Context, redemptionID id.RedemptionID, from, to redemption.Status, review types.Review) error {
	cur, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	if err := s.touchChild(ctx, cur.ChildID); err != nil {
		return err
	}

	set := bson.M{"status": string(to)}
	if to == redemption.StatusFulfilled {
		set["fulfilled_at"] = review.At.UTC()
	} else {
		set["reviewed_by"] = review.ReviewerID.String()
		set["reviewed_at"] = review.At.UTC()
		if review.Response != "" {
			set["parent_response"] = review.Response
		}
	}
	res, err := s.q.NewUpdate((*model.Redemption)(nil)).
		Filter(bson.M{"_id": redemptionID.String(), "status": string(from)}).
		SetUpdate(bson.M{"$set": set}).
		Exec(ctx)
	if err != nil {
		return wrap("update redemption status", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
}

func (s *Store) SetRedemptionCredit(ctx context.Context, redemptionID id.RedemptionID, amount int64) error {
	cur, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	if err := s.touchChild(ctx, cur.ChildID); err != nil {
		return err
	}

	res, err := s.q.NewUpdate((*model.Redemption)(nil)).
		Filter(bson.M{"_id": redemptionID.String(), "status": string(redemption.StatusPending)}).
		SetUpdate(bson.M{"$set": bson.M{"credit_amount": amount, "uses_credit": amount > 0}}).
		Exec(ctx)
	if err != nil {
		return wrap("set redemption credit", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
}

// ==================== Credit Store ====================

func (s *Store) CreateCreditTransaction(ctx context.Context, t *credit.Transaction) error {
	if err := s.touchChild(ctx, t.ChildID); err != nil {
		return err
	}
	_, err := s.q.NewInsert(model.ToCreditTransaction(t)).Exec(ctx)
	return wrap("create credit transaction", err)
}

func (s *Store) ListCreditTransactions(ctx context.Context, childID id.MemberID) ([]*credit.Transaction, error) {
	var models []model.CreditTransaction
	err := s.q.NewFind(&models).
		Filter(bson.M{"child_id": childID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list credit transactions", err)
	}
	return convert(models, model.FromCreditTransaction)
}

func (s *Store) GetCreditSettings(ctx context.Context, childID id.MemberID) (*credit.Settings, error) {
	var m model.CreditSettings
	err := s.q.NewFind(&m).Filter(bson.M{"child_id": childID.String()}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrCreditSettingsAbsent
		}
		return nil, wrap("get credit settings", err)
	}
	return model.FromCreditSettings(&m)
}

func (s *Store) ListCreditSettings(ctx context.Context, familyID id.FamilyID) ([]*credit.Settings, error) {
	var models []model.CreditSettings
	err := s.q.NewFind(&models).
		Filter(bson.M{"family_id": familyID.String()}).
		Sort(bson.D{{Key: "child_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list credit settings", err)
	}
	return convert(models, model.FromCreditSettings)
}

func (s *Store) SaveCreditSettings(ctx context.Context, cs *credit.Settings) error {
	m := model.ToCreditSettings(cs)
	_, err := s.q.NewUpdate((*model.CreditSettings)(nil)).
		Filter(bson.M{"child_id": m.ChildID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"family_id":             m.FamilyID,
				"credit_limit":          m.CreditLimit,
				"original_credit_limit": m.OriginalCreditLimit,
				"enabled":               m.Enabled,
				"updated_at":            m.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": m.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	return wrap("save credit settings", err)
}

// ==================== Settlement Store ====================

func (s *Store) CreateSettlement(ctx context.Context, st *settlement.Settlement) error {
	m, err := model.ToSettlement(st)
	if err != nil {
		return err
	}
	if _, err := s.q.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: child %s period ending %s", starledger.ErrAlreadySettled, st.ChildID, st.PeriodEnd.Format(time.RFC3339))
		}
		return wrap("create settlement", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	var m model.Settlement
	if err := s.findOne(ctx, &m, settlementID.String()); err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrSettlementNotFound
		}
		return nil, wrap("get settlement", err)
	}
	return model.FromSettlement(&m)
}

func (s *Store) GetSettlementForPeriod(ctx context.Context, childID id.MemberID, periodEnd time.Time) (*settlement.Settlement, error) {
	var m model.Settlement
	err := s.q.NewFind(&m).
		Filter(bson.M{"child_id": childID.String(), "period_end": periodEnd.UTC()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrSettlementNotFound
		}
		return nil, wrap("get settlement for period", err)
	}
	return model.FromSettlement(&m)
}

func (s *Store) ListSettlements(ctx context.Context, childID id.MemberID) ([]*settlement.Settlement, error) {
	var models []model.Settlement
	err := s.q.NewFind(&models).
		Filter(bson.M{"child_id": childID.String()}).
		Sort(bson.D{{Key: "period_end", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list settlements", err)
	}
	return convert(models, model.FromSettlement)
}

func (s *Store) ReplaceInterestTiers(ctx context.Context, familyID id.FamilyID, tiers []*settlement.Tier) error {
	_, err := s.q.NewDelete((*model.InterestTier)(nil)).
		Filter(bson.M{"family_id": familyID.String()}).
		Many().
		Exec(ctx)
	if err != nil {
		return wrap("delete interest tiers", err)
	}
	if len(tiers) == 0 {
		return nil
	}
	models := make([]model.InterestTier, len(tiers))
	for i, t := range tiers {
		models[i] = *model.ToInterestTier(t)
	}
	_, err = s.q.NewInsert(&models).Exec(ctx)
	return wrap("insert interest tiers", err)
}

func (s *Store) ListInterestTiers(ctx context.Context, familyID id.FamilyID) ([]*settlement.Tier, error) {
	var models []model.InterestTier
	err := s.q.NewFind(&models).
		Filter(bson.M{"family_id": familyID.String()}).
		Sort(bson.D{{Key: "tier_order", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list interest tiers", err)
	}
	return convert(models, model.FromInterestTier)
}

// ==================== Balance Cache Store ====================

func (s *Store) GetCachedBalance(ctx context.Context, childID id.MemberID) (*balance.Balance, error) {
	var m model.Balance
	err := s.q.NewFind(&m).Filter(bson.M{"child_id": childID.String()}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, starledger.ErrCacheMiss
		}
		return nil, wrap("get cached balance", err)
	}
	return model.FromBalance(&m)
}

func (s *Store) SetCachedBalance(ctx context.Context, b *balance.Balance) error {
	m := model.ToBalance(b)
	_, err := s.q.NewUpdate((*model.Balance)(nil)).
		Filter(bson.M{"child_id": m.ChildID}).
		SetUpdate(bson.M{"$set": bson.M{
			"current_stars":    m.CurrentStars,
			"lifetime_stars":   m.LifetimeStars,
			"credit_used":      m.CreditUsed,
			"available_credit": m.AvailableCredit,
			"spendable_stars":  m.SpendableStars,
			"credit_limit":     m.CreditLimit,
			"credit_enabled":   m.CreditEnabled,
			"last_entry_id":    m.LastEntryID,
			"computed_at":      m.ComputedAt,
		}}).
		Upsert().
		Exec(ctx)
	return wrap("set cached balance", err)
}

func (s *Store) InvalidateBalance(ctx context.Context, childID id.MemberID) error {
	_, err := s.q.NewDelete((*model.Balance)(nil)).
		Filter(bson.M{"child_id": childID.String()}).
		Exec(ctx)
	return wrap("invalidate balance", err)
}

// ==================== Helpers ====================

func (s *Store) findOne(ctx context.Context, dest any, docID string) error {
	return s.q.NewFind(dest).Filter(bson.M{"_id": docID}).Scan(ctx)
}

func page(q *mongodriver.FindQuery, limit, offset int) *mongodriver.FindQuery {
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if offset > 0 {
		q = q.Skip(int64(offset))
	}
	return q
}

func convert[M, T any](models []M, fn func(*M) (*T, error)) ([]*T, error) {
	result := make([]*T, len(models))
	for i := range models {
		v, err := fn(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// wrap maps driver errors onto the ledger's storage errors.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", starledger.ErrAlreadyExists, op)
	}
	var labeled mongo.LabeledError
	retryable := errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError")
	retryable = retryable || mongo.IsTimeout(err) || mongo.IsNetworkError(err)
	return starledger.NewStorageError(op, err, retryable)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		model.TableMembers: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "role", Value: 1}}},
		},
		model.TableQuests: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		model.TableRewards: {
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		model.TableStarTransactions: {
			{Keys: bson.D{{Key: "child_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "status", Value: 1}}},
			{
				Keys: bson.D{{Key: "child_id", Value: 1}, {Key: "quest_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(transaction.StatusPending), "source": string(transaction.SourceChildRequest)}),
			},
		},
		model.TableRedemptions: {
			{Keys: bson.D{{Key: "child_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "family_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		model.TableCreditTransactions: {
			{Keys: bson.D{{Key: "child_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		model.TableCreditSettings: {
			{Keys: bson.D{{Key: "child_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "family_id", Value: 1}}},
		},
		model.TableSettlements: {
			{
				Keys:    bson.D{{Key: "child_id", Value: 1}, {Key: "period_end", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		model.TableInterestTiers: {
			{
				Keys:    bson.D{{Key: "family_id", Value: 1}, {Key: "tier_order", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		model.TableBalances: {
			{Keys: bson.D{{Key: "child_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}
