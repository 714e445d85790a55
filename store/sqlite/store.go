package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// querier is satisfied by both *sqlitedriver.SqliteDB and *sqlitedriver.SqliteTx.
type querier interface {
	NewSelect(model ...any) *sqlitedriver.SelectQuery
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
	NewDelete(model any) *sqlitedriver.DeleteQuery
	NewRaw(query string, args ...any) *sqlitedriver.RawQuery
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
	q   querier
	tx  *sqlitedriver.SqliteTx

	// SQLite has a single writer; Atomic blocks queue here instead of
	// failing with SQLITE_BUSY.
	writeMu *sync.Mutex
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	sdb := sqlitedriver.Unwrap(db)
	return &Store{db: db, sdb: sdb, q: sdb, writeMu: new(sync.Mutex)}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("starledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("starledger/sqlite: migration failed: %w", err)
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

// Atomic runs fn in a transaction. SQLite transactions are serializable,
// and writers in this process are queued one at a time.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	bound := &Store{db: s.db, sdb: s.sdb, q: tx, tx: tx, writeMu: s.writeMu}

	if err := fn(ctx, bound); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error wins
		return err
	}
	return wrap("commit", tx.Commit())
}

// ==================== Family Store ====================

func (s *Store) CreateFamily(ctx context.Context, f *family.Family) error {
	_, err := s.q.NewInsert(model.ToFamily(f)).Exec(ctx)
	return wrap("create family", err)
}

func (s *Store) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	m := new(model.Family)
	err := s.q.NewSelect(m).Where("id = ?", familyID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrFamilyNotFound
		}
		return nil, wrap("get family", err)
	}
	return model.FromFamily(m)
}

func (s *Store) ListFamilies(ctx context.Context) ([]*family.Family, error) {
	var models []model.Family
	if err := s.q.NewSelect(&models).OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, wrap("list families", err)
	}
	return convert(models, model.FromFamily)
}

func (s *Store) CreateMember(ctx context.Context, m *family.Member) error {
	_, err := s.q.NewInsert(model.ToMember(m)).Exec(ctx)
	return wrap("create member", err)
}

func (s *Store) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	m := new(model.Member)
	err := s.q.NewSelect(m).Where("id = ?", memberID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrMemberNotFound
		}
		return nil, wrap("get member", err)
	}
	return model.FromMember(m)
}

func (s *Store) ListMembers(ctx context.Context, familyID id.FamilyID, role family.Role) ([]*family.Member, error) {
	var models []model.Member
	q := s.q.NewSelect(&models).Where("family_id = ?", familyID.String())
	if role != "" {
		q = q.Where("role = ?", string(role))
	}
	if err := q.OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
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
	m := new(model.Quest)
	err := s.q.NewSelect(m).Where("id = ?", questID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrQuestNotFound
		}
		return nil, wrap("get quest", err)
	}
	return model.FromQuest(m)
}

func (s *Store) ListQuests(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Quest, error) {
	var models []model.Quest
	q := s.q.NewSelect(&models).Where("family_id = ?", familyID.String())
	if opts.ActiveOnly {
		q = q.Where("active = 1")
	}
	q = page(q, opts.Limit, opts.Offset).OrderExpr("name ASC, id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list quests", err)
	}
	return convert(models, model.FromQuest)
}

func (s *Store) CreateReward(ctx context.Context, r *catalog.Reward) error {
	_, err := s.q.NewInsert(model.ToReward(r)).Exec(ctx)
	return wrap("create reward", err)
}

func (s *Store) GetReward(ctx context.Context, rewardID id.RewardID) (*catalog.Reward, error) {
	m := new(model.Reward)
	err := s.q.NewSelect(m).Where("id = ?", rewardID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrRewardNotFound
		}
		return nil, wrap("get reward", err)
	}
	return model.FromReward(m)
}

func (s *Store) ListRewards(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Reward, error) {
	var models []model.Reward
	q := s.q.NewSelect(&models).Where("family_id = ?", familyID.String())
	if opts.ActiveOnly {
		q = q.Where("active = 1")
	}
	q = page(q, opts.Limit, opts.Offset).OrderExpr("stars_cost ASC, id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list rewards", err)
	}
	return convert(models, model.FromReward)
}

// ==================== Star Transaction Store ====================

func (s *Store) CreateStarTransaction(ctx context.Context, t *transaction.StarTransaction) error {
	_, err := s.q.NewInsert(model.ToStarTransaction(t)).Exec(ctx)
	return wrap("create star transaction", err)
}

func (s *Store) GetStarTransaction(ctx context.Context, txID id.StarTransactionID) (*transaction.StarTransaction, error) {
	m := new(model.StarTransaction)
	err := s.q.NewSelect(m).Where("id = ?", txID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrEntryNotFound
		}
		return nil, wrap("get star transaction", err)
	}
	return model.FromStarTransaction(m)
}

func (s *Store) ListStarTransactions(ctx context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error) {
	var models []model.StarTransaction
	q := starTransactionFilter(s.q.NewSelect(&models), f)
	q = page(q, f.Limit, f.Offset).OrderExpr("created_at ASC, id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list star transactions", err)
	}
	return convert(models, model.FromStarTransaction)
}

func (s *Store) CountStarTransactions(ctx context.Context, f transaction.ListFilter) (int64, error) {
	n, err := starTransactionFilter(s.q.NewSelect((*model.StarTransaction)(nil)), f).Count(ctx)
	if err != nil {
		return 0, wrap("count star transactions", err)
	}
	return n, nil
}

func starTransactionFilter(q *sqlitedriver.SelectQuery, f transaction.ListFilter) *sqlitedriver.SelectQuery {
	if !f.FamilyID.IsNil() {
		q = q.Where("family_id = ?", f.FamilyID.String())
	}
	if !f.ChildID.IsNil() {
		q = q.Where("child_id = ?", f.ChildID.String())
	}
	if !f.QuestID.IsNil() {
		q = q.Where("quest_id = ?", f.QuestID.String())
	}
	if len(f.Statuses) > 0 {
		args := make([]any, len(f.Statuses))
		for i, st := range f.Statuses {
			args[i] = string(st)
		}
		q = q.Where("status IN ("+placeholders(len(args))+")", args...)
	}
	if len(f.Sources) > 0 {
		args := make([]any, len(f.Sources))
		for i, src := range f.Sources {
			args[i] = string(src)
		}
		q = q.Where("source IN ("+placeholders(len(args))+")", args...)
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom.UTC())
	}
	if !f.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", f.CreatedBefore.UTC())
	}
	return q
}

func (s *Store) UpdateStarTransactionStatus(ctx context.Context, txID id.StarTransactionID, from, to transaction.Status, review types.Review) error {
	q := s.q.NewUpdate((*model.StarTransaction)(nil)).
		Set("status = ?", string(to)).
		Set("reviewed_by = ?", review.ReviewerID.String()).
		Set("reviewed_at = ?", review.At.UTC())
	if review.Response != "" {
		q = q.Set("parent_response = ?", review.Response)
	}
	res, err := q.
		Where("id = ?", txID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return wrap("update star transaction status", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("update star transaction status", err)
	}
	if rows == 1 {
		return nil
	}

	cur, err := s.GetStarTransaction(ctx, txID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, txID, cur.Status)
}

// ==================== Redemption Store ====================

func (s *Store) CreateRedemption(ctx context.Context, r *redemption.Redemption) error {
	_, err := s.q.NewInsert(model.ToRedemption(r)).Exec(ctx)
	return wrap("create redemption", err)
}

func (s *Store) GetRedemption(ctx context.Context, redemptionID id.RedemptionID) (*redemption.Redemption, error) {
	m := new(model.Redemption)
	err := s.q.NewSelect(m).Where("id = ?", redemptionID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrEntryNotFound
		}
		return nil, wrap("get redemption", err)
	}
	return model.FromRedemption(m)
}

func (s *Store) ListRedemptions(ctx context.Context, f redemption.ListFilter) ([]*redemption.Redemption, error) {
	var models []model.Redemption
	q := s.q.NewSelect(&models)
	if !f.FamilyID.IsNil() {
		q = q.Where("family_id = ?", f.FamilyID.String())
	}
	if !f.ChildID.IsNil() {
		q = q.Where("child_id = ?", f.ChildID.String())
	}
	if len(f.Statuses) > 0 {
		args := make([]any, len(f.Statuses))
		for i, st := range f.Statuses {
			args[i] = string(st)
		}
		q = q.Where("status IN ("+placeholders(len(args))+")", args...)
	}
	q = page(q, f.Limit, f.Offset).OrderExpr("created_at ASC, id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list redemptions", err)
	}
	return convert(models, model.FromRedemption)
}

func (s *Store) UpdateRedemptionStatus(ctx context.Context, redemptionID id.RedemptionID, from, to redemption.Status, review types.Review) error {
	q := s.q.NewUpdate((*model.Redemption)(nil)).Set("status = ?", string(to))
	if to == redemption.StatusFulfilled {
		q = q.Set("fulfilled_at = ?", review.At.UTC())
	} else {
		q = q.
			Set("reviewed_by = ?", review.ReviewerID.String()).
			Set("reviewed_at = ?", review.At.UTC())
		if review.Response != "" {
			q = q.Set("parent_response = ?", review.Response)
		}
	}
	res, err := q.
		Where("id = ?", redemptionID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return wrap("update redemption status", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("update redemption status", err)
	}
	if rows == 1 {
		return nil
	}

	cur, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
}

func (s *Store) SetRedemptionCredit(ctx context.Context, redemptionID id.RedemptionID, amount int64) error {
	res, err := s.q.NewUpdate((*model.Redemption)(nil)).
		Set("credit_amount = ?", amount).
		Set("uses_credit = ?", amount > 0).
		Where("id = ?", redemptionID.String()).
		Where("status = ?", string(redemption.StatusPending)).
		Exec(ctx)
	if err != nil {
		return wrap("set redemption credit", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("set redemption credit", err)
	}
	if rows == 1 {
		return nil
	}

	cur, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
}

// ==================== Credit Store ====================

func (s *Store) CreateCreditTransaction(ctx context.Context, t *credit.Transaction) error {
	_, err := s.q.NewInsert(model.ToCreditTransaction(t)).Exec(ctx)
	return wrap("create credit transaction", err)
}

func (s *Store) ListCreditTransactions(ctx context.Context, childID id.MemberID) ([]*credit.Transaction, error) {
	var models []model.CreditTransaction
	err := s.q.NewSelect(&models).
		Where("child_id = ?", childID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list credit transactions", err)
	}
	return convert(models, model.FromCreditTransaction)
}

func (s *Store) GetCreditSettings(ctx context.Context, childID id.MemberID) (*credit.Settings, error) {
	m := new(model.CreditSettings)
	err := s.q.NewSelect(m).Where("child_id = ?", childID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrCreditSettingsAbsent
		}
		return nil, wrap("get credit settings", err)
	}
	return model.FromCreditSettings(m)
}

func (s *Store) ListCreditSettings(ctx context.Context, familyID id.FamilyID) ([]*credit.Settings, error) {
	var models []model.CreditSettings
	err := s.q.NewSelect(&models).
		Where("family_id = ?", familyID.String()).
		OrderExpr("child_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list credit settings", err)
	}
	return convert(models, model.FromCreditSettings)
}

func (s *Store) SaveCreditSettings(ctx context.Context, cs *credit.Settings) error {
	_, err := s.q.NewInsert(model.ToCreditSettings(cs)).
		OnConflict(`(child_id) DO UPDATE SET
			credit_limit = EXCLUDED.credit_limit,
			original_credit_limit = EXCLUDED.original_credit_limit,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`).
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
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: child %s period ending %s", starledger.ErrAlreadySettled, st.ChildID, st.PeriodEnd.Format(time.RFC3339))
		}
		return wrap("create settlement", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	m := new(model.Settlement)
	err := s.q.NewSelect(m).Where("id = ?", settlementID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrSettlementNotFound
		}
		return nil, wrap("get settlement", err)
	}
	return model.FromSettlement(m)
}

func (s *Store) GetSettlementForPeriod(ctx context.Context, childID id.MemberID, periodEnd time.Time) (*settlement.Settlement, error) {
	m := new(model.Settlement)
	err := s.q.NewSelect(m).
		Where("child_id = ?", childID.String()).
		Where("period_end = ?", periodEnd.UTC()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrSettlementNotFound
		}
		return nil, wrap("get settlement for period", err)
	}
	return model.FromSettlement(m)
}

func (s *Store) ListSettlements(ctx context.Context, childID id.MemberID) ([]*settlement.Settlement, error) {
	var models []model.Settlement
	err := s.q.NewSelect(&models).
		Where("child_id = ?", childID.String()).
		OrderExpr("period_end DESC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list settlements", err)
	}
	return convert(models, model.FromSettlement)
}

func (s *Store) ReplaceInterestTiers(ctx context.Context, familyID id.FamilyID, tiers []*settlement.Tier) error {
	_, err := s.q.NewDelete((*model.InterestTier)(nil)).
		Where("family_id = ?", familyID.String()).
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
	err := s.q.NewSelect(&models).
		Where("family_id = ?", familyID.String()).
		OrderExpr("tier_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list interest tiers", err)
	}
	return convert(models, model.FromInterestTier)
}

// ==================== Balance Cache Store ====================

func (s *Store) GetCachedBalance(ctx context.Context, childID id.MemberID) (*balance.Balance, error) {
	m := new(model.Balance)
	err := s.q.NewSelect(m).Where("child_id = ?", childID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starledger.ErrCacheMiss
		}
		return nil, wrap("get cached balance", err)
	}
	return model.FromBalance(m)
}

func (s *Store) SetCachedBalance(ctx context.Context, b *balance.Balance) error {
	_, err := s.q.NewInsert(model.ToBalance(b)).
		OnConflict(`(child_id) DO UPDATE SET
			current_stars = EXCLUDED.current_stars,
			lifetime_stars = EXCLUDED.lifetime_stars,
			credit_used = EXCLUDED.credit_used,
			available_credit = EXCLUDED.available_credit,
			spendable_stars = EXCLUDED.spendable_stars,
			credit_limit = EXCLUDED.credit_limit,
			credit_enabled = EXCLUDED.credit_enabled,
			last_entry_id = EXCLUDED.last_entry_id,
			computed_at = EXCLUDED.computed_at`).
		Exec(ctx)
	return wrap("set cached balance", err)
}

func (s *Store) InvalidateBalance(ctx context.Context, childID id.MemberID) error {
	_, err := s.q.NewDelete((*model.Balance)(nil)).
		Where("child_id = ?", childID.String()).
		Exec(ctx)
	return wrap("invalidate balance", err)
}

// ==================== Helpers ====================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func page(q *sqlitedriver.SelectQuery, limit, offset int) *sqlitedriver.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
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
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", starledger.ErrAlreadyExists, err)
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return starledger.NewStorageError(op, err, true)
		}
	}
	return starledger.NewStorageError(op, err, false)
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
