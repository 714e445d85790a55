// Package memory is an in-process Store for tests and single-binary demos.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// Store keeps every record in maps guarded by mu. Records are stored and
// returned by value so callers can never mutate a row behind a status
// compare-and-set.
//
// Atomic blocks are serialized through txMu. Writes made outside Atomic
// are not isolated from a running block.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	data   tables
	closed bool
}

type tables struct {
	families    map[string]*family.Family
	members     map[string]*family.Member
	quests      map[string]*catalog.Quest
	rewards     map[string]*catalog.Reward
	starTxs     map[string]*transaction.StarTransaction
	redemptions map[string]*redemption.Redemption
	creditTxs   []*credit.Transaction
	settings    map[string]*credit.Settings
	settlements map[string]*settlement.Settlement
	tiers       map[string][]*settlement.Tier
	balances    map[string]*balance.Balance
}

// clone is shallow: rows are replaced, never edited in place, so sharing
// the pointers with the snapshot is safe.
func (t tables) clone() tables {
	return tables{
		families:    maps.Clone(t.families),
		members:     maps.Clone(t.members),
		quests:      maps.Clone(t.quests),
		rewards:     maps.Clone(t.rewards),
		starTxs:     maps.Clone(t.starTxs),
		redemptions: maps.Clone(t.redemptions),
		creditTxs:   slices.Clone(t.creditTxs),
		settings:    maps.Clone(t.settings),
		settlements: maps.Clone(t.settlements),
		tiers:       maps.Clone(t.tiers),
		balances:    maps.Clone(t.balances),
	}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: tables{
			families:    make(map[string]*family.Family),
			members:     make(map[string]*family.Member),
			quests:      make(map[string]*catalog.Quest),
			rewards:     make(map[string]*catalog.Reward),
			starTxs:     make(map[string]*transaction.StarTransaction),
			redemptions: make(map[string]*redemption.Redemption),
			creditTxs:   make([]*credit.Transaction, 0),
			settings:    make(map[string]*credit.Settings),
			settlements: make(map[string]*settlement.Settlement),
			tiers:       make(map[string][]*settlement.Tier),
			balances:    make(map[string]*balance.Balance),
		},
	}
}

func ptr[T any](v T) *T { return &v }

func paginate[T any](items []T, limit, offset int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

// Family Store implementation

func (s *Store) CreateFamily(_ context.Context, f *family.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.families[f.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.families[f.ID.String()] = ptr(*f)
	return nil
}

func (s *Store) GetFamily(_ context.Context, familyID id.FamilyID) (*family.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.data.families[familyID.String()]; ok {
		return ptr(*f), nil
	}
	return nil, starledger.ErrFamilyNotFound
}

func (s *Store) ListFamilies(_ context.Context) ([]*family.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*family.Family, 0, len(s.data.families))
	for _, f := range s.data.families {
		result = append(result, ptr(*f))
	}
	slices.SortFunc(result, func(a, b *family.Family) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return result, nil
}

func (s *Store) CreateMember(_ context.Context, m *family.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.families[m.FamilyID.String()]; !ok {
		return starledger.ErrFamilyNotFound
	}
	if _, exists := s.data.members[m.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.members[m.ID.String()] = ptr(*m)
	return nil
}

func (s *Store) GetMember(_ context.Context, memberID id.MemberID) (*family.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.data.members[memberID.String()]; ok {
		return ptr(*m), nil
	}
	return nil, starledger.ErrMemberNotFound
}

func (s *Store) ListMembers(_ context.Context, familyID id.FamilyID, role family.Role) ([]*family.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*family.Member, 0)
	for _, m := range s.data.members {
		if m.FamilyID.String() != familyID.String() {
			continue
		}
		if role != "" && m.Role != role {
			continue
		}
		result = append(result, ptr(*m))
	}
	slices.SortFunc(result, func(a, b *family.Member) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return result, nil
}

// Catalog Store implementation

func (s *Store) CreateQuest(_ context.Context, q *catalog.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.quests[q.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.quests[q.ID.String()] = ptr(*q)
	return nil
}

func (s *Store) GetQuest(_ context.Context, questID id.QuestID) (*catalog.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q, ok := s.data.quests[questID.String()]; ok {
		return ptr(*q), nil
	}
	return nil, starledger.ErrQuestNotFound
}

func (s *Store) ListQuests(_ context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Quest, 0)
	for _, q := range s.data.quests {
		if q.FamilyID.String() == familyID.String() && (!opts.ActiveOnly || q.Active) {
			result = append(result, ptr(*q))
		}
	}
	slices.SortFunc(result, func(a, b *catalog.Quest) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) CreateReward(_ context.Context, r *catalog.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.rewards[r.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.rewards[r.ID.String()] = ptr(*r)
	return nil
}

func (s *Store) GetReward(_ context.Context, rewardID id.RewardID) (*catalog.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.data.rewards[rewardID.String()]; ok {
		return ptr(*r), nil
	}
	return nil, starledger.ErrRewardNotFound
}

func (s *Store) ListRewards(_ context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Reward, 0)
	for _, r := range s.data.rewards {
		if r.FamilyID.String() == familyID.String() && (!opts.ActiveOnly || r.Active) {
			result = append(result, ptr(*r))
		}
	}
	slices.SortFunc(result, func(a, b *catalog.Reward) int {
		return cmp.Or(cmp.Compare(a.StarsCost, b.StarsCost), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Star transaction Store implementation

func (s *Store) CreateStarTransaction(_ context.Context, t *transaction.StarTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.starTxs[t.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.starTxs[t.ID.String()] = ptr(*t)
	return nil
}

func (s *Store) GetStarTransaction(_ context.Context, txID id.StarTransactionID) (*transaction.StarTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.data.starTxs[txID.String()]; ok {
		return ptr(*t), nil
	}
	return nil, starledger.ErrEntryNotFound
}

func (s *Store) matchStarTransactions(f transaction.ListFilter) []*transaction.StarTransaction {
	result := make([]*transaction.StarTransaction, 0)
	for _, t := range s.data.starTxs {
		if f.Match(t) {
			result = append(result, ptr(*t))
		}
	}
	slices.SortFunc(result, func(a, b *transaction.StarTransaction) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return result
}

func (s *Store) ListStarTransactions(_ context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return paginate(s.matchStarTransactions(f), f.Limit, f.Offset), nil
}

func (s *Store) CountStarTransactions(_ context.Context, f transaction.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.data.starTxs {
		if f.Match(t) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateStarTransactionStatus(_ context.Context, txID id.StarTransactionID, from, to transaction.Status, review types.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data.starTxs[txID.String()]
	if !ok {
		return starledger.ErrEntryNotFound
	}
	if cur.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, txID, cur.Status)
	}
	next := ptr(*cur)
	next.Status = to
	next.ReviewedBy = review.ReviewerID
	next.ReviewedAt = ptr(review.At)
	if review.Response != "" {
		next.ParentResponse = review.Response
	}
	s.data.starTxs[txID.String()] = next
	return nil
}

// Redemption Store implementation

func (s *Store) CreateRedemption(_ context.Context, r *redemption.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.redemptions[r.ID.String()]; exists {
		return starledger.ErrAlreadyExists
	}
	s.data.redemptions[r.ID.String()] = ptr(*r)
	return nil
}

func (s *Store) GetRedemption(_ context.Context, redemptionID id.RedemptionID) (*redemption.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.data.redemptions[redemptionID.String()]; ok {
		return ptr(*r), nil
	}
	return nil, starledger.ErrEntryNotFound
}

func (s *Store) ListRedemptions(_ context.Context, f redemption.ListFilter) ([]*redemption.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*redemption.Redemption, 0)
	for _, r := range s.data.redemptions {
		if f.Match(r) {
			result = append(result, ptr(*r))
		}
	}
	slices.SortFunc(result, func(a, b *redemption.Redemption) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (s *Store) UpdateRedemptionStatus(_ context.Context, redemptionID id.RedemptionID, from, to redemption.Status, review types.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data.redemptions[redemptionID.String()]
	if !ok {
		return starledger.ErrEntryNotFound
	}
	if cur.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
	}
	next := ptr(*cur)
	next.Status = to
	if to == redemption.StatusFulfilled {
		next.FulfilledAt = ptr(review.At)
	} else {
		next.ReviewedBy = review.ReviewerID
		next.ReviewedAt = ptr(review.At)
		if review.Response != "" {
			next.ParentResponse = review.Response
		}
	}
	s.data.redemptions[redemptionID.String()] = next
	return nil
}

func (s *Store) SetRedemptionCredit(_ context.Context, redemptionID id.RedemptionID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data.redemptions[redemptionID.String()]
	if !ok {
		return starledger.ErrEntryNotFound
	}
	if cur.Status != redemption.StatusPending {
		return fmt.Errorf("%w: %s is %s", starledger.ErrInvalidTransition, redemptionID, cur.Status)
	}
	next := ptr(*cur)
	next.CreditAmount = amount
	next.UsesCredit = amount > 0
	s.data.redemptions[redemptionID.String()] = next
	return nil
}

// Credit Store implementation

func (s *Store) CreateCreditTransaction(_ context.Context, t *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.creditTxs = append(s.data.creditTxs, ptr(*t))
	return nil
}

func (s *Store) ListCreditTransactions(_ context.Context, childID id.MemberID) ([]*credit.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Transaction, 0)
	for _, t := range s.data.creditTxs {
		if t.ChildID.String() == childID.String() {
			result = append(result, ptr(*t))
		}
	}
	// Insertion order breaks CreatedAt ties.
	slices.SortStableFunc(result, func(a, b *credit.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetCreditSettings(_ context.Context, childID id.MemberID) (*credit.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cs, ok := s.data.settings[childID.String()]; ok {
		return ptr(*cs), nil
	}
	return nil, starledger.ErrCreditSettingsAbsent
}

func (s *Store) ListCreditSettings(_ context.Context, familyID id.FamilyID) ([]*credit.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Settings, 0)
	for _, cs := range s.data.settings {
		if cs.FamilyID.String() == familyID.String() {
			result = append(result, ptr(*cs))
		}
	}
	slices.SortFunc(result, func(a, b *credit.Settings) int {
		return cmp.Compare(a.ChildID.String(), b.ChildID.String())
	})
	return result, nil
}

func (s *Store) SaveCreditSettings(_ context.Context, cs *credit.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.settings[cs.ChildID.String()] = ptr(*cs)
	return nil
}

// Settlement Store implementation

func (s *Store) CreateSettlement(_ context.Context, st *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.settlements {
		if existing.ChildID.String() == st.ChildID.String() && existing.PeriodEnd.Equal(st.PeriodEnd) {
			return starledger.ErrAlreadySettled
		}
	}
	cp := ptr(*st)
	cp.Breakdown = slices.Clone(st.Breakdown)
	s.data.settlements[st.ID.String()] = cp
	return nil
}

func (s *Store) GetSettlement(_ context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.data.settlements[settlementID.String()]; ok {
		return ptr(*st), nil
	}
	return nil, starledger.ErrSettlementNotFound
}

func (s *Store) GetSettlementForPeriod(_ context.Context, childID id.MemberID, periodEnd time.Time) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.data.settlements {
		if st.ChildID.String() == childID.String() && st.PeriodEnd.Equal(periodEnd) {
			return ptr(*st), nil
		}
	}
	return nil, starledger.ErrSettlementNotFound
}

func (s *Store) ListSettlements(_ context.Context, childID id.MemberID) ([]*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*settlement.Settlement, 0)
	for _, st := range s.data.settlements {
		if st.ChildID.String() == childID.String() {
			result = append(result, ptr(*st))
		}
	}
	slices.SortFunc(result, func(a, b *settlement.Settlement) int {
		return b.PeriodEnd.Compare(a.PeriodEnd)
	})
	return result, nil
}

func (s *Store) ReplaceInterestTiers(_ context.Context, familyID id.FamilyID, tiers []*settlement.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]*settlement.Tier, 0, len(tiers))
	for _, t := range tiers {
		cp = append(cp, ptr(*t))
	}
	s.data.tiers[familyID.String()] = cp
	return nil
}

func (s *Store) ListInterestTiers(_ context.Context, familyID id.FamilyID) ([]*settlement.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*settlement.Tier, 0)
	for _, t := range s.data.tiers[familyID.String()] {
		result = append(result, ptr(*t))
	}
	slices.SortStableFunc(result, func(a, b *settlement.Tier) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return result, nil
}

// Balance cache implementation

func (s *Store) GetCachedBalance(_ context.Context, childID id.MemberID) (*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.data.balances[childID.String()]; ok {
		return ptr(*b), nil
	}
	return nil, starledger.ErrCacheMiss
}

func (s *Store) SetCachedBalance(_ context.Context, b *balance.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.balances[b.ChildID.String()] = ptr(*b)
	return nil
}

func (s *Store) InvalidateBalance(_ context.Context, childID id.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.balances, childID.String())
	return nil
}

// Atomic runs fn while holding the transaction mutex. If fn fails, every
// table is restored to the snapshot taken on entry.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return starledger.ErrStoreClosed
	}
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &txStore{Store: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is the view handed to an Atomic block. Nested Atomic calls join
// the running block instead of taking txMu again.
type txStore struct {
	*Store
}

func (t *txStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, t)
}

// Lifecycle methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return starledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
