package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/store/memory"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func pendingTx(child id.MemberID, at time.Time) *transaction.StarTransaction {
	return &transaction.StarTransaction{
		ID:        id.NewStarTransactionID(),
		FamilyID:  id.NewFamilyID(),
		ChildID:   child,
		QuestID:   id.NewQuestID(),
		Stars:     3,
		Source:    transaction.SourceChildRequest,
		Status:    transaction.StatusPending,
		CreatedBy: child,
		CreatedAt: at,
	}
}

func TestStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tx := pendingTx(id.NewMemberID(), t0)
	if err := s.CreateStarTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}

	parent := id.NewMemberID()
	review := types.Review{ReviewerID: parent, At: t0.Add(time.Hour), Response: "nice"}
	if err := s.UpdateStarTransactionStatus(ctx, tx.ID, transaction.StatusPending, transaction.StatusApproved, review); err != nil {
		t.Fatalf("first update: %v", err)
	}

	err := s.UpdateStarTransactionStatus(ctx, tx.ID, transaction.StatusPending, transaction.StatusRejected, review)
	if !errors.Is(err, starledger.ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}

	got, err := s.GetStarTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != transaction.StatusApproved {
		t.Errorf("got status %s, want approved", got.Status)
	}
	if got.ReviewedBy.String() != parent.String() || got.ReviewedAt == nil || !got.ReviewedAt.Equal(review.At) {
		t.Errorf("review not recorded: %+v", got)
	}
	if got.ParentResponse != "nice" {
		t.Errorf("got response %q, want %q", got.ParentResponse, "nice")
	}

	err = s.UpdateStarTransactionStatus(ctx, id.NewStarTransactionID(), transaction.StatusPending, transaction.StatusApproved, review)
	if !errors.Is(err, starledger.ErrEntryNotFound) || !starledger.IsNotFound(err) {
		t.Errorf("got %v, want ErrEntryNotFound", err)
	}
}

func TestRedemptionFulfillStampsFulfilledAt(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := &redemption.Redemption{
		ID:         id.NewRedemptionID(),
		ChildID:    id.NewMemberID(),
		RewardID:   id.NewRewardID(),
		StarsSpent: 10,
		Status:     redemption.StatusApproved,
		CreatedAt:  t0,
	}
	if err := s.CreateRedemption(ctx, r); err != nil {
		t.Fatal(err)
	}
	at := t0.Add(2 * time.Hour)
	if err := s.UpdateRedemptionStatus(ctx, r.ID, redemption.StatusApproved, redemption.StatusFulfilled, types.Review{At: at}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRedemption(ctx, r.ID)
	if got.FulfilledAt == nil || !got.FulfilledAt.Equal(at) {
		t.Errorf("got fulfilled_at %v, want %v", got.FulfilledAt, at)
	}
	if got.ReviewedAt != nil {
		t.Errorf("fulfilment overwrote review: %v", got.ReviewedAt)
	}
}

func TestSetRedemptionCreditPendingOnly(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := &redemption.Redemption{
		ID:           id.NewRedemptionID(),
		ChildID:      id.NewMemberID(),
		RewardID:     id.NewRewardID(),
		StarsSpent:   60,
		Status:       redemption.StatusPending,
		UsesCredit:   true,
		CreditAmount: 60,
		CreatedAt:    t0,
	}
	if err := s.CreateRedemption(ctx, r); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		amount   int64
		wantUses bool
	}{
		{20, true},
		{0, false},
		{35, true},
	}
	for _, tt := range tests {
		if err := s.SetRedemptionCredit(ctx, r.ID, tt.amount); err != nil {
			t.Fatalf("set %d: %v", tt.amount, err)
		}
		got, _ := s.GetRedemption(ctx, r.ID)
		if got.CreditAmount != tt.amount || got.UsesCredit != tt.wantUses {
			t.Errorf("set %d: got credit_amount %d uses_credit %v", tt.amount, got.CreditAmount, got.UsesCredit)
		}
	}

	if err := s.UpdateRedemptionStatus(ctx, r.ID, redemption.StatusPending, redemption.StatusApproved, types.Review{At: t0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRedemptionCredit(ctx, r.ID, 60); !errors.Is(err, starledger.ErrInvalidTransition) {
		t.Errorf("approved: got %v, want ErrInvalidTransition", err)
	}
	if got, _ := s.GetRedemption(ctx, r.ID); got.CreditAmount != 35 {
		t.Errorf("approved row changed: credit_amount %d", got.CreditAmount)
	}
	if err := s.SetRedemptionCredit(ctx, id.NewRedemptionID(), 10); !errors.Is(err, starledger.ErrEntryNotFound) {
		t.Errorf("unknown: got %v, want ErrEntryNotFound", err)
	}
}

func TestReturnedRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tx := pendingTx(id.NewMemberID(), t0)
	_ = s.CreateStarTransaction(ctx, tx)

	got, _ := s.GetStarTransaction(ctx, tx.ID)
	got.Status = transaction.StatusApproved
	tx.Status = transaction.StatusRejected

	again, _ := s.GetStarTransaction(ctx, tx.ID)
	if again.Status != transaction.StatusPending {
		t.Errorf("got status %s, want pending", again.Status)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	child := id.NewMemberID()
	for i := 3; i >= 0; i-- {
		_ = s.CreateStarTransaction(ctx, pendingTx(child, t0.Add(time.Duration(i)*time.Minute)))
	}
	_ = s.CreateStarTransaction(ctx, pendingTx(id.NewMemberID(), t0))

	got, err := s.ListStarTransactions(ctx, transaction.ListFilter{ChildID: child, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if !got[0].CreatedAt.Equal(t0.Add(time.Minute)) || !got[1].CreatedAt.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("rows out of order: %v, %v", got[0].CreatedAt, got[1].CreatedAt)
	}

	n, _ := s.CountStarTransactions(ctx, transaction.ListFilter{ChildID: child, CreatedFrom: t0.Add(2 * time.Minute)})
	if n != 2 {
		t.Errorf("got count %d, want 2", n)
	}
}

func TestAtomicRollback(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	child := id.NewMemberID()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateStarTransaction(ctx, pendingTx(child, t0)); err != nil {
			return err
		}
		// nested blocks join the outer one
		if err := tx.Atomic(ctx, func(ctx context.Context, inner store.Store) error {
			return inner.CreateStarTransaction(ctx, pendingTx(child, t0))
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	n, _ := s.CountStarTransactions(ctx, transaction.ListFilter{ChildID: child})
	if n != 0 {
		t.Errorf("got %d rows after rollback, want 0", n)
	}
}

func TestAtomicSerializesCheckThenInsert(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	child := id.NewMemberID()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
				n, err := tx.CountStarTransactions(ctx, transaction.ListFilter{ChildID: child})
				if err != nil {
					return err
				}
				if n > 0 {
					return starledger.ErrDuplicatePending
				}
				return tx.CreateStarTransaction(ctx, pendingTx(child, t0))
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("got %d successful inserts, want 1", succeeded)
	}
}

func TestSettlementUniquePerPeriod(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	child := id.NewMemberID()
	mk := func() *settlement.Settlement {
		return &settlement.Settlement{ID: id.NewSettlementID(), ChildID: child, PeriodEnd: t0, CreatedAt: t0}
	}
	if err := s.CreateSettlement(ctx, mk()); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSettlement(ctx, mk()); !errors.Is(err, starledger.ErrAlreadySettled) {
		t.Errorf("got %v, want ErrAlreadySettled", err)
	}
	if _, err := s.GetSettlementForPeriod(ctx, child, t0.Add(time.Second)); !errors.Is(err, starledger.ErrSettlementNotFound) {
		t.Errorf("got %v, want ErrSettlementNotFound", err)
	}
}

func TestClose(t *testing.T) {
	s := memory.New()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, starledger.ErrStoreClosed) {
		t.Errorf("got %v, want ErrStoreClosed", err)
	}
}

func TestListFamiliesOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var want []string
	for i, name := range []string{"Rivera", "Okafor", "Nowak"} {
		f := &family.Family{ID: id.NewFamilyID(), Name: name}
		f.CreatedAt = t0.Add(time.Duration(i) * time.Hour)
		f.UpdatedAt = f.CreatedAt
		if err := s.CreateFamily(ctx, f); err != nil {
			t.Fatal(err)
		}
		want = append(want, name)
	}

	got, err := s.ListFamilies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d families, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("got %s at %d, want %s", got[i].Name, i, want[i])
		}
	}
}
