package starledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store/memory"
	"github.com/xraph/starledger/transaction"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	l      *starledger.Ledger
	store  *memory.Store
	clock  *fakeClock
	family *family.Family
	parent *family.Member
	child  *family.Member
	quest  *catalog.Quest
	reward *catalog.Reward
}

func newFixture(t *testing.T, opts ...starledger.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store: memory.New(),
		clock: &fakeClock{now: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)},
	}
	base := []starledger.Option{
		starledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		starledger.WithClock(f.clock.Now),
	}
	f.l = starledger.New(f.store, append(base, opts...)...)
	if err := f.l.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var err error
	if f.family, err = f.l.CreateFamily(ctx, starledger.FamilyInput{Name: "Rivera"}); err != nil {
		t.Fatal(err)
	}
	if f.parent, err = f.l.AddMember(ctx, starledger.MemberInput{FamilyID: f.family.ID, Name: "Sam", Role: family.RoleParent}); err != nil {
		t.Fatal(err)
	}
	if f.child, err = f.l.AddMember(ctx, starledger.MemberInput{FamilyID: f.family.ID, Name: "Ada", Role: family.RoleChild}); err != nil {
		t.Fatal(err)
	}
	f.quest = f.newQuest(t, "Make bed", 5)
	if f.reward, err = f.l.CreateReward(ctx, starledger.RewardInput{FamilyID: f.family.ID, Name: "Movie night", StarsCost: 60}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) newQuest(t *testing.T, name string, stars int64) *catalog.Quest {
	t.Helper()
	q, err := f.l.CreateQuest(context.Background(), starledger.QuestInput{FamilyID: f.family.ID, Name: name, Stars: stars})
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func (f *fixture) award(t *testing.T, stars int64) *transaction.StarTransaction {
	t.Helper()
	rec, err := f.l.CreateParentRecord(context.Background(), starledger.ParentRecordInput{
		ChildID:     f.child.ID,
		CreatorID:   f.parent.ID,
		Description: "bonus",
		Stars:       stars,
	})
	if err != nil {
		t.Fatalf("award %d: %v", stars, err)
	}
	return rec
}

func (f *fixture) balance(t *testing.T) *starledger.Balance {
	t.Helper()
	b, err := f.l.GetBalance(context.Background(), f.child.ID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b
}

func (f *fixture) enableCredit(t *testing.T, limit int64) {
	t.Helper()
	if _, err := f.l.ConfigureCredit(context.Background(), starledger.CreditInput{ChildID: f.child.ID, Limit: limit, Enabled: true}); err != nil {
		t.Fatal(err)
	}
}

func TestChildRequestApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID, Note: "done!"})
	if err != nil {
		t.Fatalf("CreateChildRequest: %v", err)
	}
	if req.Status != transaction.StatusPending || req.Source != transaction.SourceChildRequest {
		t.Errorf("got %s/%s, want pending/child_request", req.Status, req.Source)
	}
	if got := f.balance(t).CurrentStars; got != 0 {
		t.Errorf("pending request moved balance to %d", got)
	}

	if err := f.l.ApproveEntry(ctx, req.ID, f.parent.ID, starledger.WithResponse("well done")); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}

	b := f.balance(t)
	if b.CurrentStars != 5 || b.LifetimeStars != 5 {
		t.Errorf("got current %d lifetime %d, want 5 and 5", b.CurrentStars, b.LifetimeStars)
	}
	if b.LastEntryID.String() != req.ID.String() {
		t.Errorf("got last entry %s, want %s", b.LastEntryID, req.ID)
	}

	stored, _ := f.l.Store().GetStarTransaction(ctx, req.ID)
	if stored.ReviewedBy.String() != f.parent.ID.String() || stored.ParentResponse != "well done" {
		t.Errorf("review not recorded: %+v", stored)
	}
}

func TestApproveWithEffectiveDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, _ := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})

	yesterday := f.clock.Now().Add(-24 * time.Hour)
	if err := f.l.ApproveEntry(ctx, req.ID, f.parent.ID, starledger.WithEffectiveDate(yesterday)); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.l.Store().GetStarTransaction(ctx, req.ID)
	if stored.ReviewedAt == nil || !stored.ReviewedAt.Equal(yesterday) {
		t.Errorf("got reviewed_at %v, want %v", stored.ReviewedAt, yesterday)
	}
}

func TestDuplicatePendingRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID}

	if _, err := f.l.CreateChildRequest(ctx, in); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(3 * time.Minute)

	_, err := f.l.CreateChildRequest(ctx, in)
	if !errors.Is(err, starledger.ErrDuplicatePending) {
		t.Fatalf("got %v, want ErrDuplicatePending", err)
	}
	if !starledger.IsGuardError(err) {
		t.Error("IsGuardError = false")
	}

	n, _ := f.l.Store().CountStarTransactions(ctx, transaction.ListFilter{ChildID: f.child.ID})
	if n != 1 {
		t.Errorf("got %d rows, want 1", n)
	}
}

func TestRateLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.newQuest(t, "Feed cat", 2)
	third := f.newQuest(t, "Homework", 3)

	first, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.l.ApproveEntry(ctx, first.ID, f.parent.ID); err != nil {
		t.Fatal(err)
	}

	t.Run("same quest cooldown", func(t *testing.T) {
		f.clock.Advance(30 * time.Second)
		_, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})
		var gerr *starledger.GuardError
		if !errors.As(err, &gerr) || gerr.Rule != guard.RuleQuestCooldown {
			t.Fatalf("got %v, want quest cooldown", err)
		}
		if gerr.RetryAfter != 90*time.Second {
			t.Errorf("got retry %v, want 90s", gerr.RetryAfter)
		}
	})

	t.Run("global cooldown", func(t *testing.T) {
		if _, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: other.ID}); err != nil {
			t.Fatalf("second quest: %v", err)
		}
		f.clock.Advance(10 * time.Second)
		_, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: third.ID})
		if !errors.Is(err, starledger.ErrRateLimited) {
			t.Fatalf("got %v, want ErrRateLimited", err)
		}
	})

	t.Run("window slides", func(t *testing.T) {
		f.clock.Advance(2 * time.Minute)
		if _, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: third.ID}); err != nil {
			t.Errorf("got %v, want nil", err)
		}
	})
}

func TestConcurrentChildRequestsExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !starledger.IsGuardError(err):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("got %d successes, want 1", succeeded)
	}
}

func TestRejectLeavesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.award(t, 7)
	before := f.balance(t)

	req, _ := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})
	if err := f.l.RejectEntry(ctx, req.ID, f.parent.ID, "bed is not made"); err != nil {
		t.Fatal(err)
	}

	after := f.balance(t)
	if !after.SameTotals(*before) {
		t.Errorf("got %+v, want %+v", after, before)
	}
	stored, _ := f.l.Store().GetStarTransaction(ctx, req.ID)
	if stored.Status != transaction.StatusRejected || stored.ParentResponse != "bed is not made" {
		t.Errorf("got %s %q", stored.Status, stored.ParentResponse)
	}
}

func TestReviewFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, _ := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})

	outsider := newFixture(t)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"child cannot review", func() error { return f.l.ApproveEntry(ctx, req.ID, f.child.ID) }, starledger.ErrForbidden},
		{"parent of another family", func() error { return f.l.ApproveEntry(ctx, req.ID, outsider.parent.ID) }, starledger.ErrForbidden},
		{"unknown entry", func() error { return f.l.ApproveEntry(ctx, id.NewStarTransactionID(), f.parent.ID) }, starledger.ErrNotFound},
		{"not an entry id", func() error { return f.l.ApproveEntry(ctx, id.NewQuestID(), f.parent.ID) }, starledger.ErrInvalidInput},
		{"back to pending", func() error { return f.l.SetStatus(ctx, req.ID, "pending", f.parent.ID, "") }, starledger.ErrInvalidTransition},
		{"fulfil a star transaction", func() error { return f.l.SetStatus(ctx, req.ID, "fulfilled", f.parent.ID, "") }, starledger.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := f.l.SetStatus(ctx, req.ID, "approved", f.parent.ID, ""); err != nil {
		t.Fatal(err)
	}
	err := f.l.RejectEntry(ctx, req.ID, f.parent.ID, "")
	if !errors.Is(err, starledger.ErrAlreadyReviewed) || !errors.Is(err, starledger.ErrInvalidTransition) {
		t.Errorf("got %v, want ErrAlreadyReviewed", err)
	}
}

func TestBatchApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []id.ID
	for i, name := range []string{"Dishes", "Laundry", "Reading"} {
		q := f.newQuest(t, name, int64(i+1))
		req, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: q.ID})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, req.ID)
		f.clock.Advance(time.Minute)
	}
	if err := f.l.ApproveEntry(ctx, ids[1], f.parent.ID); err != nil {
		t.Fatal(err)
	}

	res := f.l.BatchApprove(ctx, append(ids, ids[0]), f.parent.ID)
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 {
		t.Fatalf("got %d succeeded / %d failed, want 2 / 1", len(res.Succeeded), len(res.Failed))
	}
	if res.Failed[0].ID.String() != ids[1].String() || !errors.Is(res.Failed[0].Err, starledger.ErrAlreadyReviewed) {
		t.Errorf("got failure %v for %s", res.Failed[0].Err, res.Failed[0].ID)
	}
	if got := f.balance(t).CurrentStars; got != 1+2+3 {
		t.Errorf("got %d stars, want 6", got)
	}
}

func TestBatchRejectsForeignFamily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := newFixture(t)

	mine, _ := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.quest.ID})
	theirs, _ := other.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: other.child.ID, QuestID: other.quest.ID})
	// Copy the foreign entry into this store so it resolves.
	foreign, _ := other.l.Store().GetStarTransaction(ctx, theirs.ID)
	if err := f.store.CreateStarTransaction(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	res := f.l.BatchReject(ctx, []id.ID{mine.ID, theirs.ID, id.NewRedemptionID()}, f.parent.ID, "no")
	if len(res.Succeeded) != 1 || len(res.Failed) != 2 {
		t.Fatalf("got %d/%d, want 1/2", len(res.Succeeded), len(res.Failed))
	}
	if !errors.Is(res.Failed[0].Err, starledger.ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", res.Failed[0].Err)
	}
	if !starledger.IsNotFound(res.Failed[1].Err) {
		t.Errorf("got %v, want not found", res.Failed[1].Err)
	}
}

func TestRedemptionWithCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.award(t, 30)
	f.enableCredit(t, 50)

	rd, err := f.l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID})
	if err != nil {
		t.Fatalf("CreateRedemptionRequest: %v", err)
	}
	if !rd.UsesCredit || rd.CreditAmount != 30 {
		t.Errorf("got uses_credit %v amount %d, want true 30", rd.UsesCredit, rd.CreditAmount)
	}
	if got := f.balance(t).CurrentStars; got != 30 {
		t.Errorf("pending redemption moved balance to %d", got)
	}

	if err := f.l.ApproveEntry(ctx, rd.ID, f.parent.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}

	b := f.balance(t)
	want := starledger.Balance{CurrentStars: -30, LifetimeStars: 30, CreditUsed: 30, AvailableCredit: 20, SpendableStars: 20, CreditLimit: 50, CreditEnabled: true}
	if !b.SameTotals(want) {
		t.Errorf("got %+v, want %+v", *b, want)
	}

	crs, _ := f.l.ListCreditTransactions(ctx, f.child.ID)
	if len(crs) != 1 || crs[0].Type != credit.TypeCreditUsed || crs[0].Amount != 30 || crs[0].RedemptionID.String() != rd.ID.String() {
		t.Errorf("got credit rows %+v", crs)
	}

	t.Run("earning repays debt", func(t *testing.T) {
		f.award(t, 20)
		b := f.balance(t)
		if b.CreditUsed != 10 || b.CurrentStars != -10 {
			t.Errorf("got credit_used %d current %d, want 10 and -10", b.CreditUsed, b.CurrentStars)
		}
		crs, _ := f.l.ListCreditTransactions(ctx, f.child.ID)
		last := crs[len(crs)-1]
		if last.Type != credit.TypeCreditRepaid || last.Amount != 20 || last.BalanceAfter != 10 {
			t.Errorf("got %+v, want credit_repaid 20 leaving 10", last)
		}
	})

	t.Run("fulfil", func(t *testing.T) {
		if err := f.l.FulfillRedemption(ctx, rd.ID, f.parent.ID); err != nil {
			t.Fatal(err)
		}
		stored, _ := f.l.Store().GetRedemption(ctx, rd.ID)
		if stored.Status != redemption.StatusFulfilled || stored.FulfilledAt == nil {
			t.Errorf("got %s fulfilled_at %v", stored.Status, stored.FulfilledAt)
		}
		if got := f.balance(t).CurrentStars; got != -10 {
			t.Errorf("fulfilment moved balance to %d", got)
		}
	})
}

func TestRedemptionInsufficient(t *testing.T) {
	ctx := context.Background()

	t.Run("no credit", func(t *testing.T) {
		f := newFixture(t)
		f.award(t, 30)
		_, err := f.l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID})
		if !errors.Is(err, starledger.ErrInsufficientBalance) {
			t.Errorf("got %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("over the credit limit", func(t *testing.T) {
		f := newFixture(t)
		f.award(t, 30)
		f.enableCredit(t, 10)
		_, err := f.l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID})
		if !errors.Is(err, starledger.ErrInsufficientBalance) || !errors.Is(err, starledger.ErrCreditLimitExceeded) {
			t.Errorf("got %v, want ErrInsufficientBalance and ErrCreditLimitExceeded", err)
		}
	})

	t.Run("balance spent before approval", func(t *testing.T) {
		f := newFixture(t)
		f.award(t, 60)
		rd, err := f.l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.l.CreateParentRedemption(ctx, starledger.ParentRedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID, CreatorID: f.parent.ID}); err != nil {
			t.Fatal(err)
		}
		if err := f.l.ApproveEntry(ctx, rd.ID, f.parent.ID); !errors.Is(err, starledger.ErrInsufficientBalance) {
			t.Errorf("got %v, want ErrInsufficientBalance", err)
		}
		stored, _ := f.l.Store().GetRedemption(ctx, rd.ID)
		if stored.Status != redemption.StatusPending {
			t.Errorf("failed approval left status %s", stored.Status)
		}
	})
}

func TestParentRedemption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.award(t, 59)
	f.enableCredit(t, 100)

	_, err := f.l.CreateParentRedemption(ctx, starledger.ParentRedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID, CreatorID: f.parent.ID})
	if !errors.Is(err, starledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance: parent redemptions never borrow", err)
	}

	f.award(t, 1)
	rd, err := f.l.CreateParentRedemption(ctx, starledger.ParentRedemptionInput{ChildID: f.child.ID, RewardID: f.reward.ID, CreatorID: f.parent.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rd.Status != redemption.StatusApproved || rd.UsesCredit {
		t.Errorf("got %s uses_credit %v", rd.Status, rd.UsesCredit)
	}
	if got := f.balance(t).CurrentStars; got != 0 {
		t.Errorf("got %d stars, want 0", got)
	}
}

func TestParentRecordFromQuest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	penalty := f.newQuest(t, "Shouting", -3)

	rec, err := f.l.CreateParentRecord(ctx, starledger.ParentRecordInput{ChildID: f.child.ID, CreatorID: f.parent.ID, QuestID: penalty.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Stars != -3 || rec.Description != "Shouting" || rec.Status != transaction.StatusApproved {
		t.Errorf("got %+v", rec)
	}
	b := f.balance(t)
	if b.CurrentStars != -3 || b.LifetimeStars != 0 || b.SpendableStars != 0 {
		t.Errorf("got %+v", b)
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		run  func() error
	}{
		{"missing child", func() error {
			_, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{QuestID: f.quest.ID})
			return err
		}},
		{"wrong id kind", func() error {
			_, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: f.reward.ID})
			return err
		}},
		{"zero-star quest", func() error {
			_, err := f.l.CreateQuest(ctx, starledger.QuestInput{FamilyID: f.family.ID, Name: "Nothing"})
			return err
		}},
		{"parent record without stars or quest", func() error {
			_, err := f.l.CreateParentRecord(ctx, starledger.ParentRecordInput{ChildID: f.child.ID, CreatorID: f.parent.ID})
			return err
		}},
		{"unknown role", func() error {
			_, err := f.l.AddMember(ctx, starledger.MemberInput{FamilyID: f.family.ID, Name: "Rex", Role: "dog"})
			return err
		}},
		{"bad timezone", func() error {
			_, err := f.l.CreateFamily(ctx, starledger.FamilyInput{Name: "X", Timezone: "Mars/Olympus"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !starledger.IsValidation(err) {
				t.Errorf("got %v, want a validation error", err)
			}
		})
	}
}

func TestBalanceCacheAndReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.award(t, 12)
	_ = f.balance(t)

	bogus := &starledger.Balance{ChildID: f.child.ID, CurrentStars: 999}
	if err := f.store.SetCachedBalance(ctx, bogus); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t).CurrentStars; got != 999 {
		t.Fatalf("got %d, want the cached 999", got)
	}

	fresh, err := f.l.ReconcileBalance(ctx, f.child.ID)
	if !errors.Is(err, starledger.ErrBalanceDrift) {
		t.Fatalf("got %v, want ErrBalanceDrift", err)
	}
	if fresh.CurrentStars != 12 {
		t.Errorf("got %d, want 12", fresh.CurrentStars)
	}
	if got := f.balance(t).CurrentStars; got != 12 {
		t.Errorf("cache not rewritten: got %d", got)
	}

	if _, err := f.l.ReconcileBalance(ctx, f.child.ID); err != nil {
		t.Errorf("got %v on a clean cache", err)
	}
}

func twoTiers() []starledger.TierInput {
	hundred := int64(100)
	return []starledger.TierInput{
		{Order: 1, MinDebt: 0, MaxDebt: &hundred, Rate: decimal.RequireFromString("0.1")},
		{Order: 2, MinDebt: 100, Rate: decimal.RequireFromString("0.2")},
	}
}

// borrow leaves the child owing amount through an approved redemption.
func (f *fixture) borrow(t *testing.T, amount int64) {
	t.Helper()
	ctx := context.Background()
	reward, err := f.l.CreateReward(ctx, starledger.RewardInput{FamilyID: f.family.ID, Name: "Bike", StarsCost: amount})
	if err != nil {
		t.Fatal(err)
	}
	rd, err := f.l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: f.child.ID, RewardID: reward.ID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.l.ApproveEntry(ctx, rd.ID, f.parent.ID); err != nil {
		t.Fatal(err)
	}
}

func TestRunSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enableCredit(t, 200)
	if _, err := f.l.SetInterestTiers(ctx, f.family.ID, twoTiers()); err != nil {
		t.Fatal(err)
	}
	f.borrow(t, 150)

	periodEnd := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	st, err := f.l.RunSettlement(ctx, f.child.ID, periodEnd)
	if err != nil {
		t.Fatalf("RunSettlement: %v", err)
	}
	if st.DebtAmount != 150 || st.InterestCalculated != 20 {
		t.Errorf("got debt %d interest %d, want 150 and 20", st.DebtAmount, st.InterestCalculated)
	}
	if st.BreakdownTotal() != st.InterestCalculated {
		t.Errorf("breakdown sums to %d, want %d", st.BreakdownTotal(), st.InterestCalculated)
	}
	if st.CreditLimitAfter != 200 || st.CreditLimitAdjustment != 0 {
		t.Errorf("got limit %d adj %d, want 200 and 0", st.CreditLimitAfter, st.CreditLimitAdjustment)
	}

	b := f.balance(t)
	if b.CreditUsed != 170 || b.CurrentStars != -170 {
		t.Errorf("got credit_used %d current %d, want 170 and -170", b.CreditUsed, b.CurrentStars)
	}

	crs, _ := f.l.ListCreditTransactions(ctx, f.child.ID)
	last := crs[len(crs)-1]
	if last.Type != credit.TypeInterestCharged || last.SettlementID.String() != st.ID.String() {
		t.Errorf("got %+v, want interest_charged linked to settlement", last)
	}

	if _, err := f.l.RunSettlement(ctx, f.child.ID, periodEnd); !errors.Is(err, starledger.ErrAlreadySettled) {
		t.Errorf("got %v, want ErrAlreadySettled", err)
	}
}

func TestRunSettlementRefusals(t *testing.T) {
	ctx := context.Background()
	periodEnd := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)

	t.Run("credit disabled", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.l.RunSettlement(ctx, f.child.ID, periodEnd); !errors.Is(err, starledger.ErrCreditDisabled) {
			t.Errorf("got %v, want ErrCreditDisabled", err)
		}
	})

	t.Run("nothing owed", func(t *testing.T) {
		f := newFixture(t)
		f.enableCredit(t, 50)
		if _, err := f.l.RunSettlement(ctx, f.child.ID, periodEnd); !errors.Is(err, starledger.ErrNoOutstandingDebt) {
			t.Errorf("got %v, want ErrNoOutstandingDebt", err)
		}
		list, _ := f.l.ListSettlements(ctx, f.child.ID)
		if len(list) != 0 {
			t.Errorf("got %d settlements, want none written", len(list))
		}
	})
}

func TestSettlementStepPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, starledger.WithLimitPolicy(settlement.StepPolicy{Step: 50}))
	f.enableCredit(t, 150)
	if _, err := f.l.SetInterestTiers(ctx, f.family.ID, twoTiers()); err != nil {
		t.Fatal(err)
	}
	f.borrow(t, 150)

	st, err := f.l.RunSettlement(ctx, f.child.ID, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if st.CreditLimitBefore != 150 || st.CreditLimitAfter != 100 || st.CreditLimitAdjustment != -50 {
		t.Errorf("got %d -> %d (%d), want 150 -> 100 (-50)", st.CreditLimitBefore, st.CreditLimitAfter, st.CreditLimitAdjustment)
	}
	cs, _ := f.l.GetCreditSettings(ctx, f.child.ID)
	if cs.CreditLimit != 100 || cs.OriginalCreditLimit != 150 {
		t.Errorf("got limit %d original %d", cs.CreditLimit, cs.OriginalCreditLimit)
	}
}

func TestRunFamilySettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enableCredit(t, 200)
	_, _ = f.l.SetInterestTiers(ctx, f.family.ID, twoTiers())
	f.borrow(t, 80)

	sibling, _ := f.l.AddMember(ctx, starledger.MemberInput{FamilyID: f.family.ID, Name: "Bo", Role: family.RoleChild})
	_, _ = f.l.ConfigureCredit(ctx, starledger.CreditInput{ChildID: sibling.ID, Limit: 20, Enabled: true})

	results, err := f.l.RunFamilySettlement(ctx, f.family.ID, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	settled, skipped := 0, 0
	for _, r := range results {
		switch {
		case r.Err == nil:
			settled++
			if r.Settlement.InterestCalculated != 8 {
				t.Errorf("got interest %d, want 8", r.Settlement.InterestCalculated)
			}
		case r.Skipped():
			skipped++
		default:
			t.Errorf("unexpected failure: %v", r.Err)
		}
	}
	if settled != 1 || skipped != 1 {
		t.Errorf("got %d settled %d skipped, want 1 and 1", settled, skipped)
	}
}

func TestSetInterestTiersValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.l.SetInterestTiers(ctx, f.family.ID, []starledger.TierInput{
		{Order: 1, MinDebt: -5, Rate: decimal.RequireFromString("0.1")},
		{Order: 1, MinDebt: 0, Rate: decimal.RequireFromString("-1")},
	})
	if !errors.Is(err, starledger.ErrInvalidTiers) || !starledger.IsValidation(err) {
		t.Errorf("got %v, want ErrInvalidTiers", err)
	}
}

func TestApproveRedemptionAfterBalanceChanged(t *testing.T) {
	request := func(t *testing.T, f *fixture, cost int64) *redemption.Redemption {
		t.Helper()
		reward, err := f.l.CreateReward(context.Background(), starledger.RewardInput{FamilyID: f.family.ID, Name: "Treat", StarsCost: cost})
		if err != nil {
			t.Fatal(err)
		}
		rd, err := f.l.CreateRedemptionRequest(context.Background(), starledger.RedemptionInput{ChildID: f.child.ID, RewardID: reward.ID})
		if err != nil {
			t.Fatalf("CreateRedemptionRequest: %v", err)
		}
		return rd
	}

	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture) []*redemption.Redemption
		wantErr    error // from approving the last redemption
		wantCredit []int64
		wantDebt   int64
		wantStars  int64
	}{
		{
			name: "stars earned after the request shrink the loan",
			setup: func(t *testing.T, f *fixture) []*redemption.Redemption {
				f.enableCredit(t, 100)
				rd := request(t, f, 60)
				f.award(t, 40)
				return []*redemption.Redemption{rd}
			},
			wantCredit: []int64{20},
			wantDebt:   20,
			wantStars:  -20,
		},
		{
			name: "own stars spent elsewhere without credit",
			setup: func(t *testing.T, f *fixture) []*redemption.Redemption {
				f.award(t, 60)
				return []*redemption.Redemption{request(t, f, 60), request(t, f, 60)}
			},
			wantErr:    starledger.ErrInsufficientBalance,
			wantCredit: []int64{0, 0},
			wantStars:  0,
		},
		{
			name: "borrowing at approval is recorded on the redemption",
			setup: func(t *testing.T, f *fixture) []*redemption.Redemption {
				f.enableCredit(t, 100)
				f.award(t, 60)
				return []*redemption.Redemption{request(t, f, 60), request(t, f, 60)}
			},
			wantCredit: []int64{0, 60},
			wantDebt:   60,
			wantStars:  -60,
		},
		{
			name: "credit used up by an earlier approval",
			setup: func(t *testing.T, f *fixture) []*redemption.Redemption {
				f.enableCredit(t, 100)
				return []*redemption.Redemption{request(t, f, 60), request(t, f, 60)}
			},
			wantErr:    starledger.ErrCreditLimitExceeded,
			wantCredit: []int64{60, 60},
			wantDebt:   60,
			wantStars:  -60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			rds := tt.setup(t, f)

			for i, rd := range rds {
				err := f.l.ApproveEntry(ctx, rd.ID, f.parent.ID)
				want := error(nil)
				if i == len(rds)-1 {
					want = tt.wantErr
				}
				if want == nil && err != nil {
					t.Fatalf("approve %d: %v", i, err)
				}
				if want != nil && !errors.Is(err, want) {
					t.Fatalf("approve %d: got %v, want %v", i, err, want)
				}
			}

			b := f.balance(t)
			if b.CreditUsed != tt.wantDebt {
				t.Errorf("credit used: got %d, want %d", b.CreditUsed, tt.wantDebt)
			}
			if b.CurrentStars != tt.wantStars {
				t.Errorf("current stars: got %d, want %d", b.CurrentStars, tt.wantStars)
			}

			history, err := f.l.ListCreditTransactions(ctx, f.child.ID)
			if err != nil {
				t.Fatal(err)
			}
			booked := make(map[string]int64)
			for _, c := range history {
				if c.Type == credit.TypeCreditUsed {
					booked[c.RedemptionID.String()] += c.Amount
				}
			}

			for i, rd := range rds {
				stored, err := f.store.GetRedemption(ctx, rd.ID)
				if err != nil {
					t.Fatal(err)
				}
				if stored.CreditAmount != tt.wantCredit[i] {
					t.Errorf("redemption %d credit_amount: got %d, want %d", i, stored.CreditAmount, tt.wantCredit[i])
				}
				if stored.UsesCredit != (stored.CreditAmount > 0) {
					t.Errorf("redemption %d uses_credit %v with credit_amount %d", i, stored.UsesCredit, stored.CreditAmount)
				}
				if stored.Status == redemption.StatusApproved && booked[rd.ID.String()] != stored.CreditAmount {
					t.Errorf("redemption %d: booked %d, credit_amount %d", i, booked[rd.ID.String()], stored.CreditAmount)
				}
				if stored.Status == redemption.StatusPending && booked[rd.ID.String()] != 0 {
					t.Errorf("pending redemption %d has %d credit booked", i, booked[rd.ID.String()])
				}
			}
		})
	}
}

func TestParentRecordsDoNotCountTowardGuard(t *testing.T) {
	tests := []struct {
		name      string
		sameQuest bool
	}{
		{"same quest as parent record", true},
		{"other quest after parent records", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			for range 2 {
				if _, err := f.l.CreateParentRecord(ctx, starledger.ParentRecordInput{
					ChildID:   f.child.ID,
					CreatorID: f.parent.ID,
					QuestID:   f.quest.ID,
				}); err != nil {
					t.Fatalf("CreateParentRecord: %v", err)
				}
			}
			f.clock.Advance(10 * time.Second)

			quest := f.quest
			if !tt.sameQuest {
				quest = f.newQuest(t, "Feed cat", 3)
			}
			if _, err := f.l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: f.child.ID, QuestID: quest.ID}); err != nil {
				t.Errorf("got %v, want nil", err)
			}
		})
	}
}

func TestSetInterestTiersRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	hundred := int64(100)
	_, err := f.l.SetInterestTiers(context.Background(), f.family.ID, []starledger.TierInput{
		{Order: 1, MinDebt: 0, MaxDebt: &hundred, Rate: decimal.RequireFromString("0.1")},
		{Order: 2, MinDebt: 50, Rate: decimal.RequireFromString("0.2")},
	})
	if !errors.Is(err, starledger.ErrInvalidTiers) {
		t.Errorf("got %v, want ErrInvalidTiers", err)
	}
}
