package guard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/transaction"
)

type fakeReader struct {
	txs []*transaction.StarTransaction
}

func (r *fakeReader) ListStarTransactions(_ context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error) {
	var out []*transaction.StarTransaction
	for _, t := range r.txs {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeReader) CountStarTransactions(ctx context.Context, f transaction.ListFilter) (int64, error) {
	out, err := r.ListStarTransactions(ctx, f)
	return int64(len(out)), err
}

func (r *fakeReader) add(child id.MemberID, quest id.QuestID, status transaction.Status, at time.Time) {
	r.txs = append(r.txs, &transaction.StarTransaction{
		ID:        id.NewStarTransactionID(),
		ChildID:   child,
		QuestID:   quest,
		Stars:     5,
		Source:    transaction.SourceChildRequest,
		Status:    status,
		CreatedAt: at,
	})
}

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestCheckAllowsFirstRequest(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	r := &fakeReader{}
	err := g.Check(context.Background(), r, guard.Request{
		ChildID: id.NewMemberID(),
		QuestID: id.NewQuestID(),
		Now:     base,
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheckDuplicatePending(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	r.add(child, quest, transaction.StatusPending, base)

	err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: base.Add(3 * time.Hour)})
	if !errors.Is(err, guard.ErrDuplicatePending) {
		t.Fatalf("got %v, want ErrDuplicatePending", err)
	}
	var gerr *guard.Error
	if !errors.As(err, &gerr) || gerr.Rule != guard.RuleDuplicatePending {
		t.Errorf("got %v, want rule %s", err, guard.RuleDuplicatePending)
	}
}

func TestCheckDuplicatePendingResetsNextDay(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	r.add(child, quest, transaction.StatusPending, base)

	err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: base.Add(24 * time.Hour)})
	if err != nil {
		t.Errorf("got %v, want nil on the following day", err)
	}
}

func TestCheckDuplicatePendingUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	g := guard.New(guard.DefaultPolicy())
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	// 03:00 UTC on the 10th is still the 9th at UTC-5.
	r.add(child, quest, transaction.StatusPending, time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC))

	now := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC) // 01:00 local on the 10th
	if err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: now, Location: loc}); err != nil {
		t.Errorf("got %v, want nil across a local midnight", err)
	}
	if err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: now}); !errors.Is(err, guard.ErrDuplicatePending) {
		t.Errorf("got %v, want ErrDuplicatePending in UTC", err)
	}
}

func TestCheckQuestCooldown(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	r.add(child, quest, transaction.StatusApproved, base)

	tests := []struct {
		name    string
		now     time.Time
		wantErr bool
		retry   time.Duration
	}{
		{"within cooldown", base.Add(30 * time.Second), true, 90 * time.Second},
		{"just before expiry", base.Add(119 * time.Second), true, time.Second},
		{"after cooldown", base.Add(2 * time.Minute), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: tt.now})
			if !tt.wantErr {
				if err != nil {
					t.Errorf("got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, guard.ErrRateLimited) {
				t.Fatalf("got %v, want ErrRateLimited", err)
			}
			var gerr *guard.Error
			if !errors.As(err, &gerr) {
				t.Fatalf("got %T, want *guard.Error", err)
			}
			if gerr.Rule != guard.RuleQuestCooldown {
				t.Errorf("got rule %s, want %s", gerr.Rule, guard.RuleQuestCooldown)
			}
			if gerr.RetryAfter != tt.retry {
				t.Errorf("got retry %v, want %v", gerr.RetryAfter, tt.retry)
			}
		})
	}
}

func TestCheckGlobalCooldown(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child := id.NewMemberID()
	r := &fakeReader{}
	r.add(child, id.NewQuestID(), transaction.StatusRejected, base)
	r.add(child, id.NewQuestID(), transaction.StatusApproved, base.Add(20*time.Second))

	err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: id.NewQuestID(), Now: base.Add(40 * time.Second)})
	var gerr *guard.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("got %v, want *guard.Error", err)
	}
	if gerr.Rule != guard.RuleGlobalCooldown {
		t.Errorf("got rule %s, want %s", gerr.Rule, guard.RuleGlobalCooldown)
	}
	if gerr.RetryAfter != 20*time.Second {
		t.Errorf("got retry %v, want 20s", gerr.RetryAfter)
	}

	err = g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: id.NewQuestID(), Now: base.Add(61 * time.Second)})
	if err != nil {
		t.Errorf("got %v, want nil once the window has slid", err)
	}
}

func TestCheckOtherChildUnaffected(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	quest := id.NewQuestID()
	r := &fakeReader{}
	busy := id.NewMemberID()
	r.add(busy, quest, transaction.StatusPending, base)
	r.add(busy, id.NewQuestID(), transaction.StatusPending, base)

	if err := g.Check(context.Background(), r, guard.Request{ChildID: id.NewMemberID(), QuestID: quest, Now: base}); err != nil {
		t.Errorf("got %v, want nil for a different child", err)
	}
}

func TestCheckDisabledLimits(t *testing.T) {
	g := guard.New(guard.Policy{})
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	r.add(child, quest, transaction.StatusApproved, base)
	r.add(child, id.NewQuestID(), transaction.StatusApproved, base)
	r.add(child, id.NewQuestID(), transaction.StatusApproved, base)

	if err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: quest, Now: base}); err != nil {
		t.Errorf("got %v, want nil with limits disabled", err)
	}
}

func TestCheckGlobalCooldownBoundary(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child := id.NewMemberID()
	r := &fakeReader{}
	r.add(child, id.NewQuestID(), transaction.StatusApproved, base)
	r.add(child, id.NewQuestID(), transaction.StatusApproved, base.Add(10*time.Second))

	if err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: id.NewQuestID(), Now: base.Add(time.Minute)}); err != nil {
		t.Errorf("got %v, want nil exactly one window after the oldest request", err)
	}
}

func TestCheckIgnoresParentRecords(t *testing.T) {
	g := guard.New(guard.DefaultPolicy())
	child, quest := id.NewMemberID(), id.NewQuestID()
	r := &fakeReader{}
	for _, q := range []id.QuestID{quest, id.NewQuestID(), id.NewQuestID()} {
		r.txs = append(r.txs, &transaction.StarTransaction{
			ID:        id.NewStarTransactionID(),
			ChildID:   child,
			QuestID:   q,
			Stars:     5,
			Source:    transaction.SourceParentRecord,
			Status:    transaction.StatusApproved,
			CreatedAt: base,
		})
	}

	tests := []struct {
		name  string
		quest id.QuestID
	}{
		{"same quest as a parent record", quest},
		{"other quest after two parent records", id.NewQuestID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(context.Background(), r, guard.Request{ChildID: child, QuestID: tt.quest, Now: base.Add(10 * time.Second)})
			if err != nil {
				t.Errorf("got %v, want nil", err)
			}
		})
	}
}
