package sqlite_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/store/sqlite"
	"github.com/xraph/starledger/transaction"
)

func openLedger(t *testing.T, now *time.Time) *starledger.Ledger {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	if err := drv.Open(ctx, filepath.Join(t.TempDir(), "starledger.db")); err != nil {
		t.Fatal(err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatal(err)
	}
	l := starledger.New(sqlite.New(db),
		starledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		starledger.WithClock(func() time.Time { return *now }),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestChildRequestAfterParentRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	l := openLedger(t, &now)

	fam, err := l.CreateFamily(ctx, starledger.FamilyInput{Name: "Haddad"})
	if err != nil {
		t.Fatal(err)
	}
	parent, err := l.AddMember(ctx, starledger.MemberInput{FamilyID: fam.ID, Name: "Rana", Role: family.RoleParent})
	if err != nil {
		t.Fatal(err)
	}
	child, err := l.AddMember(ctx, starledger.MemberInput{FamilyID: fam.ID, Name: "Omar", Role: family.RoleChild})
	if err != nil {
		t.Fatal(err)
	}
	quest, err := l.CreateQuest(ctx, starledger.QuestInput{FamilyID: fam.ID, Name: "Water plants", Stars: 4})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := l.CreateParentRecord(ctx, starledger.ParentRecordInput{ChildID: child.ID, CreatorID: parent.ID, QuestID: quest.ID}); err != nil {
			t.Fatalf("CreateParentRecord: %v", err)
		}
	}
	now = now.Add(10 * time.Second)

	req, err := l.CreateChildRequest(ctx, starledger.ChildRequestInput{ChildID: child.ID, QuestID: quest.ID})
	if err != nil {
		t.Fatalf("CreateChildRequest: got %v, want nil", err)
	}

	if err := l.ApproveEntry(ctx, req.ID, parent.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}
	if err := l.ApproveEntry(ctx, req.ID, parent.ID); !errors.Is(err, starledger.ErrAlreadyReviewed) {
		t.Errorf("second approve: got %v, want ErrAlreadyReviewed", err)
	}

	got, err := l.ListStarTransactions(ctx, transaction.ListFilter{
		ChildID: child.ID,
		Sources: []transaction.Source{transaction.SourceChildRequest},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Status != transaction.StatusApproved {
		t.Errorf("got %d child requests, want 1 approved", len(got))
	}
}

func TestApprovalRewritesRedemptionCredit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	l := openLedger(t, &now)

	fam, err := l.CreateFamily(ctx, starledger.FamilyInput{Name: "Haddad"})
	if err != nil {
		t.Fatal(err)
	}
	parent, err := l.AddMember(ctx, starledger.MemberInput{FamilyID: fam.ID, Name: "Rana", Role: family.RoleParent})
	if err != nil {
		t.Fatal(err)
	}
	child, err := l.AddMember(ctx, starledger.MemberInput{FamilyID: fam.ID, Name: "Omar", Role: family.RoleChild})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.ConfigureCredit(ctx, starledger.CreditInput{ChildID: child.ID, Limit: 100, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	reward, err := l.CreateReward(ctx, starledger.RewardInput{FamilyID: fam.ID, Name: "Cinema", StarsCost: 60})
	if err != nil {
		t.Fatal(err)
	}

	rd, err := l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{ChildID: child.ID, RewardID: reward.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rd.CreditAmount != 60 {
		t.Fatalf("requested credit: got %d, want 60", rd.CreditAmount)
	}
	if _, err := l.CreateParentRecord(ctx, starledger.ParentRecordInput{ChildID: child.ID, CreatorID: parent.ID, Description: "bonus", Stars: 45}); err != nil {
		t.Fatal(err)
	}

	if err := l.ApproveEntry(ctx, rd.ID, parent.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}
	got, err := l.Store().GetRedemption(ctx, rd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CreditAmount != 15 || !got.UsesCredit {
		t.Errorf("stored credit: got %d (uses %v), want 15", got.CreditAmount, got.UsesCredit)
	}
	b, err := l.GetBalance(ctx, child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.CreditUsed != 15 || b.CurrentStars != -15 {
		t.Errorf("balance: got debt %d stars %d, want 15 and -15", b.CreditUsed, b.CurrentStars)
	}
	if err := l.Store().SetRedemptionCredit(ctx, rd.ID, 0); !errors.Is(err, starledger.ErrInvalidTransition) {
		t.Errorf("rewrite approved row: got %v, want ErrInvalidTransition", err)
	}
}
