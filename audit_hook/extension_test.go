package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	audithook "github.com/xraph/starledger/audit_hook"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/transaction"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestStarTransactionActions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		tx     transaction.StarTransaction
		review bool
		action string
	}{
		{"ChildRequest", transaction.StarTransaction{Source: transaction.SourceChildRequest, Status: transaction.StatusPending}, false, audithook.ActionStarsRequested},
		{"ParentRecord", transaction.StarTransaction{Source: transaction.SourceParentRecord, Status: transaction.StatusApproved}, false, audithook.ActionStarsRecorded},
		{"Approved", transaction.StarTransaction{Source: transaction.SourceChildRequest, Status: transaction.StatusApproved}, true, audithook.ActionStarsApproved},
		{"Rejected", transaction.StarTransaction{Source: transaction.SourceChildRequest, Status: transaction.StatusRejected}, true, audithook.ActionStarsRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captured{}
			e := audithook.New(rec)
			tx := tt.tx
			tx.ID = id.NewStarTransactionID()
			tx.ChildID = id.NewMemberID()
			tx.Stars = 4

			var err error
			if tt.review {
				err = e.OnStarTransactionReviewed(ctx, &tx)
			} else {
				err = e.OnStarTransactionCreated(ctx, &tx)
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(rec.events) != 1 {
				t.Fatalf("got %d events, want 1", len(rec.events))
			}
			evt := rec.events[0]
			if evt.Action != tt.action {
				t.Errorf("got action %q, want %q", evt.Action, tt.action)
			}
			if evt.ResourceID != tx.ID.String() {
				t.Errorf("got resource %q, want %q", evt.ResourceID, tx.ID)
			}
			if evt.Metadata["stars"] != int64(4) {
				t.Errorf("got stars %v, want 4", evt.Metadata["stars"])
			}
		})
	}
}

func TestCreditTransactionSeverity(t *testing.T) {
	rec := &captured{}
	e := audithook.New(rec)
	ctx := context.Background()

	for _, typ := range []credit.Type{credit.TypeCreditUsed, credit.TypeCreditRepaid, credit.TypeInterestCharged} {
		if err := e.OnCreditTransaction(ctx, &credit.Transaction{ID: id.NewCreditTransactionID(), Type: typ, Amount: 10}); err != nil {
			t.Fatal(err)
		}
	}

	want := []struct{ action, severity string }{
		{audithook.ActionCreditUsed, audithook.SeverityInfo},
		{audithook.ActionCreditRepaid, audithook.SeverityInfo},
		{audithook.ActionInterestCharged, audithook.SeverityWarning},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("got %d events, want %d", len(rec.events), len(want))
	}
	for i, w := range want {
		if rec.events[i].Action != w.action || rec.events[i].Severity != w.severity {
			t.Errorf("event %d: got %s/%s, want %s/%s", i, rec.events[i].Action, rec.events[i].Severity, w.action, w.severity)
		}
	}
}

func TestGuardRejectionCarriesRule(t *testing.T) {
	rec := &captured{}
	e := audithook.New(rec)

	gerr := guard.NewError(guard.RuleQuestCooldown, 90*time.Second)
	if err := e.OnGuardRejected(context.Background(), id.NewMemberID(), id.NewQuestID(), gerr); err != nil {
		t.Fatal(err)
	}
	evt := rec.events[0]
	if evt.Metadata["rule"] != string(guard.RuleQuestCooldown) {
		t.Errorf("got rule %v, want %s", evt.Metadata["rule"], guard.RuleQuestCooldown)
	}
	if evt.Outcome != audithook.OutcomeFailure {
		t.Errorf("got outcome %q, want failure", evt.Outcome)
	}
}

func TestBatchOutcome(t *testing.T) {
	tests := []struct {
		succeeded, failed int
		want              string
	}{
		{3, 0, audithook.OutcomeSuccess},
		{2, 1, audithook.OutcomePartial},
		{0, 2, audithook.OutcomeFailure},
	}
	for _, tt := range tests {
		rec := &captured{}
		e := audithook.New(rec)
		if err := e.OnBatchCompleted(context.Background(), "approve", tt.succeeded, tt.failed, time.Millisecond); err != nil {
			t.Fatal(err)
		}
		if got := rec.events[0].Outcome; got != tt.want {
			t.Errorf("%d/%d: got %q, want %q", tt.succeeded, tt.failed, got, tt.want)
		}
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	r := &redemption.Redemption{ID: id.NewRedemptionID(), Status: redemption.StatusRejected}

	rec := &captured{}
	e := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionRedemptionRejected))
	_ = e.OnRedemptionCreated(ctx, r)  //nolint:errcheck // always nil
	_ = e.OnRedemptionReviewed(ctx, r) //nolint:errcheck // always nil
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionRedemptionRejected {
		t.Errorf("got %d events, want only the rejection", len(rec.events))
	}

	rec = &captured{}
	e = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionRedemptionRequested))
	_ = e.OnRedemptionCreated(ctx, r)   //nolint:errcheck // always nil
	_ = e.OnRedemptionFulfilled(ctx, r) //nolint:errcheck // always nil
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionRedemptionFulfilled {
		t.Errorf("got %d events, want only the fulfilment", len(rec.events))
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	e := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("chronicle down")
	}))
	if err := e.OnRedemptionFulfilled(context.Background(), &redemption.Redemption{ID: id.NewRedemptionID()}); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}
