package kafkahook_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	kafkahook "github.com/xraph/starledger/kafka_hook"
	"github.com/xraph/starledger/transaction"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func decode(t *testing.T, msg kafka.Message) kafkahook.Envelope {
	t.Helper()
	var env kafkahook.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestMessagesKeyedByChild(t *testing.T) {
	w := &fakeWriter{}
	e := kafkahook.New(w)
	ctx := context.Background()

	tx := &transaction.StarTransaction{
		ID:       id.NewStarTransactionID(),
		FamilyID: id.NewFamilyID(),
		ChildID:  id.NewMemberID(),
		Stars:    5,
		Status:   transaction.StatusPending,
	}
	if err := e.OnStarTransactionCreated(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if err := e.OnCreditTransaction(ctx, &credit.Transaction{ID: id.NewCreditTransactionID(), FamilyID: tx.FamilyID, ChildID: tx.ChildID, Type: credit.TypeCreditRepaid, Amount: 5}); err != nil {
		t.Fatal(err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(w.msgs))
	}
	for _, msg := range w.msgs {
		if string(msg.Key) != tx.ChildID.String() {
			t.Errorf("got key %q, want %q", msg.Key, tx.ChildID)
		}
	}

	env := decode(t, w.msgs[0])
	if env.Type != kafkahook.EventStarTransactionCreate {
		t.Errorf("got type %q, want %q", env.Type, kafkahook.EventStarTransactionCreate)
	}
	if env.FamilyID != tx.FamilyID.String() {
		t.Errorf("got family %q, want %q", env.FamilyID, tx.FamilyID)
	}
	if string(w.msgs[1].Headers[0].Value) != kafkahook.EventCreditTransaction {
		t.Errorf("got header %q, want %q", w.msgs[1].Headers[0].Value, kafkahook.EventCreditTransaction)
	}
}

func TestFamilyEventsKeyedByFamily(t *testing.T) {
	w := &fakeWriter{}
	e := kafkahook.New(w)

	f := &family.Family{ID: id.NewFamilyID(), Name: "Haddad"}
	if err := e.OnFamilyCreated(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if string(w.msgs[0].Key) != f.ID.String() {
		t.Errorf("got key %q, want %q", w.msgs[0].Key, f.ID)
	}
	if env := decode(t, w.msgs[0]); env.ChildID != "" {
		t.Errorf("got child %q, want none", env.ChildID)
	}
}

func TestGuardRejectionPayload(t *testing.T) {
	w := &fakeWriter{}
	e := kafkahook.New(w)

	gerr := guard.NewError(guard.RuleGlobalCooldown, 45*time.Second)
	if err := e.OnGuardRejected(context.Background(), id.NewMemberID(), id.NewQuestID(), gerr); err != nil {
		t.Fatal(err)
	}
	env := decode(t, w.msgs[0])
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("got data %T, want object", env.Data)
	}
	if data["rule"] != string(guard.RuleGlobalCooldown) {
		t.Errorf("got rule %v, want %s", data["rule"], guard.RuleGlobalCooldown)
	}
	if data["retry_after_seconds"] != float64(45) {
		t.Errorf("got retry %v, want 45", data["retry_after_seconds"])
	}
}

func TestPublishFailureAndShutdown(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	e := kafkahook.New(w)
	ctx := context.Background()

	err := e.OnMemberAdded(ctx, &family.Member{ID: id.NewMemberID(), FamilyID: id.NewFamilyID()})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if !errors.Is(err, w.err) {
		t.Errorf("got %v, want wrapped broker error", err)
	}

	if err := e.OnShutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed on shutdown")
	}
}
