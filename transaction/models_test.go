package transaction_test

import (
	"testing"
	"time"

	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/transaction"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to transaction.Status
		want     bool
	}{
		{transaction.StatusPending, transaction.StatusApproved, true},
		{transaction.StatusPending, transaction.StatusRejected, true},
		{transaction.StatusApproved, transaction.StatusRejected, false},
		{transaction.StatusRejected, transaction.StatusApproved, false},
		{transaction.StatusApproved, transaction.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if transaction.StatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	if !transaction.StatusApproved.IsTerminal() || !transaction.StatusRejected.IsTerminal() {
		t.Error("approved and rejected must be terminal")
	}
}

func TestListFilterMatch(t *testing.T) {
	child := id.NewMemberID()
	quest := id.NewQuestID()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tx := &transaction.StarTransaction{
		ID:        id.NewStarTransactionID(),
		ChildID:   child,
		QuestID:   quest,
		Source:    transaction.SourceChildRequest,
		Status:    transaction.StatusPending,
		CreatedAt: at,
	}

	tests := []struct {
		name string
		f    transaction.ListFilter
		want bool
	}{
		{"empty filter", transaction.ListFilter{}, true},
		{"same child", transaction.ListFilter{ChildID: child}, true},
		{"other child", transaction.ListFilter{ChildID: id.NewMemberID()}, false},
		{"other quest", transaction.ListFilter{QuestID: id.NewQuestID()}, false},
		{"status match", transaction.ListFilter{Statuses: []transaction.Status{transaction.StatusApproved, transaction.StatusPending}}, true},
		{"status miss", transaction.ListFilter{Statuses: []transaction.Status{transaction.StatusApproved}}, false},
		{"source match", transaction.ListFilter{Sources: []transaction.Source{transaction.SourceChildRequest}}, true},
		{"source miss", transaction.ListFilter{Sources: []transaction.Source{transaction.SourceParentRecord}}, false},
		{"from is inclusive", transaction.ListFilter{CreatedFrom: at}, true},
		{"from later", transaction.ListFilter{CreatedFrom: at.Add(time.Second)}, false},
		{"before is exclusive", transaction.ListFilter{CreatedBefore: at}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(tx); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
