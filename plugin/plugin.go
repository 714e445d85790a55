// Package plugin lets extensions observe ledger events. Hooks run after the
// originating write has committed, so a plugin can never roll a write back.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. l is the *starledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Family hooks
// ──────────────────────────────────────────────────

type OnFamilyCreated interface {
	Plugin
	OnFamilyCreated(ctx context.Context, f *family.Family) error
}

type OnMemberAdded interface {
	Plugin
	OnMemberAdded(ctx context.Context, m *family.Member) error
}

// ──────────────────────────────────────────────────
// Star transaction hooks
// ──────────────────────────────────────────────────

// OnStarTransactionCreated fires for child requests and parent records.
type OnStarTransactionCreated interface {
	Plugin
	OnStarTransactionCreated(ctx context.Context, t *transaction.StarTransaction) error
}

// OnStarTransactionReviewed fires when a pending transaction is approved
// or rejected. t carries the new status.
type OnStarTransactionReviewed interface {
	Plugin
	OnStarTransactionReviewed(ctx context.Context, t *transaction.StarTransaction) error
}

// OnGuardRejected fires when a child request is refused by the guard.
type OnGuardRejected interface {
	Plugin
	OnGuardRejected(ctx context.Context, childID id.MemberID, questID id.QuestID, gerr *guard.Error) error
}

// ──────────────────────────────────────────────────
// Redemption hooks
// ──────────────────────────────────────────────────

type OnRedemptionCreated interface {
	Plugin
	OnRedemptionCreated(ctx context.Context, r *redemption.Redemption) error
}

type OnRedemptionReviewed interface {
	Plugin
	OnRedemptionReviewed(ctx context.Context, r *redemption.Redemption) error
}

type OnRedemptionFulfilled interface {
	Plugin
	OnRedemptionFulfilled(ctx context.Context, r *redemption.Redemption) error
}

// ──────────────────────────────────────────────────
// Credit and settlement hooks
// ──────────────────────────────────────────────────

// OnCreditTransaction fires for every credit_used, credit_repaid and
// interest_charged row.
type OnCreditTransaction interface {
	Plugin
	OnCreditTransaction(ctx context.Context, t *credit.Transaction) error
}

type OnSettlementCompleted interface {
	Plugin
	OnSettlementCompleted(ctx context.Context, s *settlement.Settlement) error
}

// ──────────────────────────────────────────────────
// Balance and batch hooks
// ──────────────────────────────────────────────────

// OnBalanceDrift fires when reconciliation finds a cached balance that no
// longer matches the ledger.
type OnBalanceDrift interface {
	Plugin
	OnBalanceDrift(ctx context.Context, cached, actual *balance.Balance) error
}

// OnBatchCompleted fires after BatchApprove or BatchReject.
type OnBatchCompleted interface {
	Plugin
	OnBatchCompleted(ctx context.Context, op string, succeeded, failed int, elapsed time.Duration) error
}
