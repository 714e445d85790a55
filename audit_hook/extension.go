// Package audithook bridges ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/plugin"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnFamilyCreated           = (*Extension)(nil)
	_ plugin.OnMemberAdded             = (*Extension)(nil)
	_ plugin.OnStarTransactionCreated  = (*Extension)(nil)
	_ plugin.OnStarTransactionReviewed = (*Extension)(nil)
	_ plugin.OnGuardRejected           = (*Extension)(nil)
	_ plugin.OnRedemptionCreated       = (*Extension)(nil)
	_ plugin.OnRedemptionReviewed      = (*Extension)(nil)
	_ plugin.OnRedemptionFulfilled     = (*Extension)(nil)
	_ plugin.OnCreditTransaction       = (*Extension)(nil)
	_ plugin.OnSettlementCompleted     = (*Extension)(nil)
	_ plugin.OnBalanceDrift            = (*Extension)(nil)
	_ plugin.OnBatchCompleted          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter but is declared here so this package has
// no Chronicle dependency.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension records ledger events as audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Family hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnFamilyCreated(ctx context.Context, f *family.Family) error {
	return e.record(ctx, ActionFamilyCreated, SeverityInfo, OutcomeSuccess,
		ResourceFamily, f.ID.String(), CategoryHousehold, "",
		"timezone", f.Timezone,
	)
}

func (e *Extension) OnMemberAdded(ctx context.Context, m *family.Member) error {
	return e.record(ctx, ActionMemberAdded, SeverityInfo, OutcomeSuccess,
		ResourceMember, m.ID.String(), CategoryHousehold, "",
		"family_id", m.FamilyID.String(),
		"role", string(m.Role),
	)
}

// ──────────────────────────────────────────────────
// Star transaction hooks
// ──────────────────────────────────────────────────

// OnStarTransactionCreated implements plugin.OnStarTransactionCreated.
// Parent records are audited as recorded, child requests as requested.
func (e *Extension) OnStarTransactionCreated(ctx context.Context, t *transaction.StarTransaction) error {
	action := ActionStarsRequested
	if t.Source == transaction.SourceParentRecord {
		action = ActionStarsRecorded
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryEarning, "",
		starFields(t)...,
	)
}

func (e *Extension) OnStarTransactionReviewed(ctx context.Context, t *transaction.StarTransaction) error {
	action, outcome := ActionStarsApproved, OutcomeSuccess
	if t.Status == transaction.StatusRejected {
		action, outcome = ActionStarsRejected, OutcomeFailure
	}
	return e.record(ctx, action, SeverityInfo, outcome,
		ResourceTransaction, t.ID.String(), CategoryEarning, t.ParentResponse,
		append(starFields(t), "reviewed_by", t.ReviewedBy.String())...,
	)
}

func (e *Extension) OnGuardRejected(ctx context.Context, childID id.MemberID, questID id.QuestID, gerr *guard.Error) error {
	return e.record(ctx, ActionGuardRejected, SeverityWarning, OutcomeFailure,
		ResourceTransaction, "", CategoryEarning, gerr.Error(),
		"child_id", childID.String(),
		"quest_id", questID.String(),
		"rule", string(gerr.Rule),
		"retry_after_seconds", gerr.RetryAfter.Seconds(),
	)
}

// ──────────────────────────────────────────────────
// Redemption hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnRedemptionCreated(ctx context.Context, r *redemption.Redemption) error {
	return e.record(ctx, ActionRedemptionRequested, SeverityInfo, OutcomeSuccess,
		ResourceRedemption, r.ID.String(), CategorySpending, "",
		redemptionFields(r)...,
	)
}

func (e *Extension) OnRedemptionReviewed(ctx context.Context, r *redemption.Redemption) error {
	action, outcome := ActionRedemptionApproved, OutcomeSuccess
	if r.Status == redemption.StatusRejected {
		action, outcome = ActionRedemptionRejected, OutcomeFailure
	}
	return e.record(ctx, action, SeverityInfo, outcome,
		ResourceRedemption, r.ID.String(), CategorySpending, r.ParentResponse,
		append(redemptionFields(r), "reviewed_by", r.ReviewedBy.String())...,
	)
}

func (e *Extension) OnRedemptionFulfilled(ctx context.Context, r *redemption.Redemption) error {
	return e.record(ctx, ActionRedemptionFulfilled, SeverityInfo, OutcomeSuccess,
		ResourceRedemption, r.ID.String(), CategorySpending, "",
		redemptionFields(r)...,
	)
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnCreditTransaction(ctx context.Context, t *credit.Transaction) error {
	action, severity := ActionCreditUsed, SeverityInfo
	switch t.Type {
	case credit.TypeCreditRepaid:
		action = ActionCreditRepaid
	case credit.TypeInterestCharged:
		action, severity = ActionInterestCharged, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceCredit, t.ID.String(), CategoryCredit, "",
		"child_id", t.ChildID.String(),
		"amount", t.Amount,
		"debt_after", t.BalanceAfter,
	)
}

func (e *Extension) OnSettlementCompleted(ctx context.Context, s *settlement.Settlement) error {
	return e.record(ctx, ActionSettlementRun, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, s.ID.String(), CategoryCredit, "",
		"child_id", s.ChildID.String(),
		"period_end", s.PeriodEnd.Format(time.RFC3339),
		"debt", s.DebtAmount,
		"interest", s.InterestCalculated,
		"limit_before", s.CreditLimitBefore,
		"limit_after", s.CreditLimitAfter,
	)
}

// ──────────────────────────────────────────────────
// Integrity hooks
// ──────────────────────────────────────────────────

// OnBalanceDrift implements plugin.OnBalanceDrift. Drift means a cached
// row disagreed with the ledger, which is always worth a look.
func (e *Extension) OnBalanceDrift(ctx context.Context, cached, actual *balance.Balance) error {
	return e.record(ctx, ActionBalanceDrift, SeverityCritical, OutcomeFailure,
		ResourceBalance, actual.ChildID.String(), CategoryIntegrity, "cached balance disagreed with ledger",
		"cached_stars", cached.CurrentStars,
		"actual_stars", actual.CurrentStars,
		"cached_credit_used", cached.CreditUsed,
		"actual_credit_used", actual.CreditUsed,
	)
}

func (e *Extension) OnBatchCompleted(ctx context.Context, op string, succeeded, failed int, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	switch {
	case failed > 0 && succeeded == 0:
		outcome = OutcomeFailure
	case failed > 0:
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionBatchCompleted, SeverityInfo, outcome,
		ResourceTransaction, "", CategoryEarning, "",
		"op", op,
		"succeeded", succeeded,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func starFields(t *transaction.StarTransaction) []any {
	return []any{
		"child_id", t.ChildID.String(),
		"stars", t.Stars,
		"source", string(t.Source),
		"created_by", t.CreatedBy.String(),
	}
}

func redemptionFields(r *redemption.Redemption) []any {
	return []any{
		"child_id", r.ChildID.String(),
		"reward_id", r.RewardID.String(),
		"stars_spent", r.StarsSpent,
		"credit_amount", r.CreditAmount,
	}
}

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged and never reach the ledger.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
