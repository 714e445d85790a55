package starledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// Entry status names accepted by SetStatus.
const (
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusFulfilled = "fulfilled"
)

// ReviewOption customizes an approval.
type ReviewOption func(*reviewConfig)

type reviewConfig struct {
	effectiveAt time.Time
	response    string
}

// WithEffectiveDate records t as the review time instead of now. Parents
// use it when approving yesterday's chores.
func WithEffectiveDate(t time.Time) ReviewOption {
	return func(c *reviewConfig) {
		c.effectiveAt = t.UTC()
	}
}

// WithResponse attaches a parent response to the approval.
func WithResponse(msg string) ReviewOption {
	return func(c *reviewConfig) {
		c.response = msg
	}
}

// BatchFailure is one entry a batch could not process.
type BatchFailure struct {
	ID  id.ID `json:"id"`
	Err error `json:"-"`
}

// BatchResult reports a best-effort batch. Every input id appears in
// exactly one of the two lists.
type BatchResult struct {
	Succeeded []id.ID        `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// reviewed is what a committed review produced, emitted after commit.
type reviewed struct {
	tx     *transaction.StarTransaction
	rd     *redemption.Redemption
	credit *credit.Transaction
}

// ApproveEntry approves a pending star transaction or redemption.
//
// Approving a redemption re-checks the child's balance and books any
// borrowed part as credit_used. Approving a positive star transaction
// while credit is owed books a credit_repaid row.
func (l *Ledger) ApproveEntry(ctx context.Context, entryID id.ID, reviewerID id.MemberID, opts ...ReviewOption) (err error) {
	ctx, end := l.startSpan(ctx, "ApproveEntry", idAttr("entry_id", entryID), idAttr("reviewer_id", reviewerID))
	defer end(&err)

	cfg := reviewConfig{effectiveAt: l.clock()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return l.transition(ctx, entryID, StatusApproved, reviewerID, cfg)
}

// RejectEntry rejects a pending entry. Rejection never touches the balance.
func (l *Ledger) RejectEntry(ctx context.Context, entryID id.ID, reviewerID id.MemberID, reason string) (err error) {
	ctx, end := l.startSpan(ctx, "RejectEntry", idAttr("entry_id", entryID), idAttr("reviewer_id", reviewerID))
	defer end(&err)

	return l.transition(ctx, entryID, StatusRejected, reviewerID, reviewConfig{
		effectiveAt: l.clock(),
		response:    reason,
	})
}

// FulfillRedemption marks an approved redemption as handed over.
func (l *Ledger) FulfillRedemption(ctx context.Context, redemptionID id.RedemptionID, reviewerID id.MemberID) (err error) {
	ctx, end := l.startSpan(ctx, "FulfillRedemption", idAttr("entry_id", redemptionID), idAttr("reviewer_id", reviewerID))
	defer end(&err)

	if redemptionID.Prefix() != id.PrefixRedemption {
		return fmt.Errorf("%w: %s is not a redemption", ErrInvalidInput, redemptionID)
	}
	return l.transition(ctx, redemptionID, StatusFulfilled, reviewerID, reviewConfig{effectiveAt: l.clock()})
}

// SetStatus moves an entry to status ("approved", "rejected" or
// "fulfilled"). It is the generic entry point behind the typed operations.
func (l *Ledger) SetStatus(ctx context.Context, entryID id.ID, status string, reviewerID id.MemberID, response string) (err error) {
	ctx, end := l.startSpan(ctx, "SetStatus", idAttr("entry_id", entryID), idAttr("reviewer_id", reviewerID))
	defer end(&err)

	switch status {
	case StatusApproved, StatusRejected, StatusFulfilled:
	case string(transaction.StatusPending):
		return fmt.Errorf("%w: entries cannot return to pending", ErrInvalidTransition)
	default:
		return ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	return l.transition(ctx, entryID, status, reviewerID, reviewConfig{
		effectiveAt: l.clock(),
		response:    response,
	})
}

// transition runs one status change in its own transaction and emits the
// resulting events after commit.
func (l *Ledger) transition(ctx context.Context, entryID id.ID, status string, reviewerID id.MemberID, cfg reviewConfig) error {
	if entryID.IsNil() {
		return ValidationError{Field: "entry_id", Message: "is required"}
	}
	if !entryID.IsEntry() {
		return fmt.Errorf("%w: %s is not a ledger entry", ErrInvalidInput, entryID)
	}

	now := l.clock()
	review := types.Review{ReviewerID: reviewerID, At: cfg.effectiveAt, Response: cfg.response}

	var out reviewed
	err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		switch entryID.Prefix() {
		case id.PrefixStarTransaction:
			out, err = l.reviewStarTransaction(ctx, tx, entryID, transaction.Status(status), review, now)
		default:
			out, err = l.reviewRedemption(ctx, tx, entryID, redemption.Status(status), review, now)
		}
		return err
	})
	if err != nil {
		l.logFailure("review entry", err, "entry_id", entryID, "status", status)
		return err
	}

	switch {
	case out.tx != nil:
		l.invalidateCache(ctx, out.tx.ChildID)
		l.plugins.EmitStarTransactionReviewed(ctx, out.tx)
	case out.rd != nil && out.rd.Status == redemption.StatusFulfilled:
		l.plugins.EmitRedemptionFulfilled(ctx, out.rd)
	case out.rd != nil:
		l.invalidateCache(ctx, out.rd.ChildID)
		l.plugins.EmitRedemptionReviewed(ctx, out.rd)
	}
	if out.credit != nil {
		l.plugins.EmitCreditTransaction(ctx, out.credit)
	}

	l.logger.Debug("entry reviewed", "entry_id", entryID, "status", status, "reviewer_id", reviewerID)
	return nil
}

func (l *Ledger) reviewStarTransaction(ctx context.Context, tx store.Store, txID id.StarTransactionID, to transaction.Status, review types.Review, now time.Time) (reviewed, error) {
	t, err := tx.GetStarTransaction(ctx, txID)
	if err != nil {
		return reviewed{}, err
	}
	if _, err := l.reviewer(ctx, tx, review.ReviewerID, t.FamilyID); err != nil {
		return reviewed{}, err
	}
	if !to.Valid() {
		return reviewed{}, fmt.Errorf("%w: star transactions cannot be %s", ErrInvalidTransition, to)
	}
	if t.Status != transaction.StatusPending {
		return reviewed{}, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, txID, t.Status)
	}
	if !t.Status.CanTransition(to) {
		return reviewed{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, to)
	}

	if err := tx.UpdateStarTransactionStatus(ctx, txID, t.Status, to, review); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return reviewed{}, fmt.Errorf("%w: %w", ErrAlreadyReviewed, err)
		}
		return reviewed{}, err
	}
	t.Status = to
	t.ReviewedBy = review.ReviewerID
	t.ReviewedAt = &review.At
	if review.Response != "" {
		t.ParentResponse = review.Response
	}

	out := reviewed{tx: t}
	if to != transaction.StatusApproved {
		return out, nil
	}
	if out.credit, err = l.repay(ctx, tx, t, now); err != nil {
		return reviewed{}, err
	}
	return out, tx.InvalidateBalance(ctx, t.ChildID)
}

func (l *Ledger) reviewRedemption(ctx context.Context, tx store.Store, redemptionID id.RedemptionID, to redemption.Status, review types.Review, now time.Time) (reviewed, error) {
	r, err := tx.GetRedemption(ctx, redemptionID)
	if err != nil {
		return reviewed{}, err
	}
	if _, err := l.reviewer(ctx, tx, review.ReviewerID, r.FamilyID); err != nil {
		return reviewed{}, err
	}
	if to != redemption.StatusFulfilled && r.Status != redemption.StatusPending {
		return reviewed{}, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, redemptionID, r.Status)
	}
	if !r.Status.CanTransition(to) {
		return reviewed{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, to)
	}

	out := reviewed{rd: r}
	if to == redemption.StatusApproved {
		b, err := l.project(ctx, tx, r.ChildID)
		if err != nil {
			return reviewed{}, err
		}
		// The balance may have moved since the request. The loan is
		// sized against it and the redemption row is rewritten to match.
		borrow, err := creditNeeded(b, r.StarsSpent)
		if err != nil {
			return reviewed{}, err
		}
		if borrow != r.CreditAmount {
			if err := tx.SetRedemptionCredit(ctx, r.ID, borrow); err != nil {
				return reviewed{}, err
			}
			l.logger.Info("redemption credit resized at approval",
				"redemption_id", r.ID, "requested", r.CreditAmount, "approved", borrow)
			r.CreditAmount = borrow
			r.UsesCredit = borrow > 0
		}
		if borrow > 0 {
			out.credit = &credit.Transaction{
				ID:           id.NewCreditTransactionID(),
				FamilyID:     r.FamilyID,
				ChildID:      r.ChildID,
				RedemptionID: r.ID,
				Type:         credit.TypeCreditUsed,
				Amount:       borrow,
				BalanceAfter: b.CreditUsed + borrow,
				CreatedAt:    now,
			}
			if err := tx.CreateCreditTransaction(ctx, out.credit); err != nil {
				return reviewed{}, err
			}
		}
	}

	if err := tx.UpdateRedemptionStatus(ctx, redemptionID, r.Status, to, review); err != nil {
		if errors.Is(err, ErrInvalidTransition) && to != redemption.StatusFulfilled {
			return reviewed{}, fmt.Errorf("%w: %w", ErrAlreadyReviewed, err)
		}
		return reviewed{}, err
	}

	r.Status = to
	if to == redemption.StatusFulfilled {
		r.FulfilledAt = &review.At
		return out, nil
	}
	r.ReviewedBy = review.ReviewerID
	r.ReviewedAt = &review.At
	if review.Response != "" {
		r.ParentResponse = review.Response
	}
	if to == redemption.StatusApproved {
		return out, tx.InvalidateBalance(ctx, r.ChildID)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Batches
// ──────────────────────────────────────────────────

// BatchApprove approves each entry in its own transaction. One failure
// never blocks the rest.
func (l *Ledger) BatchApprove(ctx context.Context, ids []id.ID, reviewerID id.MemberID, opts ...ReviewOption) *BatchResult {
	return l.batch(ctx, "approve", ids, func(ctx context.Context, entryID id.ID) error {
		return l.ApproveEntry(ctx, entryID, reviewerID, opts...)
	})
}

// BatchReject rejects each entry in its own transaction.
func (l *Ledger) BatchReject(ctx context.Context, ids []id.ID, reviewerID id.MemberID, reason string) *BatchResult {
	return l.batch(ctx, "reject", ids, func(ctx context.Context, entryID id.ID) error {
		return l.RejectEntry(ctx, entryID, reviewerID, reason)
	})
}

// batch processes ids once each. Entries outside the family of the first
// resolvable entry fail with ErrForbidden.
func (l *Ledger) batch(ctx context.Context, op string, ids []id.ID, fn func(context.Context, id.ID) error) *BatchResult {
	start := time.Now()
	res := &BatchResult{Succeeded: []id.ID{}, Failed: []BatchFailure{}}
	seen := make(map[string]struct{}, len(ids))
	var batchFamily id.FamilyID

	for _, entryID := range ids {
		if _, dup := seen[entryID.String()]; dup {
			continue
		}
		seen[entryID.String()] = struct{}{}

		fam, err := l.entryFamily(ctx, entryID)
		if err == nil {
			switch {
			case batchFamily.IsNil():
				batchFamily = fam
			case fam.String() != batchFamily.String():
				err = fmt.Errorf("%w: %s belongs to another family", ErrForbidden, entryID)
			}
		}
		if err == nil {
			err = fn(ctx, entryID)
		}

		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{ID: entryID, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, entryID)
	}

	elapsed := time.Since(start)
	l.plugins.EmitBatchCompleted(ctx, op, len(res.Succeeded), len(res.Failed), elapsed)
	l.logger.Info("batch review completed",
		"op", op,
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return res
}

func (l *Ledger) entryFamily(ctx context.Context, entryID id.ID) (id.FamilyID, error) {
	switch entryID.Prefix() {
	case id.PrefixStarTransaction:
		t, err := l.store.GetStarTransaction(ctx, entryID)
		if err != nil {
			return id.Nil, err
		}
		return t.FamilyID, nil
	case id.PrefixRedemption:
		r, err := l.store.GetRedemption(ctx, entryID)
		if err != nil {
			return id.Nil, err
		}
		return r.FamilyID, nil
	}
	return id.Nil, fmt.Errorf("%w: %s is not a ledger entry", ErrInvalidInput, entryID)
}
