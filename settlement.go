package starledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store"
)

// RunSettlement charges interest on a child's outstanding credit for the
// period ending at periodEnd and moves the credit limit according to the
// limit policy. Everything is written in one transaction.
//
// It fails with ErrCreditDisabled, ErrAlreadySettled or
// ErrNoOutstandingDebt without writing anything.
func (l *Ledger) RunSettlement(ctx context.Context, childID id.MemberID, periodEnd time.Time) (_ *settlement.Settlement, err error) {
	ctx, end := l.startSpan(ctx, "RunSettlement",
		idAttr("child_id", childID),
		attribute.String("period_end", periodEnd.UTC().Format(time.RFC3339)),
	)
	defer end(&err)

	periodEnd = periodEnd.UTC()
	now := l.clock()

	var (
		st     *settlement.Settlement
		charge *credit.Transaction
	)
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, childID)
		if err != nil {
			return err
		}

		settings, err := tx.GetCreditSettings(ctx, childID)
		if IsNotFound(err) || (err == nil && !settings.Enabled) {
			return fmt.Errorf("%w: child %s", ErrCreditDisabled, childID)
		}
		if err != nil {
			return err
		}

		_, err = tx.GetSettlementForPeriod(ctx, childID, periodEnd)
		switch {
		case err == nil:
			return fmt.Errorf("%w: child %s period %s", ErrAlreadySettled, childID, periodEnd.Format(time.RFC3339))
		case !IsNotFound(err):
			return err
		}

		b, err := l.project(ctx, tx, childID)
		if err != nil {
			return err
		}
		debt := b.CreditUsed
		if debt <= 0 {
			return fmt.Errorf("%w: child %s", ErrNoOutstandingDebt, childID)
		}

		tiers, err := tx.ListInterestTiers(ctx, child.FamilyID)
		if err != nil {
			return err
		}
		result := l.calculator.Compute(debt, tiers)

		st = &settlement.Settlement{
			ID:                 id.NewSettlementID(),
			FamilyID:           child.FamilyID,
			ChildID:            childID,
			PeriodEnd:          periodEnd,
			BalanceBefore:      b.CurrentStars,
			DebtAmount:         debt,
			InterestCalculated: result.Interest,
			Breakdown:          result.Breakdown,
			CreditLimitBefore:  settings.CreditLimit,
			CreatedAt:          now,
		}

		if result.Interest > 0 {
			charge = &credit.Transaction{
				ID:           id.NewCreditTransactionID(),
				FamilyID:     child.FamilyID,
				ChildID:      childID,
				SettlementID: st.ID,
				Type:         credit.TypeInterestCharged,
				Amount:       result.Interest,
				BalanceAfter: debt + result.Interest,
				CreatedAt:    now,
			}
			if err := tx.CreateCreditTransaction(ctx, charge); err != nil {
				return err
			}
		}

		next, err := l.limitPolicy.NextLimit(ctx, settlement.LimitInput{
			ChildID:             childID,
			PeriodEnd:           periodEnd,
			DebtAmount:          debt,
			Interest:            result.Interest,
			CreditLimit:         settings.CreditLimit,
			OriginalCreditLimit: settings.OriginalCreditLimit,
		})
		if err != nil {
			return fmt.Errorf("credit limit policy: %w", err)
		}
		st.CreditLimitAfter = next
		st.CreditLimitAdjustment = next - settings.CreditLimit

		if next != settings.CreditLimit {
			settings.CreditLimit = next
			settings.Touch(now)
			if err := tx.SaveCreditSettings(ctx, settings); err != nil {
				return err
			}
		}

		if err := tx.CreateSettlement(ctx, st); err != nil {
			return err
		}
		return tx.InvalidateBalance(ctx, childID)
	})
	if err != nil {
		l.logFailure("run settlement", err, "child_id", childID)
		return nil, err
	}

	l.invalidateCache(ctx, childID)
	if charge != nil {
		l.plugins.EmitCreditTransaction(ctx, charge)
	}
	l.plugins.EmitSettlementCompleted(ctx, st)

	l.logger.Info("settlement completed",
		"child_id", childID,
		"period_end", periodEnd,
		"debt", st.DebtAmount,
		"interest", st.InterestCalculated,
		"credit_limit", st.CreditLimitAfter,
	)
	return st, nil
}

// ChildSettlement is one child's outcome in a family settlement run.
type ChildSettlement struct {
	ChildID    id.MemberID            `json:"child_id"`
	Settlement *settlement.Settlement `json:"settlement,omitempty"`
	Err        error                  `json:"-"`
}

// Skipped reports whether the child was passed over without failing:
// nothing was owed or the period was already settled.
func (c ChildSettlement) Skipped() bool {
	return errors.Is(c.Err, ErrNoOutstandingDebt) || errors.Is(c.Err, ErrAlreadySettled)
}

// RunFamilySettlement settles every child of the family with credit
// enabled. Each child is settled in its own transaction.
func (l *Ledger) RunFamilySettlement(ctx context.Context, familyID id.FamilyID, periodEnd time.Time) (_ []ChildSettlement, err error) {
	ctx, end := l.startSpan(ctx, "RunFamilySettlement", idAttr("family_id", familyID))
	defer end(&err)

	if _, err := l.store.GetFamily(ctx, familyID); err != nil {
		return nil, err
	}
	settings, err := l.store.ListCreditSettings(ctx, familyID)
	if err != nil {
		return nil, err
	}

	results := make([]ChildSettlement, 0, len(settings))
	for _, cs := range settings {
		if !cs.Enabled {
			continue
		}
		st, err := l.RunSettlement(ctx, cs.ChildID, periodEnd)
		results = append(results, ChildSettlement{ChildID: cs.ChildID, Settlement: st, Err: err})
		if err != nil && !results[len(results)-1].Skipped() {
			l.logger.Warn("child settlement failed", "family_id", familyID, "child_id", cs.ChildID, "error", err)
		}
	}
	return results, nil
}

// GetSettlement retrieves a settlement by ID.
func (l *Ledger) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	return l.store.GetSettlement(ctx, settlementID)
}

// ListSettlements lists a child's settlements, newest first.
func (l *Ledger) ListSettlements(ctx context.Context, childID id.MemberID) ([]*settlement.Settlement, error) {
	return l.store.ListSettlements(ctx, childID)
}
