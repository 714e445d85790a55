package starledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/transaction"
)

// project derives the child's balance from the ledger as seen by s.
// Write paths call it with their transaction so they never act on a
// cached figure.
func (l *Ledger) project(ctx context.Context, s store.Store, childID id.MemberID) (balance.Balance, error) {
	txs, err := s.ListStarTransactions(ctx, transaction.ListFilter{
		ChildID:  childID,
		Statuses: []transaction.Status{transaction.StatusApproved},
	})
	if err != nil {
		return balance.Balance{}, err
	}
	rds, err := s.ListRedemptions(ctx, redemption.ListFilter{
		ChildID:  childID,
		Statuses: []redemption.Status{redemption.StatusApproved, redemption.StatusFulfilled},
	})
	if err != nil {
		return balance.Balance{}, err
	}
	crs, err := s.ListCreditTransactions(ctx, childID)
	if err != nil {
		return balance.Balance{}, err
	}
	settings, err := s.GetCreditSettings(ctx, childID)
	if err != nil && !IsNotFound(err) {
		return balance.Balance{}, err
	}

	return balance.Project(balance.Input{
		ChildID:      childID,
		Transactions: txs,
		Redemptions:  rds,
		Credit:       crs,
		Settings:     settings,
	}, l.clock()), nil
}

// GetBalance returns the child's balance. It reads through the external
// cache and the stored balance row before projecting from the ledger.
func (l *Ledger) GetBalance(ctx context.Context, childID id.MemberID) (_ *balance.Balance, err error) {
	ctx, end := l.startSpan(ctx, "GetBalance", idAttr("child_id", childID))
	defer end(&err)

	if l.cache != nil {
		b, ok, err := l.cache.Get(ctx, childID)
		if err != nil {
			l.logger.Warn("balance cache read failed", "child_id", childID, "error", err)
		} else if ok {
			return b, nil
		}
	}

	var out *balance.Balance
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := l.childMember(ctx, tx, childID); err != nil {
			return err
		}

		cached, err := tx.GetCachedBalance(ctx, childID)
		if err == nil {
			out = cached
			return nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return err
		}

		b, err := l.project(ctx, tx, childID)
		if err != nil {
			return err
		}
		out = &b
		return tx.SetCachedBalance(ctx, out)
	})
	if err != nil {
		l.logFailure("get balance", err, "child_id", childID)
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Put(ctx, out); err != nil {
			l.logger.Warn("balance cache write failed", "child_id", childID, "error", err)
		}
	}
	return out, nil
}

// ReconcileBalance recomputes the balance from the ledger and rewrites the
// cached row. When the cached row disagreed, the fresh balance is returned
// together with an error wrapping ErrBalanceDrift.
func (l *Ledger) ReconcileBalance(ctx context.Context, childID id.MemberID) (_ *balance.Balance, err error) {
	ctx, end := l.startSpan(ctx, "ReconcileBalance", idAttr("child_id", childID))
	defer end(&err)

	var fresh balance.Balance
	var cached *balance.Balance
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := l.childMember(ctx, tx, childID); err != nil {
			return err
		}

		c, err := tx.GetCachedBalance(ctx, childID)
		switch {
		case err == nil:
			cached = c
		case !errors.Is(err, ErrCacheMiss):
			return err
		}

		fresh, err = l.project(ctx, tx, childID)
		if err != nil {
			return err
		}
		return tx.SetCachedBalance(ctx, &fresh)
	})
	if err != nil {
		l.logFailure("reconcile balance", err, "child_id", childID)
		return nil, err
	}

	l.invalidateCache(ctx, childID)

	if cached != nil && !cached.SameTotals(fresh) {
		l.logger.Warn("balance drift corrected",
			"child_id", childID,
			"cached_current", cached.CurrentStars,
			"actual_current", fresh.CurrentStars,
			"cached_credit_used", cached.CreditUsed,
			"actual_credit_used", fresh.CreditUsed,
		)
		l.plugins.EmitBalanceDrift(ctx, cached, &fresh)
		return &fresh, fmt.Errorf("%w: child %s current %d, cached %d",
			ErrBalanceDrift, childID, fresh.CurrentStars, cached.CurrentStars)
	}
	return &fresh, nil
}
