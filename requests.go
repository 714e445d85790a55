package starledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// CreateChildRequest records a child's claim that they completed a quest.
// The request is pending until a parent reviews it. Guard failures are
// returned as *guard.Error wrapping ErrDuplicatePending or ErrRateLimited.
func (l *Ledger) CreateChildRequest(ctx context.Context, in ChildRequestInput) (_ *transaction.StarTransaction, err error) {
	ctx, end := l.startSpan(ctx, "CreateChildRequest",
		idAttr("child_id", in.ChildID),
		idAttr("quest_id", in.QuestID),
	)
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.clock()
	var created *transaction.StarTransaction
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, in.ChildID)
		if err != nil {
			return err
		}
		quest, err := tx.GetQuest(ctx, in.QuestID)
		if err != nil {
			return err
		}
		if quest.FamilyID.String() != child.FamilyID.String() {
			return fmt.Errorf("%w: quest %s belongs to another family", ErrForbidden, quest.ID)
		}
		if !quest.Active {
			return fmt.Errorf("%w: quest %s", ErrInactive, quest.ID)
		}
		fam, err := tx.GetFamily(ctx, child.FamilyID)
		if err != nil {
			return err
		}

		if err := l.guard.Check(ctx, tx, guard.Request{
			ChildID:  child.ID,
			QuestID:  quest.ID,
			Now:      now,
			Location: types.LoadLocation(fam.Timezone, l.defaultLoc),
		}); err != nil {
			return err
		}

		created = &transaction.StarTransaction{
			ID:        id.NewStarTransactionID(),
			FamilyID:  child.FamilyID,
			ChildID:   child.ID,
			QuestID:   quest.ID,
			Stars:     quest.Stars,
			Source:    transaction.SourceChildRequest,
			Status:    transaction.StatusPending,
			ChildNote: in.Note,
			CreatedBy: child.ID,
			CreatedAt: now,
		}
		return tx.CreateStarTransaction(ctx, created)
	})
	if err != nil {
		var gerr *guard.Error
		if errors.As(err, &gerr) {
			l.logger.Warn("child request rejected",
				"child_id", in.ChildID,
				"quest_id", in.QuestID,
				"rule", gerr.Rule,
				"retry_after", gerr.RetryAfter,
			)
			l.plugins.EmitGuardRejected(ctx, in.ChildID, in.QuestID, gerr)
			return nil, err
		}
		l.logFailure("create child request", err, "child_id", in.ChildID)
		return nil, err
	}

	l.plugins.EmitStarTransactionCreated(ctx, created)
	return created, nil
}

// CreateParentRecord records an approved award or deduction made by a
// parent. Positive records repay outstanding credit first.
func (l *Ledger) CreateParentRecord(ctx context.Context, in ParentRecordInput) (_ *transaction.StarTransaction, err error) {
	ctx, end := l.startSpan(ctx, "CreateParentRecord",
		idAttr("child_id", in.ChildID),
		idAttr("creator_id", in.CreatorID),
	)
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.clock()
	var (
		created *transaction.StarTransaction
		repaid  *credit.Transaction
	)
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, in.ChildID)
		if err != nil {
			return err
		}
		creator, err := l.reviewer(ctx, tx, in.CreatorID, child.FamilyID)
		if err != nil {
			return err
		}

		stars, desc := in.Stars, in.Description
		if !in.QuestID.IsNil() {
			quest, err := tx.GetQuest(ctx, in.QuestID)
			if err != nil {
				return err
			}
			if quest.FamilyID.String() != child.FamilyID.String() {
				return fmt.Errorf("%w: quest %s belongs to another family", ErrForbidden, quest.ID)
			}
			if stars == 0 {
				stars = quest.Stars
			}
			if desc == "" {
				desc = quest.Name
			}
		}
		if stars == 0 {
			return ValidationError{Field: "stars", Message: "must not be 0"}
		}

		created = &transaction.StarTransaction{
			ID:             id.NewStarTransactionID(),
			FamilyID:       child.FamilyID,
			ChildID:        child.ID,
			QuestID:        in.QuestID,
			Description:    desc,
			Stars:          stars,
			Source:         transaction.SourceParentRecord,
			Status:         transaction.StatusApproved,
			ParentResponse: in.Note,
			CreatedBy:      creator.ID,
			ReviewedBy:     creator.ID,
			ReviewedAt:     &now,
			CreatedAt:      now,
		}
		if err := tx.CreateStarTransaction(ctx, created); err != nil {
			return err
		}
		if repaid, err = l.repay(ctx, tx, created, now); err != nil {
			return err
		}
		return tx.InvalidateBalance(ctx, child.ID)
	})
	if err != nil {
		l.logFailure("create parent record", err, "child_id", in.ChildID)
		return nil, err
	}

	l.invalidateCache(ctx, in.ChildID)
	l.plugins.EmitStarTransactionCreated(ctx, created)
	if repaid != nil {
		l.plugins.EmitCreditTransaction(ctx, repaid)
	}
	return created, nil
}

// CreateRedemptionRequest records a child asking to spend stars on a
// reward. Any part of the cost beyond the child's own stars is borrowed
// when credit is enabled and the available credit covers it.
func (l *Ledger) CreateRedemptionRequest(ctx context.Context, in RedemptionInput) (_ *redemption.Redemption, err error) {
	ctx, end := l.startSpan(ctx, "CreateRedemptionRequest",
		idAttr("child_id", in.ChildID),
		idAttr("reward_id", in.RewardID),
	)
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.clock()
	var created *redemption.Redemption
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, in.ChildID)
		if err != nil {
			return err
		}
		reward, err := l.familyReward(ctx, tx, in.RewardID, child.FamilyID)
		if err != nil {
			return err
		}

		b, err := l.project(ctx, tx, child.ID)
		if err != nil {
			return err
		}
		borrow, err := creditNeeded(b, reward.StarsCost)
		if err != nil {
			return err
		}

		created = &redemption.Redemption{
			ID:           id.NewRedemptionID(),
			FamilyID:     child.FamilyID,
			ChildID:      child.ID,
			RewardID:     reward.ID,
			StarsSpent:   reward.StarsCost,
			Status:       redemption.StatusPending,
			ChildNote:    in.Note,
			UsesCredit:   borrow > 0,
			CreditAmount: borrow,
			CreatedBy:    child.ID,
			CreatedAt:    now,
		}
		return tx.CreateRedemption(ctx, created)
	})
	if err != nil {
		l.logFailure("create redemption request", err, "child_id", in.ChildID)
		return nil, err
	}

	l.plugins.EmitRedemptionCreated(ctx, created)
	return created, nil
}

// CreateParentRedemption records an approved redemption made by a parent
// on the child's behalf. It never borrows: the child's own stars must
// cover the cost.
func (l *Ledger) CreateParentRedemption(ctx context.Context, in ParentRedemptionInput) (_ *redemption.Redemption, err error) {
	ctx, end := l.startSpan(ctx, "CreateParentRedemption",
		idAttr("child_id", in.ChildID),
		idAttr("reward_id", in.RewardID),
	)
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.clock()
	var created *redemption.Redemption
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, in.ChildID)
		if err != nil {
			return err
		}
		creator, err := l.reviewer(ctx, tx, in.CreatorID, child.FamilyID)
		if err != nil {
			return err
		}
		reward, err := l.familyReward(ctx, tx, in.RewardID, child.FamilyID)
		if err != nil {
			return err
		}

		b, err := l.project(ctx, tx, child.ID)
		if err != nil {
			return err
		}
		if own := max(b.CurrentStars, 0); reward.StarsCost > own {
			return fmt.Errorf("%w: cost %d, current stars %d", ErrInsufficientBalance, reward.StarsCost, own)
		}

		created = &redemption.Redemption{
			ID:             id.NewRedemptionID(),
			FamilyID:       child.FamilyID,
			ChildID:        child.ID,
			RewardID:       reward.ID,
			StarsSpent:     reward.StarsCost,
			Status:         redemption.StatusApproved,
			ParentResponse: in.Note,
			CreatedBy:      creator.ID,
			ReviewedBy:     creator.ID,
			ReviewedAt:     &now,
			CreatedAt:      now,
		}
		if err := tx.CreateRedemption(ctx, created); err != nil {
			return err
		}
		return tx.InvalidateBalance(ctx, child.ID)
	})
	if err != nil {
		l.logFailure("create parent redemption", err, "child_id", in.ChildID)
		return nil, err
	}

	l.invalidateCache(ctx, in.ChildID)
	l.plugins.EmitRedemptionCreated(ctx, created)
	return created, nil
}

// ListStarTransactions lists star transactions matching f.
func (l *Ledger) ListStarTransactions(ctx context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error) {
	return l.store.ListStarTransactions(ctx, f)
}

// ListRedemptions lists redemptions matching f.
func (l *Ledger) ListRedemptions(ctx context.Context, f redemption.ListFilter) ([]*redemption.Redemption, error) {
	return l.store.ListRedemptions(ctx, f)
}

// ListCreditTransactions lists a child's credit records, oldest first.
func (l *Ledger) ListCreditTransactions(ctx context.Context, childID id.MemberID) ([]*credit.Transaction, error) {
	return l.store.ListCreditTransactions(ctx, childID)
}

func (l *Ledger) familyReward(ctx context.Context, s store.Store, rewardID id.RewardID, familyID id.FamilyID) (*catalog.Reward, error) {
	r, err := s.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if r.FamilyID.String() != familyID.String() {
		return nil, fmt.Errorf("%w: reward %s belongs to another family", ErrForbidden, r.ID)
	}
	if !r.Active {
		return nil, fmt.Errorf("%w: reward %s", ErrInactive, r.ID)
	}
	return r, nil
}

// creditNeeded returns how much of cost must be borrowed, or an error
// wrapping ErrInsufficientBalance when the balance cannot cover it.
func creditNeeded(b balance.Balance, cost int64) (int64, error) {
	borrow, ok := balance.CreditFor(b, cost)
	if ok {
		return borrow, nil
	}
	if b.CreditEnabled {
		return 0, fmt.Errorf("%w: %w: need %d on credit, %d available",
			ErrInsufficientBalance, ErrCreditLimitExceeded, borrow, b.AvailableCredit)
	}
	return 0, fmt.Errorf("%w: cost %d, spendable %d", ErrInsufficientBalance, cost, b.SpendableStars)
}

// repay records a credit_repaid row when an approved positive transaction
// lands while the child owes credit. It returns nil when nothing is owed.
func (l *Ledger) repay(ctx context.Context, s store.Store, t *transaction.StarTransaction, now time.Time) (*credit.Transaction, error) {
	if t.Stars <= 0 {
		return nil, nil
	}
	history, err := s.ListCreditTransactions(ctx, t.ChildID)
	if err != nil {
		return nil, err
	}
	debt := credit.Debt(history)
	if debt == 0 {
		return nil, nil
	}

	amount := min(t.Stars, debt)
	ct := &credit.Transaction{
		ID:           id.NewCreditTransactionID(),
		FamilyID:     t.FamilyID,
		ChildID:      t.ChildID,
		Type:         credit.TypeCreditRepaid,
		Amount:       amount,
		BalanceAfter: debt - amount,
		CreatedAt:    now,
	}
	if err := s.CreateCreditTransaction(ctx, ct); err != nil {
		return nil, err
	}
	return ct, nil
}
