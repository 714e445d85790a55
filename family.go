package starledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/types"
)

// ──────────────────────────────────────────────────
// Families and members
// ──────────────────────────────────────────────────

// CreateFamily creates a new family.
func (l *Ledger) CreateFamily(ctx context.Context, in FamilyInput) (_ *family.Family, err error) {
	ctx, end := l.startSpan(ctx, "CreateFamily")
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	f := &family.Family{
		Entity:   types.NewEntity(l.clock()),
		ID:       id.NewFamilyID(),
		Name:     in.Name,
		Timezone: in.Timezone,
	}
	if err := l.store.CreateFamily(ctx, f); err != nil {
		return nil, err
	}

	l.plugins.EmitFamilyCreated(ctx, f)
	return f, nil
}

// GetFamily retrieves a family by ID.
func (l *Ledger) GetFamily(ctx context.Context, familyID id.FamilyID) (*family.Family, error) {
	return l.store.GetFamily(ctx, familyID)
}

// ListFamilies lists every family, oldest first.
func (l *Ledger) ListFamilies(ctx context.Context) ([]*family.Family, error) {
	return l.store.ListFamilies(ctx)
}

// AddMember adds a parent or child to an existing family.
func (l *Ledger) AddMember(ctx context.Context, in MemberInput) (_ *family.Member, err error) {
	ctx, end := l.startSpan(ctx, "AddMember", idAttr("family_id", in.FamilyID))
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	m := &family.Member{
		Entity:   types.NewEntity(l.clock()),
		ID:       id.NewMemberID(),
		FamilyID: in.FamilyID,
		Name:     in.Name,
		Role:     in.Role,
	}
	if err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetFamily(ctx, in.FamilyID); err != nil {
			return err
		}
		return tx.CreateMember(ctx, m)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitMemberAdded(ctx, m)
	return m, nil
}

// GetMember retrieves a member by ID.
func (l *Ledger) GetMember(ctx context.Context, memberID id.MemberID) (*family.Member, error) {
	return l.store.GetMember(ctx, memberID)
}

// ListMembers lists a family's members. An empty role lists everyone.
func (l *Ledger) ListMembers(ctx context.Context, familyID id.FamilyID, role family.Role) ([]*family.Member, error) {
	return l.store.ListMembers(ctx, familyID, role)
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

// CreateQuest adds an active quest to a family's catalog.
func (l *Ledger) CreateQuest(ctx context.Context, in QuestInput) (_ *catalog.Quest, err error) {
	ctx, end := l.startSpan(ctx, "CreateQuest", idAttr("family_id", in.FamilyID))
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	q := &catalog.Quest{
		Entity:   types.NewEntity(l.clock()),
		ID:       id.NewQuestID(),
		FamilyID: in.FamilyID,
		Name:     in.Name,
		Stars:    in.Stars,
		Active:   true,
	}
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetFamily(ctx, in.FamilyID); err != nil {
			return err
		}
		return tx.CreateQuest(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuest retrieves a quest by ID.
func (l *Ledger) GetQuest(ctx context.Context, questID id.QuestID) (*catalog.Quest, error) {
	return l.store.GetQuest(ctx, questID)
}

// ListQuests lists a family's quests.
func (l *Ledger) ListQuests(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Quest, error) {
	return l.store.ListQuests(ctx, familyID, opts)
}

// CreateReward adds an active reward to a family's catalog.
func (l *Ledger) CreateReward(ctx context.Context, in RewardInput) (_ *catalog.Reward, err error) {
	ctx, end := l.startSpan(ctx, "CreateReward", idAttr("family_id", in.FamilyID))
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	r := &catalog.Reward{
		Entity:    types.NewEntity(l.clock()),
		ID:        id.NewRewardID(),
		FamilyID:  in.FamilyID,
		Name:      in.Name,
		StarsCost: in.StarsCost,
		Active:    true,
	}
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetFamily(ctx, in.FamilyID); err != nil {
			return err
		}
		return tx.CreateReward(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetReward retrieves a reward by ID.
func (l *Ledger) GetReward(ctx context.Context, rewardID id.RewardID) (*catalog.Reward, error) {
	return l.store.GetReward(ctx, rewardID)
}

// ListRewards lists a family's rewards.
func (l *Ledger) ListRewards(ctx context.Context, familyID id.FamilyID, opts catalog.ListOpts) ([]*catalog.Reward, error) {
	return l.store.ListRewards(ctx, familyID, opts)
}

// ──────────────────────────────────────────────────
// Credit configuration
// ──────────────────────────────────────────────────

// ConfigureCredit sets a child's credit limit and switch. The first call
// also records the limit as the original one that StepPolicy recovers to.
func (l *Ledger) ConfigureCredit(ctx context.Context, in CreditInput) (_ *credit.Settings, err error) {
	ctx, end := l.startSpan(ctx, "ConfigureCredit", idAttr("child_id", in.ChildID))
	defer end(&err)

	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.clock()
	var saved *credit.Settings
	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		child, err := l.childMember(ctx, tx, in.ChildID)
		if err != nil {
			return err
		}

		cs, err := tx.GetCreditSettings(ctx, in.ChildID)
		switch {
		case IsNotFound(err):
			cs = &credit.Settings{
				Entity:              types.NewEntity(now),
				ChildID:             child.ID,
				FamilyID:            child.FamilyID,
				OriginalCreditLimit: in.Limit,
			}
		case err != nil:
			return err
		default:
			cs.Touch(now)
		}
		cs.CreditLimit = in.Limit
		cs.Enabled = in.Enabled

		if err := tx.SaveCreditSettings(ctx, cs); err != nil {
			return err
		}
		saved = cs
		return tx.InvalidateBalance(ctx, in.ChildID)
	})
	if err != nil {
		l.logFailure("configure credit", err, "child_id", in.ChildID)
		return nil, err
	}

	l.invalidateCache(ctx, in.ChildID)
	l.logger.Info("credit configured",
		"child_id", in.ChildID,
		"limit", saved.CreditLimit,
		"enabled", saved.Enabled,
	)
	return saved, nil
}

// GetCreditSettings returns a child's credit settings.
func (l *Ledger) GetCreditSettings(ctx context.Context, childID id.MemberID) (*credit.Settings, error) {
	return l.store.GetCreditSettings(ctx, childID)
}

// SetInterestTiers replaces a family's interest table after validating it.
func (l *Ledger) SetInterestTiers(ctx context.Context, familyID id.FamilyID, in []TierInput) (_ []*settlement.Tier, err error) {
	ctx, end := l.startSpan(ctx, "SetInterestTiers", idAttr("family_id", familyID))
	defer end(&err)

	tiers := make([]*settlement.Tier, 0, len(in))
	for _, t := range in {
		tiers = append(tiers, &settlement.Tier{
			ID:       id.NewTierID(),
			FamilyID: familyID,
			Order:    t.Order,
			MinDebt:  t.MinDebt,
			MaxDebt:  t.MaxDebt,
			Rate:     t.Rate,
		})
	}

	if errs := settlement.ValidateTiers(tiers); len(errs) > 0 {
		me := MultiError{Errors: []error{ErrInvalidTiers}}
		for _, e := range errs {
			me.Add(e)
		}
		return nil, me
	}

	err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetFamily(ctx, familyID); err != nil {
			return err
		}
		return tx.ReplaceInterestTiers(ctx, familyID, tiers)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("interest tiers replaced", "family_id", familyID, "tiers", len(tiers))
	return tiers, nil
}

// ListInterestTiers returns a family's interest table by order.
func (l *Ledger) ListInterestTiers(ctx context.Context, familyID id.FamilyID) ([]*settlement.Tier, error) {
	return l.store.ListInterestTiers(ctx, familyID)
}

// childMember loads memberID and requires it to be a child.
func (l *Ledger) childMember(ctx context.Context, s store.Store, memberID id.MemberID) (*family.Member, error) {
	m, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !m.IsChild() {
		return nil, fmt.Errorf("%w: member %s is not a child", ErrInvalidInput, memberID)
	}
	return m, nil
}

// reviewer loads memberID and requires it to be a parent of familyID.
func (l *Ledger) reviewer(ctx context.Context, s store.Store, memberID id.MemberID, familyID id.FamilyID) (*family.Member, error) {
	m, err := s.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, fmt.Errorf("%w: reviewer %s does not exist", ErrForbidden, memberID)
		}
		return nil, err
	}
	if !m.CanReview(familyID) {
		return nil, fmt.Errorf("%w: %s is not a parent of family %s", ErrForbidden, memberID, familyID)
	}
	return m, nil
}
