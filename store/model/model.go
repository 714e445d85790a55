// Package model holds the grove row models shared by every grove-backed
// store. Columns are dialect-neutral: ids are text, amounts are integers,
// rates are decimal strings and the interest breakdown is JSON text. The
// bson tags mirror the column names so the mongo driver decodes the same
// structs it inserts.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

// Table names.
const (
	TableFamilies           = "sl_families"
	TableMembers            = "sl_members"
	TableQuests             = "sl_quests"
	TableRewards            = "sl_rewards"
	TableStarTransactions   = "sl_star_transactions"
	TableRedemptions        = "sl_redemptions"
	TableCreditTransactions = "sl_credit_transactions"
	TableCreditSettings     = "sl_credit_settings"
	TableSettlements        = "sl_settlements"
	TableInterestTiers      = "sl_interest_tiers"
	TableBalances           = "sl_balances"
)

// ==================== Family models ====================

type Family struct {
	grove.BaseModel `grove:"table:sl_families"`

	ID        string    `grove:"id,pk" bson:"_id"`
	Name      string    `grove:"name" bson:"name"`
	Timezone  string    `grove:"timezone" bson:"timezone"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func ToFamily(f *family.Family) *Family {
	return &Family{
		ID:        f.ID.String(),
		Name:      f.Name,
		Timezone:  f.Timezone,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func FromFamily(m *Family) (*family.Family, error) {
	famID, err := id.ParseFamilyID(m.ID)
	if err != nil {
		return nil, err
	}
	return &family.Family{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       famID,
		Name:     m.Name,
		Timezone: m.Timezone,
	}, nil
}

type Member struct {
	grove.BaseModel `grove:"table:sl_members"`

	ID        string    `grove:"id,pk" bson:"_id"`
	FamilyID  string    `grove:"family_id" bson:"family_id"`
	Name      string    `grove:"name" bson:"name"`
	Role      string    `grove:"role" bson:"role"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func ToMember(m *family.Member) *Member {
	return &Member{
		ID:        m.ID.String(),
		FamilyID:  m.FamilyID.String(),
		Name:      m.Name,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func FromMember(m *Member) (*family.Member, error) {
	var p parser
	out := &family.Member{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       p.required(m.ID, id.PrefixMember),
		FamilyID: p.required(m.FamilyID, id.PrefixFamily),
		Name:     m.Name,
		Role:     family.Role(m.Role),
	}
	return out, p.err
}

// ==================== Catalog models ====================

type Quest struct {
	grove.BaseModel `grove:"table:sl_quests"`

	ID        string    `grove:"id,pk" bson:"_id"`
	FamilyID  string    `grove:"family_id" bson:"family_id"`
	Name      string    `grove:"name" bson:"name"`
	Stars     int64     `grove:"stars" bson:"stars"`
	Active    bool      `grove:"active" bson:"active"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func ToQuest(q *catalog.Quest) *Quest {
	return &Quest{
		ID:        q.ID.String(),
		FamilyID:  q.FamilyID.String(),
		Name:      q.Name,
		Stars:     q.Stars,
		Active:    q.Active,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

func FromQuest(m *Quest) (*catalog.Quest, error) {
	var p parser
	out := &catalog.Quest{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       p.required(m.ID, id.PrefixQuest),
		FamilyID: p.required(m.FamilyID, id.PrefixFamily),
		Name:     m.Name,
		Stars:    m.Stars,
		Active:   m.Active,
	}
	return out, p.err
}

type Reward struct {
	grove.BaseModel `grove:"table:sl_rewards"`

	ID        string    `grove:"id,pk" bson:"_id"`
	FamilyID  string    `grove:"family_id" bson:"family_id"`
	Name      string    `grove:"name" bson:"name"`
	StarsCost int64     `grove:"stars_cost" bson:"stars_cost"`
	Active    bool      `grove:"active" bson:"active"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func ToReward(r *catalog.Reward) *Reward {
	return &Reward{
		ID:        r.ID.String(),
		FamilyID:  r.FamilyID.String(),
		Name:      r.Name,
		StarsCost: r.StarsCost,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func FromReward(m *Reward) (*catalog.Reward, error) {
	var p parser
	out := &catalog.Reward{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        p.required(m.ID, id.PrefixReward),
		FamilyID:  p.required(m.FamilyID, id.PrefixFamily),
		Name:      m.Name,
		StarsCost: m.StarsCost,
		Active:    m.Active,
	}
	return out, p.err
}

// ==================== Ledger entry models ====================

type StarTransaction struct {
	grove.BaseModel `grove:"table:sl_star_transactions"`

	ID             string     `grove:"id,pk" bson:"_id"`
	FamilyID       string     `grove:"family_id" bson:"family_id"`
	ChildID        string     `grove:"child_id" bson:"child_id"`
	QuestID        string     `grove:"quest_id" bson:"quest_id"`
	Description    string     `grove:"description" bson:"description"`
	Stars          int64      `grove:"stars" bson:"stars"`
	Source         string     `grove:"source" bson:"source"`
	Status         string     `grove:"status" bson:"status"`
	ChildNote      string     `grove:"child_note" bson:"child_note"`
	ParentResponse string     `grove:"parent_response" bson:"parent_response"`
	CreatedBy      string     `grove:"created_by" bson:"created_by"`
	ReviewedBy     string     `grove:"reviewed_by" bson:"reviewed_by"`
	ReviewedAt     *time.Time `grove:"reviewed_at" bson:"reviewed_at"`
	CreatedAt      time.Time  `grove:"created_at" bson:"created_at"`
}

func ToStarTransaction(t *transaction.StarTransaction) *StarTransaction {
	return &StarTransaction{
		ID:             t.ID.String(),
		FamilyID:       t.FamilyID.String(),
		ChildID:        t.ChildID.String(),
		QuestID:        t.QuestID.String(),
		Description:    t.Description,
		Stars:          t.Stars,
		Source:         string(t.Source),
		Status:         string(t.Status),
		ChildNote:      t.ChildNote,
		ParentResponse: t.ParentResponse,
		CreatedBy:      t.CreatedBy.String(),
		ReviewedBy:     t.ReviewedBy.String(),
		ReviewedAt:     utcPtr(t.ReviewedAt),
		CreatedAt:      t.CreatedAt.UTC(),
	}
}

func FromStarTransaction(m *StarTransaction) (*transaction.StarTransaction, error) {
	var p parser
	out := &transaction.StarTransaction{
		ID:             p.required(m.ID, id.PrefixStarTransaction),
		FamilyID:       p.required(m.FamilyID, id.PrefixFamily),
		ChildID:        p.required(m.ChildID, id.PrefixMember),
		QuestID:        p.optional(m.QuestID, id.PrefixQuest),
		Description:    m.Description,
		Stars:          m.Stars,
		Source:         transaction.Source(m.Source),
		Status:         transaction.Status(m.Status),
		ChildNote:      m.ChildNote,
		ParentResponse: m.ParentResponse,
		CreatedBy:      p.required(m.CreatedBy, id.PrefixMember),
		ReviewedBy:     p.optional(m.ReviewedBy, id.PrefixMember),
		ReviewedAt:     utcPtr(m.ReviewedAt),
		CreatedAt:      m.CreatedAt.UTC(),
	}
	return out, p.err
}

type Redemption struct {
	grove.BaseModel `grove:"table:sl_redemptions"`

	ID             string     `grove:"id,pk" bson:"_id"`
	FamilyID       string     `grove:"family_id" bson:"family_id"`
	ChildID        string     `grove:"child_id" bson:"child_id"`
	RewardID       string     `grove:"reward_id" bson:"reward_id"`
	StarsSpent     int64      `grove:"stars_spent" bson:"stars_spent"`
	Status         string     `grove:"status" bson:"status"`
	ChildNote      string     `grove:"child_note" bson:"child_note"`
	ParentResponse string     `grove:"parent_response" bson:"parent_response"`
	UsesCredit     bool       `grove:"uses_credit" bson:"uses_credit"`
	CreditAmount   int64      `grove:"credit_amount" bson:"credit_amount"`
	CreatedBy      string     `grove:"created_by" bson:"created_by"`
	ReviewedBy     string     `grove:"reviewed_by" bson:"reviewed_by"`
	ReviewedAt     *time.Time `grove:"reviewed_at" bson:"reviewed_at"`
	FulfilledAt    *time.Time `grove:"fulfilled_at" bson:"fulfilled_at"`
	CreatedAt      time.Time  `grove:"created_at" bson:"created_at"`
}

func ToRedemption(r *redemption.Redemption) *Redemption {
	return &Redemption{
		ID:             r.ID.String(),
		FamilyID:       r.FamilyID.String(),
		ChildID:        r.ChildID.String(),
		RewardID:       r.RewardID.String(),
		StarsSpent:     r.StarsSpent,
		Status:         string(r.Status),
		ChildNote:      r.ChildNote,
		ParentResponse: r.ParentResponse,
		UsesCredit:     r.UsesCredit,
		CreditAmount:   r.CreditAmount,
		CreatedBy:      r.CreatedBy.String(),
		ReviewedBy:     r.ReviewedBy.String(),
		ReviewedAt:     utcPtr(r.ReviewedAt),
		FulfilledAt:    utcPtr(r.FulfilledAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func FromRedemption(m *Redemption) (*redemption.Redemption, error) {
	var p parser
	out := &redemption.Redemption{
		ID:             p.required(m.ID, id.PrefixRedemption),
		FamilyID:       p.required(m.FamilyID, id.PrefixFamily),
		ChildID:        p.required(m.ChildID, id.PrefixMember),
		RewardID:       p.required(m.RewardID, id.PrefixReward),
		StarsSpent:     m.StarsSpent,
		Status:         redemption.Status(m.Status),
		ChildNote:      m.ChildNote,
		ParentResponse: m.ParentResponse,
		UsesCredit:     m.UsesCredit,
		CreditAmount:   m.CreditAmount,
		CreatedBy:      p.required(m.CreatedBy, id.PrefixMember),
		ReviewedBy:     p.optional(m.ReviewedBy, id.PrefixMember),
		ReviewedAt:     utcPtr(m.ReviewedAt),
		FulfilledAt:    utcPtr(m.FulfilledAt),
		CreatedAt:      m.CreatedAt.UTC(),
	}
	return out, p.err
}

// ==================== Credit models ====================

type CreditTransaction struct {
	grove.BaseModel `grove:"table:sl_credit_transactions"`

	ID           string    `grove:"id,pk" bson:"_id"`
	FamilyID     string    `grove:"family_id" bson:"family_id"`
	ChildID      string    `grove:"child_id" bson:"child_id"`
	RedemptionID string    `grove:"redemption_id" bson:"redemption_id"`
	SettlementID string    `grove:"settlement_id" bson:"settlement_id"`
	Type         string    `grove:"type" bson:"type"`
	Amount       int64     `grove:"amount" bson:"amount"`
	BalanceAfter int64     `grove:"balance_after" bson:"balance_after"`
	CreatedAt    time.Time `grove:"created_at" bson:"created_at"`
}

func ToCreditTransaction(t *credit.Transaction) *CreditTransaction {
	return &CreditTransaction{
		ID:           t.ID.String(),
		FamilyID:     t.FamilyID.String(),
		ChildID:      t.ChildID.String(),
		RedemptionID: t.RedemptionID.String(),
		SettlementID: t.SettlementID.String(),
		Type:         string(t.Type),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		CreatedAt:    t.CreatedAt.UTC(),
	}
}

func FromCreditTransaction(m *CreditTransaction) (*credit.Transaction, error) {
	var p parser
	out := &credit.Transaction{
		ID:           p.required(m.ID, id.PrefixCreditTransaction),
		FamilyID:     p.required(m.FamilyID, id.PrefixFamily),
		ChildID:      p.required(m.ChildID, id.PrefixMember),
		RedemptionID: p.optional(m.RedemptionID, id.PrefixRedemption),
		SettlementID: p.optional(m.SettlementID, id.PrefixSettlement),
		Type:         credit.Type(m.Type),
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    m.CreatedAt.UTC(),
	}
	return out, p.err
}

type CreditSettings struct {
	grove.BaseModel `grove:"table:sl_credit_settings"`

	ChildID             string    `grove:"child_id,pk" bson:"child_id"`
	FamilyID            string    `grove:"family_id" bson:"family_id"`
	CreditLimit         int64     `grove:"credit_limit" bson:"credit_limit"`
	OriginalCreditLimit int64     `grove:"original_credit_limit" bson:"original_credit_limit"`
	Enabled             bool      `grove:"enabled" bson:"enabled"`
	CreatedAt           time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt           time.Time `grove:"updated_at" bson:"updated_at"`
}

func ToCreditSettings(s *credit.Settings) *CreditSettings {
	return &CreditSettings{
		ChildID:             s.ChildID.String(),
		FamilyID:            s.FamilyID.String(),
		CreditLimit:         s.CreditLimit,
		OriginalCreditLimit: s.OriginalCreditLimit,
		Enabled:             s.Enabled,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func FromCreditSettings(m *CreditSettings) (*credit.Settings, error) {
	var p parser
	out := &credit.Settings{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ChildID:             p.required(m.ChildID, id.PrefixMember),
		FamilyID:            p.required(m.FamilyID, id.PrefixFamily),
		CreditLimit:         m.CreditLimit,
		OriginalCreditLimit: m.OriginalCreditLimit,
		Enabled:             m.Enabled,
	}
	return out, p.err
}

// ==================== Settlement models ====================

type Settlement struct {
	grove.BaseModel `grove:"table:sl_settlements"`

	ID                    string    `grove:"id,pk" bson:"_id"`
	FamilyID              string    `grove:"family_id" bson:"family_id"`
	ChildID               string    `grove:"child_id" bson:"child_id"`
	PeriodEnd             time.Time `grove:"period_end" bson:"period_end"`
	BalanceBefore         int64     `grove:"balance_before" bson:"balance_before"`
	DebtAmount            int64     `grove:"debt_amount" bson:"debt_amount"`
	InterestCalculated    int64     `grove:"interest_calculated" bson:"interest_calculated"`
	Breakdown             string    `grove:"interest_breakdown" bson:"interest_breakdown"`
	CreditLimitBefore     int64     `grove:"credit_limit_before" bson:"credit_limit_before"`
	CreditLimitAfter      int64     `grove:"credit_limit_after" bson:"credit_limit_after"`
	CreditLimitAdjustment int64     `grove:"credit_limit_adjustment" bson:"credit_limit_adjustment"`
	CreatedAt             time.Time `grove:"created_at" bson:"created_at"`
}

func ToSettlement(s *settlement.Settlement) (*Settlement, error) {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("model: encode breakdown: %w", err)
	}
	return &Settlement{
		ID:                    s.ID.String(),
		FamilyID:              s.FamilyID.String(),
		ChildID:               s.ChildID.String(),
		PeriodEnd:             s.PeriodEnd.UTC(),
		BalanceBefore:         s.BalanceBefore,
		DebtAmount:            s.DebtAmount,
		InterestCalculated:    s.InterestCalculated,
		Breakdown:             string(breakdown),
		CreditLimitBefore:     s.CreditLimitBefore,
		CreditLimitAfter:      s.CreditLimitAfter,
		CreditLimitAdjustment: s.CreditLimitAdjustment,
		CreatedAt:             s.CreatedAt.UTC(),
	}, nil
}

func FromSettlement(m *Settlement) (*settlement.Settlement, error) {
	var p parser
	out := &settlement.Settlement{
		ID:                    p.required(m.ID, id.PrefixSettlement),
		FamilyID:              p.required(m.FamilyID, id.PrefixFamily),
		ChildID:               p.required(m.ChildID, id.PrefixMember),
		PeriodEnd:             m.PeriodEnd.UTC(),
		BalanceBefore:         m.BalanceBefore,
		DebtAmount:            m.DebtAmount,
		InterestCalculated:    m.InterestCalculated,
		CreditLimitBefore:     m.CreditLimitBefore,
		CreditLimitAfter:      m.CreditLimitAfter,
		CreditLimitAdjustment: m.CreditLimitAdjustment,
		CreatedAt:             m.CreatedAt.UTC(),
	}
	if p.err != nil {
		return nil, p.err
	}
	if m.Breakdown != "" {
		if err := json.Unmarshal([]byte(m.Breakdown), &out.Breakdown); err != nil {
			return nil, fmt.Errorf("model: decode breakdown of %s: %w", m.ID, err)
		}
	}
	return out, nil
}

type InterestTier struct {
	grove.BaseModel `grove:"table:sl_interest_tiers"`

	ID       string `grove:"id,pk" bson:"_id"`
	FamilyID string `grove:"family_id" bson:"family_id"`
	Order    int    `grove:"tier_order" bson:"tier_order"`
	MinDebt  int64  `grove:"min_debt" bson:"min_debt"`
	MaxDebt  *int64 `grove:"max_debt" bson:"max_debt"`
	Rate     string `grove:"interest_rate" bson:"interest_rate"`
}

func ToInterestTier(t *settlement.Tier) *InterestTier {
	return &InterestTier{
		ID:       t.ID.String(),
		FamilyID: t.FamilyID.String(),
		Order:    t.Order,
		MinDebt:  t.MinDebt,
		MaxDebt:  t.MaxDebt,
		Rate:     t.Rate.String(),
	}
}

func FromInterestTier(m *InterestTier) (*settlement.Tier, error) {
	var p parser
	out := &settlement.Tier{
		ID:       p.required(m.ID, id.PrefixTier),
		FamilyID: p.required(m.FamilyID, id.PrefixFamily),
		Order:    m.Order,
		MinDebt:  m.MinDebt,
		MaxDebt:  m.MaxDebt,
	}
	if p.err != nil {
		return nil, p.err
	}
	rate, err := decimal.NewFromString(m.Rate)
	if err != nil {
		return nil, fmt.Errorf("model: tier %s rate %q: %w", m.ID, m.Rate, err)
	}
	out.Rate = rate
	return out, nil
}

// ==================== Balance cache model ====================

type Balance struct {
	grove.BaseModel `grove:"table:sl_balances"`

	ChildID         string    `grove:"child_id,pk" bson:"child_id"`
	CurrentStars    int64     `grove:"current_stars" bson:"current_stars"`
	LifetimeStars   int64     `grove:"lifetime_stars" bson:"lifetime_stars"`
	CreditUsed      int64     `grove:"credit_used" bson:"credit_used"`
	AvailableCredit int64     `grove:"available_credit" bson:"available_credit"`
	SpendableStars  int64     `grove:"spendable_stars" bson:"spendable_stars"`
	CreditLimit     int64     `grove:"credit_limit" bson:"credit_limit"`
	CreditEnabled   bool      `grove:"credit_enabled" bson:"credit_enabled"`
	LastEntryID     string    `grove:"last_entry_id" bson:"last_entry_id"`
	ComputedAt      time.Time `grove:"computed_at" bson:"computed_at"`
}

func ToBalance(b *balance.Balance) *Balance {
	return &Balance{
		ChildID:         b.ChildID.String(),
		CurrentStars:    b.CurrentStars,
		LifetimeStars:   b.LifetimeStars,
		CreditUsed:      b.CreditUsed,
		AvailableCredit: b.AvailableCredit,
		SpendableStars:  b.SpendableStars,
		CreditLimit:     b.CreditLimit,
		CreditEnabled:   b.CreditEnabled,
		LastEntryID:     b.LastEntryID.String(),
		ComputedAt:      b.ComputedAt.UTC(),
	}
}

func FromBalance(m *Balance) (*balance.Balance, error) {
	var p parser
	out := &balance.Balance{
		ChildID:         p.required(m.ChildID, id.PrefixMember),
		CurrentStars:    m.CurrentStars,
		LifetimeStars:   m.LifetimeStars,
		CreditUsed:      m.CreditUsed,
		AvailableCredit: m.AvailableCredit,
		SpendableStars:  m.SpendableStars,
		CreditLimit:     m.CreditLimit,
		CreditEnabled:   m.CreditEnabled,
		ComputedAt:      m.ComputedAt.UTC(),
	}
	if m.LastEntryID != "" {
		last, err := id.Parse(m.LastEntryID)
		if err != nil {
			p.fail(err)
		}
		out.LastEntryID = last
	}
	return out, p.err
}

// ==================== Helpers ====================

// parser collects the first id parse failure so converters stay flat.
type parser struct{ err error }

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *parser) required(s string, prefix id.Prefix) id.ID {
	v, err := id.ParseWithPrefix(s, prefix)
	if err != nil {
		p.fail(fmt.Errorf("model: column value %q: %w", s, err))
	}
	return v
}

// optional maps the empty string to the nil id.
func (p *parser) optional(s string, prefix id.Prefix) id.ID {
	if s == "" {
		return id.Nil
	}
	return p.required(s, prefix)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
