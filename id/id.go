// Package id defines TypeID-based identity types for star ledger entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix". The prefix doubles as the kind
// tag of a ledger entry: "stx" for star transactions, "rdm" for redemptions.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all star ledger entity types.
const (
	PrefixFamily            Prefix = "fam"  // Family
	PrefixMember            Prefix = "mbr"  // Parent or child member
	PrefixQuest             Prefix = "qst"  // Chore or behaviour quest
	PrefixReward            Prefix = "rwd"  // Redeemable reward
	PrefixStarTransaction   Prefix = "stx"  // Star transaction
	PrefixRedemption        Prefix = "rdm"  // Reward redemption
	PrefixCreditTransaction Prefix = "ctx"  // Credit accounting record
	PrefixSettlement        Prefix = "stl"  // Interest settlement
	PrefixTier              Prefix = "tier" // Interest tier
)

// ID is the primary identifier type for all Ledger entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "stx_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// MustParseWithPrefix is like ParseWithPrefix but panics on error.
func MustParseWithPrefix(s string, expected Prefix) ID {
	parsed, err := ParseWithPrefix(s, expected)
	if err != nil {
		panic(fmt.Sprintf("id: must parse with prefix %q: %v", expected, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// FamilyID identifies a family (prefix: "fam").
type FamilyID = ID

// MemberID identifies a parent or child (prefix: "mbr").
type MemberID = ID

// QuestID identifies a quest (prefix: "qst").
type QuestID = ID

// RewardID identifies a reward (prefix: "rwd").
type RewardID = ID

// StarTransactionID identifies a star transaction (prefix: "stx").
type StarTransactionID = ID

// RedemptionID identifies a redemption (prefix: "rdm").
type RedemptionID = ID

// CreditTransactionID identifies a credit transaction (prefix: "ctx").
type CreditTransactionID = ID

// SettlementID identifies a settlement (prefix: "stl").
type SettlementID = ID

// TierID identifies an interest tier (prefix: "tier").
type TierID = ID

// EntryID identifies any reviewable ledger entry ("stx" or "rdm").
type EntryID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

func NewFamilyID() ID            { return New(PrefixFamily) }
func NewMemberID() ID            { return New(PrefixMember) }
func NewQuestID() ID             { return New(PrefixQuest) }
func NewRewardID() ID            { return New(PrefixReward) }
func NewStarTransactionID() ID   { return New(PrefixStarTransaction) }
func NewRedemptionID() ID        { return New(PrefixRedemption) }
func NewCreditTransactionID() ID { return New(PrefixCreditTransaction) }
func NewSettlementID() ID        { return New(PrefixSettlement) }
func NewTierID() ID              { return New(PrefixTier) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseFamilyID parses a string and validates the "fam" prefix.
func ParseFamilyID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFamily) }

// ParseMemberID parses a string and validates the "mbr" prefix.
func ParseMemberID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMember) }

// ParseQuestID parses a string and validates the "qst" prefix.
func ParseQuestID(s string) (ID, error) { return ParseWithPrefix(s, PrefixQuest) }

// ParseRewardID parses a string and validates the "rwd" prefix.
func ParseRewardID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReward) }

// ParseStarTransactionID parses a string and validates the "stx" prefix.
func ParseStarTransactionID(s string) (ID, error) {
	return ParseWithPrefix(s, PrefixStarTransaction)
}

// ParseRedemptionID parses a string and validates the "rdm" prefix.
func ParseRedemptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRedemption) }

// ParseSettlementID parses a string and validates the "stl" prefix.
func ParseSettlementID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSettlement) }

// ParseEntryID parses a reviewable ledger entry ID. Only star transaction
// and redemption prefixes are accepted.
func ParseEntryID(s string) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if !parsed.IsEntry() {
		return Nil, fmt.Errorf("id: %q is not a ledger entry id", s)
	}
	return parsed, nil
}

// ParseAny parses a string into an ID without type checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsEntry reports whether the ID names a reviewable ledger entry.
func (i ID) IsEntry() bool {
	p := i.Prefix()
	return p == PrefixStarTransaction || p == PrefixRedemption
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
