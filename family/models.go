// Package family defines families and their parent and child members.
package family

import (
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/types"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

type Family struct {
	types.Entity
	ID   id.FamilyID `json:"id"`
	Name string      `json:"name"`
	// Timezone is an IANA zone name used for calendar-day boundaries.
	Timezone string `json:"timezone,omitempty"`
}

type Member struct {
	types.Entity
	ID       id.MemberID `json:"id"`
	FamilyID id.FamilyID `json:"family_id"`
	Name     string      `json:"name"`
	Role     Role        `json:"role"`
}

func (m *Member) IsParent() bool { return m.Role == RoleParent }
func (m *Member) IsChild() bool  { return m.Role == RoleChild }

// CanReview reports whether m may review entries of familyID.
func (m *Member) CanReview(familyID id.FamilyID) bool {
	return m.IsParent() && m.FamilyID.String() == familyID.String()
}
