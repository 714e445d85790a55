package family

import (
	"context"

	"github.com/xraph/starledger/id"
)

type Store interface {
	CreateFamily(ctx context.Context, f *Family) error
	GetFamily(ctx context.Context, familyID id.FamilyID) (*Family, error)
	ListFamilies(ctx context.Context) ([]*Family, error)
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, memberID id.MemberID) (*Member, error)
	ListMembers(ctx context.Context, familyID id.FamilyID, role Role) ([]*Member, error)
}
