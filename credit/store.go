package credit

import (
	"context"

	"github.com/xraph/starledger/id"
)

type Store interface {
	CreateCreditTransaction(ctx context.Context, t *Transaction) error
	// ListCreditTransactions returns the child's rows oldest first.
	ListCreditTransactions(ctx context.Context, childID id.MemberID) ([]*Transaction, error)
	GetCreditSettings(ctx context.Context, childID id.MemberID) (*Settings, error)
	ListCreditSettings(ctx context.Context, familyID id.FamilyID) ([]*Settings, error)
	// SaveCreditSettings inserts or replaces the child's settings.
	SaveCreditSettings(ctx context.Context, s *Settings) error
}
