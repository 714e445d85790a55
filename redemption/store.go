package redemption

import (
	"context"

	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/types"
)

type Store interface {
	CreateRedemption(ctx context.Context, r *Redemption) error
	GetRedemption(ctx context.Context, redemptionID id.RedemptionID) (*Redemption, error)
	ListRedemptions(ctx context.Context, f ListFilter) ([]*Redemption, error)
	// UpdateRedemptionStatus is a compare-and-set on the current status.
	// Moving to fulfilled stamps FulfilledAt instead of the review fields.
	UpdateRedemptionStatus(ctx context.Context, redemptionID id.RedemptionID, from, to Status, review types.Review) error
	// SetRedemptionCredit rewrites the credit portion of a pending
	// redemption. UsesCredit follows amount > 0.
	SetRedemptionCredit(ctx context.Context, redemptionID id.RedemptionID, amount int64) error
}
