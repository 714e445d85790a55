package transaction

import (
	"context"

	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/types"
)

type Store interface {
	CreateStarTransaction(ctx context.Context, t *StarTransaction) error
	GetStarTransaction(ctx context.Context, txID id.StarTransactionID) (*StarTransaction, error)
	ListStarTransactions(ctx context.Context, f ListFilter) ([]*StarTransaction, error)
	CountStarTransactions(ctx context.Context, f ListFilter) (int64, error)
	// UpdateStarTransactionStatus moves a row from `from` to `to` only if it
	// is still in `from`.
	UpdateStarTransactionStatus(ctx context.Context, txID id.StarTransactionID, from, to Status, review types.Review) error
}
