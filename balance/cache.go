package balance

import (
	"context"

	"github.com/xraph/starledger/id"
)

// Store persists the cached balance row alongside the ledger so it can be
// invalidated in the same transaction as the write that stales it.
type Store interface {
	GetCachedBalance(ctx context.Context, childID id.MemberID) (*Balance, error)
	SetCachedBalance(ctx context.Context, b *Balance) error
	InvalidateBalance(ctx context.Context, childID id.MemberID) error
}

// Cache is an optional read-side cache in front of the store row. It is
// never consulted by write paths.
type Cache interface {
	Get(ctx context.Context, childID id.MemberID) (*Balance, bool, error)
	Put(ctx context.Context, b *Balance) error
	Invalidate(ctx context.Context, childID id.MemberID) error
}
