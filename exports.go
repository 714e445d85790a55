package starledger

import (
	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/types"
)

// Re-export common types so callers of the engine rarely need the
// sub-packages.

// Balance is re-exported from the balance package.
type Balance = balance.Balance

// GuardError is re-exported from the guard package.
type GuardError = guard.Error

// GuardPolicy is re-exported from the guard package.
type GuardPolicy = guard.Policy

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export constructors.
var (
	NewEntity          = types.NewEntity
	DefaultGuardPolicy = guard.DefaultPolicy
)
