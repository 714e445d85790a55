package settlement

import (
	"context"
	"time"

	"github.com/xraph/starledger/id"
)

// LimitInput is what a LimitPolicy sees when a child is settled.
type LimitInput struct {
	ChildID             id.MemberID
	PeriodEnd           time.Time
	DebtAmount          int64
	Interest            int64
	CreditLimit         int64
	OriginalCreditLimit int64
}

// LimitPolicy decides the credit limit after a settlement.
type LimitPolicy interface {
	NextLimit(ctx context.Context, in LimitInput) (int64, error)
}

// LimitPolicyFunc adapts a function to LimitPolicy.
type LimitPolicyFunc func(ctx context.Context, in LimitInput) (int64, error)

// NextLimit implements LimitPolicy.
func (f LimitPolicyFunc) NextLimit(ctx context.Context, in LimitInput) (int64, error) {
	return f(ctx, in)
}

// KeepLimit leaves the limit unchanged.
var KeepLimit LimitPolicy = LimitPolicyFunc(func(_ context.Context, in LimitInput) (int64, error) {
	return in.CreditLimit, nil
})

// StepPolicy lowers the limit by Step (not below Floor) when the child
// settled with debt at or above the limit, and otherwise raises it by Step
// back toward the original limit.
type StepPolicy struct {
	Step  int64
	Floor int64
}

// NextLimit implements LimitPolicy.
func (p StepPolicy) NextLimit(_ context.Context, in LimitInput) (int64, error) {
	next := in.CreditLimit
	switch {
	case in.DebtAmount >= in.CreditLimit:
		next = max(in.CreditLimit-p.Step, p.Floor)
	case in.CreditLimit < in.OriginalCreditLimit:
		next = min(in.CreditLimit+p.Step, in.OriginalCreditLimit)
	}
	return max(next, 0), nil
}
