// Package guard enforces duplicate and rate-limit policy on child-initiated
// star requests.
//
// Check must run against the same transactional view the subsequent insert
// uses; otherwise two rapid requests can both pass.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/transaction"
	"github.com/xraph/starledger/types"
)

var (
	ErrDuplicatePending = errors.New("starledger: a pending request for this quest already exists today")
	ErrRateLimited      = errors.New("starledger: too many requests")
)

// Rule names the check that rejected a request.
type Rule string

const (
	RuleDuplicatePending Rule = "duplicate_pending"
	RuleQuestCooldown    Rule = "quest_cooldown"
	RuleGlobalCooldown   Rule = "global_cooldown"
)

// Error is returned when a request is rejected. It unwraps to
// ErrDuplicatePending or ErrRateLimited.
type Error struct {
	Rule       Rule
	RetryAfter time.Duration
	err        error
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (%s, retry after %s)", e.err, e.Rule, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("%v (%s)", e.err, e.Rule)
}

func (e *Error) Unwrap() error { return e.err }

// NewError builds the error for a failed rule. Duplicate pending requests
// wrap ErrDuplicatePending, both cooldowns wrap ErrRateLimited.
func NewError(rule Rule, retryAfter time.Duration) *Error {
	err := ErrRateLimited
	if rule == RuleDuplicatePending {
		err = ErrDuplicatePending
	}
	return &Error{Rule: rule, RetryAfter: retryAfter, err: err}
}

type Policy struct {
	// QuestCooldown is the minimum gap between two requests for the same
	// child and quest, whatever their status.
	QuestCooldown time.Duration
	// GlobalWindow and GlobalLimit bound how many requests a child may make
	// across all quests.
	GlobalWindow time.Duration
	GlobalLimit  int
}

// DefaultPolicy is a 2 minute quest cooldown and at most 2 requests per
// minute.
func DefaultPolicy() Policy {
	return Policy{
		QuestCooldown: 2 * time.Minute,
		GlobalWindow:  time.Minute,
		GlobalLimit:   2,
	}
}

// Reader is the transactional view the guard reads from.
type Reader interface {
	ListStarTransactions(ctx context.Context, f transaction.ListFilter) ([]*transaction.StarTransaction, error)
	CountStarTransactions(ctx context.Context, f transaction.ListFilter) (int64, error)
}

// Request describes the child request being admitted.
type Request struct {
	ChildID id.MemberID
	QuestID id.QuestID
	Now     time.Time
	// Location is the family's day boundary. Nil means UTC.
	Location *time.Location
}

type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

func (g *Guard) Policy() Policy { return g.policy }

// Check runs the duplicate, quest cooldown and global cooldown checks in
// that order and returns the first failure. Only child requests count;
// parent records never hold a child back. An entry stops counting once
// exactly the cooldown has passed.
func (g *Guard) Check(ctx context.Context, r Reader, req Request) error {
	day := types.DayOf(req.Now, req.Location)
	childRequests := []transaction.Source{transaction.SourceChildRequest}

	pending, err := r.CountStarTransactions(ctx, transaction.ListFilter{
		ChildID:       req.ChildID,
		QuestID:       req.QuestID,
		Statuses:      []transaction.Status{transaction.StatusPending},
		Sources:       childRequests,
		CreatedFrom:   day.Start,
		CreatedBefore: day.End,
	})
	if err != nil {
		return fmt.Errorf("guard: count pending: %w", err)
	}
	if pending > 0 {
		return NewError(RuleDuplicatePending, 0)
	}

	if g.policy.QuestCooldown > 0 {
		recent, err := r.ListStarTransactions(ctx, transaction.ListFilter{
			ChildID:     req.ChildID,
			QuestID:     req.QuestID,
			Sources:     childRequests,
			CreatedFrom: req.Now.Add(-g.policy.QuestCooldown),
		})
		if err != nil {
			return fmt.Errorf("guard: list recent quest requests: %w", err)
		}
		recent = within(recent, req.Now, g.policy.QuestCooldown)
		if len(recent) > 0 {
			latest := recent[0].CreatedAt
			for _, t := range recent[1:] {
				if t.CreatedAt.After(latest) {
					latest = t.CreatedAt
				}
			}
			return NewError(RuleQuestCooldown, latest.Add(g.policy.QuestCooldown).Sub(req.Now))
		}
	}

	if g.policy.GlobalWindow > 0 && g.policy.GlobalLimit > 0 {
		recent, err := r.ListStarTransactions(ctx, transaction.ListFilter{
			ChildID:     req.ChildID,
			Sources:     childRequests,
			CreatedFrom: req.Now.Add(-g.policy.GlobalWindow),
		})
		if err != nil {
			return fmt.Errorf("guard: list recent requests: %w", err)
		}
		recent = within(recent, req.Now, g.policy.GlobalWindow)
		if len(recent) >= g.policy.GlobalLimit {
			oldest := recent[0].CreatedAt
			for _, t := range recent[1:] {
				if t.CreatedAt.Before(oldest) {
					oldest = t.CreatedAt
				}
			}
			return NewError(RuleGlobalCooldown, oldest.Add(g.policy.GlobalWindow).Sub(req.Now))
		}
	}

	return nil
}

// within keeps entries whose window (created_at, created_at+d] still
// covers now.
func within(ts []*transaction.StarTransaction, now time.Time, d time.Duration) []*transaction.StarTransaction {
	out := make([]*transaction.StarTransaction, 0, len(ts))
	for _, t := range ts {
		if t.CreatedAt.Add(d).After(now) {
			out = append(out, t)
		}
	}
	return out
}
