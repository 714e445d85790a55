// Package starledger is a family star ledger: children earn stars for
// quests, spend them on rewards, and may borrow against a credit limit that
// accrues tiered interest.
//
// Starledger is a library, not a service. Import it into your Go
// application and pick a store. It provides:
//
//   - A ledger of star transactions and redemptions with a strict status
//     state machine (pending, approved, rejected, fulfilled)
//   - Balances derived from approved entries, cached and reconcilable
//   - A request guard against duplicate and rapid-fire child requests
//   - Single and best-effort batch approval
//   - Credit with tiered interest settlement and pluggable limit policies
//   - Plugins for audit trails, metrics and event streaming
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/starledger"
//	    "github.com/xraph/starledger/store/memory"
//	)
//
//	l := starledger.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// A child asks for stars for a quest; a parent approves it:
//
//	req, err := l.CreateChildRequest(ctx, starledger.ChildRequestInput{
//	    ChildID: childID,
//	    QuestID: questID,
//	})
//	err = l.ApproveEntry(ctx, req.ID, parentID)
//
// Guard rejections unwrap to ErrDuplicatePending or ErrRateLimited and
// carry a retry hint:
//
//	var gerr *starledger.GuardError
//	if errors.As(err, &gerr) {
//	    fmt.Println("try again in", gerr.RetryAfter)
//	}
//
// Redemptions spend stars. When credit is enabled, the part of the cost the
// child cannot cover is borrowed and booked when the redemption is approved:
//
//	rd, err := l.CreateRedemptionRequest(ctx, starledger.RedemptionInput{
//	    ChildID:  childID,
//	    RewardID: rewardID,
//	})
//
// Settlements charge interest on outstanding credit, walking the family's
// interest tiers:
//
//	st, err := l.RunSettlement(ctx, childID, periodEnd)
//
// # Balances
//
// A balance is never stored as a source of truth. It is projected from
// approved entries and credit records; the cached row is rewritten by
// ReconcileBalance and dropped inside every transaction that changes it.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	stx_01h2xcejqtf2nbrexx3vqjhp41  // Star transaction
//	rdm_01h2xcejqtf2nbrexx3vqjhp41  // Redemption
//	stl_01h455vb4pex5vsknk084sn02q  // Settlement
//
// The prefix tells the engine which kind of entry an ID names, so review
// operations take a single id.ID.
package starledger
