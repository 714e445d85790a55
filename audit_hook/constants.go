package audithook

// Action constants for audit events.
const (
	// Family actions
	ActionFamilyCreated = "family.created"
	ActionMemberAdded   = "member.added"

	// Star transaction actions
	ActionStarsRequested = "stars.requested"
	ActionStarsRecorded  = "stars.recorded"
	ActionStarsApproved  = "stars.approved"
	ActionStarsRejected  = "stars.rejected"
	ActionGuardRejected  = "guard.rejected"

	// Redemption actions
	ActionRedemptionRequested = "redemption.requested"
	ActionRedemptionApproved  = "redemption.approved"
	ActionRedemptionRejected  = "redemption.rejected"
	ActionRedemptionFulfilled = "redemption.fulfilled"

	// Credit actions
	ActionCreditUsed      = "credit.used"
	ActionCreditRepaid    = "credit.repaid"
	ActionInterestCharged = "credit.interest_charged"
	ActionSettlementRun   = "settlement.completed"

	// Integrity actions
	ActionBalanceDrift   = "balance.drift"
	ActionBatchCompleted = "batch.completed"
)

// Resource constants for audit events.
const (
	ResourceFamily      = "family"
	ResourceMember      = "member"
	ResourceTransaction = "star_transaction"
	ResourceRedemption  = "redemption"
	ResourceCredit      = "credit_transaction"
	ResourceSettlement  = "settlement"
	ResourceBalance     = "balance"
)

// Category constants for audit events.
const (
	CategoryHousehold = "household"
	CategoryEarning   = "earning"
	CategorySpending  = "spending"
	CategoryCredit    = "credit"
	CategoryIntegrity = "integrity"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
