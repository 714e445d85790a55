package starledger

import (
	"errors"
	"fmt"

	"github.com/xraph/starledger/guard"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("starledger: not found")
	ErrAlreadyExists = errors.New("starledger: already exists")
	ErrInvalidInput  = errors.New("starledger: invalid input")
	ErrForbidden     = errors.New("starledger: forbidden")

	// Family and catalog errors
	ErrFamilyNotFound = fmt.Errorf("%w: family", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("%w: member", ErrNotFound)
	ErrQuestNotFound  = fmt.Errorf("%w: quest", ErrNotFound)
	ErrRewardNotFound = fmt.Errorf("%w: reward", ErrNotFound)
	ErrInactive       = errors.New("starledger: quest or reward is inactive")

	// Ledger entry errors
	ErrEntryNotFound       = fmt.Errorf("%w: ledger entry", ErrNotFound)
	ErrInvalidTransition   = errors.New("starledger: invalid status transition")
	ErrAlreadyReviewed     = fmt.Errorf("%w: entry already reviewed", ErrInvalidTransition)
	ErrInsufficientBalance = errors.New("starledger: insufficient balance")
	ErrCreditLimitExceeded = errors.New("starledger: credit limit exceeded")

	// Request guard errors
	ErrDuplicatePending = guard.ErrDuplicatePending
	ErrRateLimited      = guard.ErrRateLimited

	// Credit and settlement errors
	ErrCreditDisabled       = errors.New("starledger: credit is not enabled for this child")
	ErrNoOutstandingDebt    = errors.New("starledger: no outstanding debt")
	ErrAlreadySettled       = errors.New("starledger: period already settled")
	ErrSettlementNotFound   = fmt.Errorf("%w: settlement", ErrNotFound)
	ErrCreditSettingsAbsent = fmt.Errorf("%w: credit settings", ErrNotFound)
	ErrInvalidTiers         = errors.New("starledger: invalid interest tiers")

	// Store errors
	ErrStorage     = errors.New("starledger: storage failure")
	ErrStoreClosed = errors.New("starledger: store is closed")

	// Cache errors
	ErrCacheMiss    = errors.New("starledger: cache miss")
	ErrBalanceDrift = errors.New("starledger: cached balance drifted from ledger")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("starledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "starledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("starledger: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// StorageError wraps a backend failure. Retryable is set for conflicts the
// caller may safely run again, such as serialization failures.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("starledger: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// NewStorageError wraps err unless it already carries a ledger sentinel.
func NewStorageError(op string, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err, Retryable: retryable}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsGuardError reports whether err came from the request guard.
func IsGuardError(err error) bool {
	var gerr *guard.Error
	return errors.As(err, &gerr) ||
		errors.Is(err, ErrDuplicatePending) ||
		errors.Is(err, ErrRateLimited)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidTiers)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
// The engine itself never retries.
func IsRetryable(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

func isStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
