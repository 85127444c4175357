package cadence

import (
	"errors"

	"github.com/xraph/cadence/plan"
)

// Sentinel errors for common failure scenarios.
var (
	// Input errors
	ErrInvalidTerms  = plan.ErrInvalidTerms
	ErrInvalidInput  = errors.New("cadence: invalid input")
	ErrInvalidCycles = errors.New("cadence: max cycles must be at least 1")
	ErrUnauthorized  = errors.New("cadence: unauthorized")

	// Lookup errors
	ErrPlanNotFound         = errors.New("cadence: plan not found")
	ErrSubscriptionNotFound = errors.New("cadence: subscription not found")

	// State errors
	ErrNotActive         = errors.New("cadence: subscription is not active")
	ErrAlreadySubscribed = errors.New("cadence: already subscribed")
	ErrAlreadyTerminal   = errors.New("cadence: subscription is canceled")
	ErrNotYetDue         = errors.New("cadence: payment not yet due")

	// Payment errors
	ErrPaymentFailed = errors.New("cadence: payment failed")

	// Store errors
	ErrConflict     = errors.New("cadence: concurrent modification")
	ErrCommitFailed = errors.New("cadence: commit failed after transfer")
	ErrStoreClosed  = errors.New("cadence: store is closed")
)

// ValidationError describes which plan term was rejected. errors.Is
// matches it against ErrInvalidTerms.
type ValidationError = plan.TermsError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsStateError returns true if the operation was rejected because of the
// subscription's current lifecycle state.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrAlreadySubscribed) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrNotYetDue)
}

// IsRetryable returns true if the operation failed without side effects and
// may succeed when repeated later. A commit failure is never retryable: the
// transfer for that call has already landed.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCommitFailed) {
		return false
	}
	return errors.Is(err, ErrPaymentFailed) ||
		errors.Is(err, ErrConflict)
}
