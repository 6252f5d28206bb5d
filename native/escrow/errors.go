package escrow

import "errors"

// Typed rejection reasons surfaced to callers. Every rejected precondition
// wraps one of these sentinels with serviceId/index context so callers can
// distinguish a retryable input mistake from a terminal business rejection.
var (
	// ErrNotFound marks lookups for unknown service identifiers.
	ErrNotFound = errors.New("escrow: service not found")
	// ErrMilestoneNotFound marks an index outside the service's milestone set.
	ErrMilestoneNotFound = errors.New("escrow: milestone not found")
	// ErrNotAuthorized marks calls from the wrong party for the operation.
	ErrNotAuthorized = errors.New("escrow: caller not authorized")
	// ErrInvalidState marks operations not valid for the current status.
	ErrInvalidState = errors.New("escrow: invalid state for operation")
	// ErrOutOfOrder marks milestone starts that skip an unapproved predecessor.
	ErrOutOfOrder = errors.New("escrow: milestone out of order")
	// ErrAmountMismatch marks amount sets that do not reconcile with the total.
	ErrAmountMismatch = errors.New("escrow: amount mismatch")
	// ErrInsufficientFunds marks deposits the payer cannot cover.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	// ErrAlreadyReleased marks a second approval of an already paid milestone.
	ErrAlreadyReleased = errors.New("escrow: milestone already released")
)
