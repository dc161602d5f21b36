package paychan

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("paychan: not found")
	ErrAlreadyExists = errors.New("paychan: already exists")
	ErrValidation    = errors.New("paychan: invalid input")

	// Channel errors
	ErrChannelNotFound  = errors.New("paychan: channel not found")
	ErrStateConflict    = errors.New("paychan: illegal state transition or stale version")
	ErrChannelTerminal  = errors.New("paychan: channel is in a terminal state")
	ErrCapacityExceeded = errors.New("paychan: amount exceeds remaining channel capacity")

	// Session errors
	ErrSessionNotFound    = errors.New("paychan: work session not found")
	ErrSessionAlreadyOpen = errors.New("paychan: an open work session already exists on this channel")
	ErrNoOpenSession      = errors.New("paychan: no open work session on this channel")

	// Settlement errors
	ErrClaimNotFound    = errors.New("paychan: claim request not found")
	ErrClaimInFlight    = errors.New("paychan: a claim request is already in flight")
	ErrNothingToClaim   = errors.New("paychan: no accrued balance to claim")
	ErrExternalTimeout  = errors.New("paychan: external signer or network unresponsive within bound")
	ErrExternalRejected = errors.New("paychan: signature refused or transaction rejected")

	// Reconciliation errors
	ErrDivergence = errors.New("paychan: on-chain figure disagrees with local accrual")

	// Store errors
	ErrFatal       = errors.New("paychan: persistence failure")
	ErrStoreClosed = errors.New("paychan: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("paychan: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes ValidationError match ErrValidation via errors.Is.
func (e ValidationError) Unwrap() error { return ErrValidation }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrClaimNotFound)
}

// IsConflict returns true if the error is a state-machine or
// optimistic-concurrency conflict. These are returned synchronously and the
// caller decides whether to retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrClaimInFlight) ||
		errors.Is(err, ErrSessionAlreadyOpen) ||
		errors.Is(err, ErrChannelTerminal)
}

// IsExternal returns true if the error came from an external collaborator
// (signer or network). The channel has already been reverted to its last
// stable state; a later InitiateSettlement may retry.
func IsExternal(err error) bool {
	return errors.Is(err, ErrExternalTimeout) ||
		errors.Is(err, ErrExternalRejected)
}

// IsFatal returns true if the error indicates a persistence failure. The
// write is treated as not having happened; no partial state is applied.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
