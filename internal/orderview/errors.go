package orderview

import (
	"errors"
	"fmt"
)

// Errors returned by the reconciliation engine and command dispatcher.
var (
	// ErrBusy means a network operation for this order is already in
	// flight. The engine never interleaves load/refresh/commit; callers
	// retry once the pending operation settles.
	ErrBusy = errors.New("an operation is already in flight for this order")

	// ErrNotLoaded means the engine has no current order value yet.
	ErrNotLoaded = errors.New("order not loaded")

	// ErrIllegalTransition means a transition outside the legal set was
	// requested. The UI derives its actions from LegalNextStatuses, so
	// hitting this is a programming error, not a user mistake.
	ErrIllegalTransition = errors.New("status transition not allowed")

	// ErrStaleResult means the engine's generation changed while the
	// operation was in flight (the observing view went away); the result
	// was discarded without touching engine state.
	ErrStaleResult = errors.New("stale result discarded")

	// ErrMissingReason means a cancellation was issued without the
	// mandatory reason.
	ErrMissingReason = errors.New("cancellation reason is required")

	// ErrMissingAssignee means an assign command named nobody.
	ErrMissingAssignee = errors.New("assignee is required")
)

// FetchError wraps a failed load or refresh. The engine keeps the
// last-known-good value and surfaces this for a retry affordance.
type FetchError struct {
	OrderID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch order %s: %v", e.OrderID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CommandRejectedError wraps a command the order store refused, carrying the
// server's reason. The engine rolls back to the pre-command snapshot before
// returning it.
type CommandRejectedError struct {
	OrderID string
	Command string
	Reason  string
	Err     error
}

func (e *CommandRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s order %s rejected: %s", e.Command, e.OrderID, e.Reason)
	}
	return fmt.Sprintf("%s order %s rejected: %v", e.Command, e.OrderID, e.Err)
}

func (e *CommandRejectedError) Unwrap() error { return e.Err }
