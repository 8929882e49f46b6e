package orderview

import (
	"fmt"

	"github.com/alekpr/dksh-e-market-api/internal/enum"
)

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
// delivered, cancelled and refunded are terminal; refunded is only ever
// observed on fetched aggregates, never offered as a dashboard transition.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:            {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed:          {enum.OrderStatusProcessing, enum.OrderStatusCancelled},
	enum.OrderStatusProcessing:         {enum.OrderStatusWaitingForDelivery, enum.OrderStatusCancelled},
	enum.OrderStatusWaitingForDelivery: {enum.OrderStatusShipped, enum.OrderStatusCancelled},
	enum.OrderStatusShipped:            {enum.OrderStatusDelivered},
}

// LegalNextStatuses returns the set of statuses the caller may move an order
// (or sub-order) to from the given status. The caller is expected to pass
// the status of the slice they act on: a merchant passes their store
// sub-order's status from the effective view, never the parent's. Pure and
// total: unknown statuses, terminal statuses, and unknown roles all yield an
// empty set.
func LegalNextStatuses(current string, caller CallerIdentity) []string {
	if !caller.CanAct() {
		return nil
	}
	allowed, ok := allowedTransitions[current]
	if !ok {
		return nil
	}
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}

// ValidateTransition checks that moving from current to next is legal for
// the caller. Used defensively at the dispatch boundary: the UI should only
// ever offer statuses from LegalNextStatuses.
func ValidateTransition(current, next string, caller CallerIdentity) error {
	for _, s := range LegalNextStatuses(current, caller) {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (role %s)", ErrIllegalTransition, current, next, caller.Role)
}

// CanCancel reports whether the caller may cancel from the given status.
// Cancellation is a distinct action with a mandatory reason, but it follows
// the same source-status gating as any transition into cancelled.
func CanCancel(current string, caller CallerIdentity) bool {
	return ValidateTransition(current, enum.OrderStatusCancelled, caller) == nil
}
