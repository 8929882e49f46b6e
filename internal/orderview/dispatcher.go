package orderview

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/enum"
	"github.com/alekpr/dksh-e-market-api/internal/model"
)

// OrderSource is the external order store collaborator: the REST backend
// that owns the authoritative aggregates. Satisfied by *orderstore.Client;
// narrow interface for testability.
//
// Each command may return the updated aggregate or nil when the backend
// responds with no body.
type OrderSource interface {
	GetOrder(ctx context.Context, id string, bypassCache bool) (*model.OrderAggregate, error)
	UpdateStatus(ctx context.Context, id, status, notes string) (*model.OrderAggregate, error)
	Cancel(ctx context.Context, id, reason string) (*model.OrderAggregate, error)
	Assign(ctx context.Context, id, assignee, notes string) (*model.OrderAggregate, error)
}

// Command kinds.
const (
	CommandUpdateStatus = "update_status"
	CommandCancel       = "cancel"
	CommandAssign       = "assign"
)

// Command is an outbound mutation of an order: a status transition, a
// cancellation with its mandatory reason, or an assignment.
type Command struct {
	Kind     string
	Target   string // next status, for CommandUpdateStatus
	Reason   string // mandatory, for CommandCancel
	Assignee string // mandatory, for CommandAssign
	Notes    string
}

// UpdateStatusCommand builds a transition into target.
func UpdateStatusCommand(target, notes string) Command {
	return Command{Kind: CommandUpdateStatus, Target: target, Notes: notes}
}

// CancelCommand builds a cancellation carrying its reason.
func CancelCommand(reason string) Command {
	return Command{Kind: CommandCancel, Reason: reason}
}

// AssignCommand builds an assignment.
func AssignCommand(assignee, notes string) Command {
	return Command{Kind: CommandAssign, Assignee: assignee, Notes: notes}
}

// TargetStatus returns the status the command moves the order into, or ""
// for commands that do not change status.
func (c Command) TargetStatus() string {
	switch c.Kind {
	case CommandUpdateStatus:
		return c.Target
	case CommandCancel:
		return enum.OrderStatusCancelled
	}
	return ""
}

// Validate checks the command's own shape, independent of order state.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandUpdateStatus:
		if !enum.IsValidOrderStatus(c.Target) {
			return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, c.Target)
		}
		return nil
	case CommandCancel:
		if c.Reason == "" {
			return ErrMissingReason
		}
		return nil
	case CommandAssign:
		if c.Assignee == "" {
			return ErrMissingAssignee
		}
		return nil
	}
	return fmt.Errorf("unknown command kind %q", c.Kind)
}

// Dispatcher turns validated commands into order-store calls and maps
// refusals into CommandRejectedError. It re-checks transition legality
// before sending: the UI derives actions from LegalNextStatuses, so a
// failure here is a programming error rather than a user-facing condition,
// but the engine must not trust the UI.
type Dispatcher struct {
	source OrderSource
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher. A nil logger disables logging.
func NewDispatcher(source OrderSource, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{source: source, logger: logger}
}

// Dispatch validates cmd against the caller's current effective status and
// sends it to the order store. currentStatus must be the status of the slice
// the caller acts on (sub-order status for a merchant).
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string, cmd Command, currentStatus string, caller CallerIdentity) (*model.OrderAggregate, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if target := cmd.TargetStatus(); target != "" {
		if err := ValidateTransition(currentStatus, target, caller); err != nil {
			d.logger.Error("illegal transition requested",
				zap.String("order_id", orderID),
				zap.String("from", currentStatus),
				zap.String("to", target),
				zap.String("role", caller.Role))
			return nil, err
		}
	}

	var (
		updated *model.OrderAggregate
		err     error
	)
	switch cmd.Kind {
	case CommandUpdateStatus:
		updated, err = d.source.UpdateStatus(ctx, orderID, cmd.Target, cmd.Notes)
	case CommandCancel:
		updated, err = d.source.Cancel(ctx, orderID, cmd.Reason)
	case CommandAssign:
		updated, err = d.source.Assign(ctx, orderID, cmd.Assignee, cmd.Notes)
	}
	if err != nil {
		// Only an actual server reply counts as a rejection. A transport
		// failure that never reached the order store stays a fetch-class
		// error so callers surface a retry, not a refusal.
		var reply serverReply
		if errors.As(err, &reply) {
			return nil, &CommandRejectedError{
				OrderID: orderID,
				Command: cmd.Kind,
				Reason:  err.Error(),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("%s order %s: %w", cmd.Kind, orderID, err)
	}
	return updated, nil
}

// serverReply is satisfied by *orderstore.APIError, the error shape carrying
// a response the backend actually sent.
type serverReply interface {
	HTTPStatus() int
}
