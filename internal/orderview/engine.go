package orderview

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/model"
)

// Engine states.
const (
	StateIdle       = "idle"
	StateLoading    = "loading"
	StateReady      = "ready"
	StateLoadError  = "load_error"
	StateRefreshing = "refreshing"
	StateCommitting = "committing"
)

// Engine owns the one logical "current order" value for an open order view
// and reconciles the three sources that compete to write it: the initial
// load, user-triggered refreshes, and externally supplied copies. It applies
// optimistic status patches before the network settles and rolls them back
// exactly when a command fails.
//
// Network operations are single-flight per engine: a second load, refresh or
// commit while one is pending is rejected with ErrBusy, never interleaved.
// An uncommitted optimistic patch blocks load and refresh the same way: a
// fetch landing inside the patch window would clobber the patch, and a later
// rollback would then clobber the fetch.
// The projector and transition validator only ever read the value through
// copies; the optimistic patch is the only direct mutation path, and it runs
// after the rollback snapshot was taken.
type Engine struct {
	orderID string
	caller  CallerIdentity
	source  OrderSource
	disp    *Dispatcher
	logger  *zap.Logger

	mu       sync.Mutex
	state    string
	current  *model.OrderAggregate
	snapshot *model.OrderAggregate // pre-command copy while a command is pending
	lastErr  error
	busy     bool
	gen      uint64 // bumped by Invalidate; in-flight results with an older gen are discarded
}

// NewEngine creates an engine for one order as seen by one caller. A nil
// logger disables logging.
func NewEngine(orderID string, caller CallerIdentity, source OrderSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("order_id", orderID),
		zap.String("session", uuid.NewString()),
		zap.String("role", caller.Role),
	)
	return &Engine{
		orderID: orderID,
		caller:  caller,
		source:  source,
		disp:    NewDispatcher(source, logger),
		logger:  logger,
		state:   StateIdle,
	}
}

// State returns the engine's lifecycle state.
func (e *Engine) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the last recorded error, if any. A Ready engine with a non-nil
// error holds a usable last-known-good value alongside a surfaced failure.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Current returns a deep copy of the current order value, or nil if nothing
// has been loaded or supplied yet.
func (e *Engine) Current() *model.OrderAggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// View projects the caller's effective view of the current value together
// with the legal next statuses for it.
func (e *Engine) View() (EffectiveView, []string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return EffectiveView{}, nil, ErrNotLoaded
	}
	view := Project(e.current, e.caller)
	return view, LegalNextStatuses(view.Status, e.caller), nil
}

// Load performs the initial fetch. On success the result becomes the current
// value. On failure the engine falls back to any previously supplied value
// (via SyncFromExternal) rather than leaving the view empty, and records the
// error for display.
func (e *Engine) Load(ctx context.Context) (*model.OrderAggregate, error) {
	return e.fetch(ctx, false)
}

// Refresh is the user-triggered re-fetch. It bypasses any client caching and
// on success fully replaces the current value with a copy sharing no
// structure with the old one. On failure the current value is untouched.
func (e *Engine) Refresh(ctx context.Context) (*model.OrderAggregate, error) {
	return e.fetch(ctx, true)
}

func (e *Engine) fetch(ctx context.Context, bypassCache bool) (*model.OrderAggregate, error) {
	e.mu.Lock()
	if e.busy || e.snapshot != nil {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.busy = true
	prevState := e.state
	if bypassCache {
		e.state = StateRefreshing
	} else {
		e.state = StateLoading
	}
	startGen := e.gen
	e.mu.Unlock()

	fetched, err := e.source.GetOrder(ctx, e.orderID, bypassCache)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	if e.gen != startGen {
		e.state = prevState
		e.logger.Debug("fetch result discarded, view went away",
			zap.Bool("bypass_cache", bypassCache))
		return nil, ErrStaleResult
	}

	if err != nil {
		e.lastErr = &FetchError{OrderID: e.orderID, Err: err}
		if e.current != nil {
			// Keep the last-known-good value; the UI shows it plus a
			// retry affordance.
			e.state = StateReady
			e.logger.Warn("fetch failed, keeping last known value", zap.Error(err))
		} else {
			e.state = StateLoadError
			e.logger.Error("initial load failed", zap.Error(err))
		}
		return nil, e.lastErr
	}

	e.current = fetched.Clone()
	e.state = StateReady
	e.lastErr = nil
	e.logger.Info("order value replaced from fetch",
		zap.Bool("bypass_cache", bypassCache),
		zap.String("status", fetched.Status),
		zap.Int("items", len(fetched.Items)))
	return fetched, nil
}

// SyncFromExternal offers an externally supplied copy of the order, e.g. one
// the caller navigated in with. The engine adopts it only if it is not worse
// than what it already holds, by the completeness heuristic "at least as
// many items as current": a stale external copy must not clobber a fresher
// value obtained via Refresh. Offers are ignored while a network operation
// or uncommitted optimistic patch is pending.
func (e *Engine) SyncFromExternal(candidate *model.OrderAggregate) bool {
	if candidate == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.busy || e.snapshot != nil {
		e.logger.Debug("external sync ignored, operation in flight")
		return false
	}
	if e.current != nil && len(candidate.Items) < len(e.current.Items) {
		e.logger.Info("external sync rejected, candidate less complete",
			zap.Int("candidate_items", len(candidate.Items)),
			zap.Int("current_items", len(e.current.Items)))
		return false
	}

	e.current = candidate.Clone()
	if e.state == StateIdle || e.state == StateLoadError {
		e.state = StateReady
	}
	e.logger.Info("external sync adopted",
		zap.String("status", candidate.Status),
		zap.Int("items", len(candidate.Items)))
	return true
}

// ApplyOptimistic validates the command against the caller's effective
// status and patches the caller-scoped slice of the current value (the
// matching sub-order for a merchant, the top-level status otherwise) so the
// UI reflects the change before the network call resolves. The pre-command
// snapshot is retained until Commit settles; rollback restores it exactly.
func (e *Engine) ApplyOptimistic(cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return ErrNotLoaded
	}
	if e.busy || e.snapshot != nil {
		return ErrBusy
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	target := cmd.TargetStatus()
	if target != "" {
		current := Project(e.current, e.caller).Status
		if err := ValidateTransition(current, target, e.caller); err != nil {
			e.logger.Error("optimistic apply refused", zap.Error(err))
			return err
		}
	}

	e.snapshot = e.current.Clone()
	if target != "" {
		e.patchStatus(target)
	}
	e.logger.Info("optimistic patch applied",
		zap.String("command", cmd.Kind),
		zap.String("target", target))
	return nil
}

// patchStatus mutates the caller-scoped slice of the current value. Called
// with the lock held, after the rollback snapshot was taken.
func (e *Engine) patchStatus(target string) {
	if e.caller.StoreScoped() {
		if sub := e.current.StoreOrderFor(e.caller.StoreID); sub != nil {
			sub.Status = target
			return
		}
	}
	e.current.Status = target
}

// Commit dispatches the command to the order store and reconciles the
// response. On success the store's returned aggregate, if any, replaces the
// current value; the optimistic patch alone is never assumed correct, so
// callers without a returned aggregate should follow with Refresh. On
// failure the pre-command snapshot is restored exactly and a
// CommandRejectedError is returned.
func (e *Engine) Commit(ctx context.Context, cmd Command) (*model.OrderAggregate, error) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if e.busy {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if e.snapshot == nil {
		// Commit without a prior optimistic apply still needs the
		// rollback point.
		e.snapshot = e.current.Clone()
	}
	// Legality is judged against the pre-patch value: the optimistic patch
	// already moved the visible status to the target.
	baseline := Project(e.snapshot, e.caller).Status
	e.busy = true
	e.state = StateCommitting
	startGen := e.gen
	e.mu.Unlock()

	updated, err := e.disp.Dispatch(ctx, e.orderID, cmd, baseline, e.caller)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	if e.gen != startGen {
		// Invalidate already rolled the optimistic patch back, leaving a
		// usable value.
		e.state = StateReady
		e.logger.Debug("commit result discarded, view went away")
		return nil, ErrStaleResult
	}

	if err != nil {
		e.current = e.snapshot
		e.snapshot = nil
		e.state = StateReady
		e.lastErr = err
		e.logger.Warn("command failed, optimistic patch rolled back",
			zap.String("command", cmd.Kind),
			zap.String("restored_status", Project(e.current, e.caller).Status),
			zap.Error(err))
		return nil, err
	}

	e.snapshot = nil
	e.state = StateReady
	e.lastErr = nil
	if updated != nil {
		e.current = updated.Clone()
	}
	e.logger.Info("command committed",
		zap.String("command", cmd.Kind),
		zap.Bool("aggregate_returned", updated != nil))
	return e.current.Clone(), nil
}

// Invalidate marks the observing view as gone: results of any still-pending
// load, refresh or commit are discarded when they arrive, and an uncommitted
// optimistic patch is rolled back.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.snapshot != nil {
		// Also covers a command still in flight: restore now so the
		// discarded result finds nothing left to roll back.
		e.current = e.snapshot
		e.snapshot = nil
	}
	e.logger.Debug("engine invalidated")
}
