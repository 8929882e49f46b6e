package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/middleware"
	"github.com/alekpr/dksh-e-market-api/internal/model"
	"github.com/alekpr/dksh-e-market-api/internal/orderview"
	"github.com/alekpr/dksh-e-market-api/internal/ws"
)

// Broadcaster pushes order-update events to connected dashboard clients.
// Satisfied by *ws.Hub; narrow interface for testability.
type Broadcaster interface {
	BroadcastToStores(storeIDs []string, event ws.Event)
}

// OrderViewHandler exposes the order view core over HTTP: projection,
// legal transitions, refresh, and the status/cancel/assign commands.
type OrderViewHandler struct {
	mgr    *orderview.Manager
	hub    Broadcaster
	logger *zap.Logger
}

// NewOrderViewHandler creates a new OrderViewHandler. hub may be nil when no
// live-update channel is wired; a nil logger disables logging.
func NewOrderViewHandler(mgr *orderview.Manager, hub Broadcaster, logger *zap.Logger) *OrderViewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderViewHandler{mgr: mgr, hub: hub, logger: logger}
}

// RegisterRoutes registers order view endpoints on the given Chi router.
// Expected to be mounted at /orders. Assign is registered separately by the
// router behind the admin role gate.
func (h *OrderViewHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}/view", h.View)
	r.Post("/{id}/refresh", h.Refresh)
	r.Put("/{id}/sync", h.Sync)
	r.Post("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/cancel", h.Cancel)
	r.Delete("/{id}/view", h.Close)
}

// --- Request / Response types ---

type viewResponse struct {
	View              orderview.EffectiveView `json:"view"`
	LegalNextStatuses []string                `json:"legalNextStatuses"`
	EngineState       string                  `json:"engineState"`
	Error             string                  `json:"error,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
	Notes    string `json:"notes,omitempty"`
}

// --- Handlers ---

// View handles GET /orders/{id}/view. Loads the order on first access, and
// re-attempts a failed initial load so reopening the view is itself the
// retry affordance. Returns the caller's effective view plus the legal next
// statuses.
func (h *OrderViewHandler) View(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := h.engine(w, r)
	if !ok {
		return
	}

	if st := eng.State(); st == orderview.StateIdle || st == orderview.StateLoadError {
		if _, err := eng.Load(r.Context()); err != nil && eng.Current() == nil {
			var fetchErr *orderview.FetchError
			if errors.As(err, &fetchErr) {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": fetchErr.Error()})
				return
			}
			h.logger.Error("load order", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	h.writeView(w, eng)
}

// Refresh handles POST /orders/{id}/refresh: a cache-bypassing re-fetch that
// fully replaces the engine's value on success.
func (h *OrderViewHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := h.engine(w, r)
	if !ok {
		return
	}

	fresh, err := eng.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, orderview.ErrBusy) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		if eng.Current() == nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		// Last-known-good value survives a failed refresh; fall through
		// and return it with the error attached.
	}

	if err == nil && fresh != nil {
		h.notifyStores(fresh)
	}
	h.writeView(w, eng)
}

// Sync handles PUT /orders/{id}/sync: an externally supplied candidate copy
// of the aggregate. Adopted only if not worse than the engine's value.
func (h *OrderViewHandler) Sync(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := h.engine(w, r)
	if !ok {
		return
	}

	var candidate model.OrderAggregate
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if candidate.ID != chi.URLParam(r, "id") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate order id mismatch"})
		return
	}

	adopted := eng.SyncFromExternal(&candidate)
	h.logger.Debug("external sync", zap.Bool("adopted", adopted))
	h.writeView(w, eng)
}

// UpdateStatus handles POST /orders/{id}/status.
func (h *OrderViewHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	h.command(w, r, orderview.UpdateStatusCommand(req.Status, req.Notes))
}

// Cancel handles POST /orders/{id}/cancel. Cancellation is a distinct action
// carrying a mandatory reason.
func (h *OrderViewHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}
	h.command(w, r, orderview.CancelCommand(req.Reason))
}

// Assign handles POST /orders/{id}/assign.
func (h *OrderViewHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Assignee == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "assignee is required"})
		return
	}
	h.command(w, r, orderview.AssignCommand(req.Assignee, req.Notes))
}

// Close handles DELETE /orders/{id}/view: the dashboard closed the order
// view, so pending results for it become discardable.
func (h *OrderViewHandler) Close(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	h.mgr.Release(chi.URLParam(r, "id"), caller)
	w.WriteHeader(http.StatusNoContent)
}

// command runs the optimistic-apply / commit / reconcile cycle shared by
// status, cancel and assign.
func (h *OrderViewHandler) command(w http.ResponseWriter, r *http.Request, cmd orderview.Command) {
	eng, _, ok := h.engine(w, r)
	if !ok {
		return
	}

	// Commands need a loaded value to patch and to validate against.
	if st := eng.State(); st == orderview.StateIdle || st == orderview.StateLoadError {
		if _, err := eng.Load(r.Context()); err != nil && eng.Current() == nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
	}

	if err := eng.ApplyOptimistic(cmd); err != nil {
		h.writeCommandError(w, err)
		return
	}

	updated, err := eng.Commit(r.Context(), cmd)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	if updated != nil {
		h.notifyStores(updated)
	}
	h.writeView(w, eng)
}

func (h *OrderViewHandler) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderview.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orderview.ErrNotLoaded):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orderview.ErrIllegalTransition),
		errors.Is(err, orderview.ErrMissingReason),
		errors.Is(err, orderview.ErrMissingAssignee):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		var rejected *orderview.CommandRejectedError
		if errors.As(err, &rejected) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": rejected.Error()})
			return
		}
		// Transport failure on the way to the order store; the optimistic
		// patch was rolled back and the command can simply be retried.
		h.logger.Error("order command", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

// writeView renders the caller's effective view of the engine's current
// value. A degraded projection or retained fetch error travels with the
// payload so the dashboard warns instead of silently misleading.
func (h *OrderViewHandler) writeView(w http.ResponseWriter, eng *orderview.Engine) {
	view, legal, err := eng.View()
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not available"})
		return
	}

	resp := viewResponse{
		View:              view,
		LegalNextStatuses: legal,
		EngineState:       eng.State(),
	}
	if engErr := eng.Err(); engErr != nil {
		resp.Error = engErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// notifyStores pushes the updated aggregate's summary to every participating
// store's dashboard room.
func (h *OrderViewHandler) notifyStores(order *model.OrderAggregate) {
	if h.hub == nil || order == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      order.Status,
	})
	if err != nil {
		return
	}
	h.hub.BroadcastToStores(order.StoreIDs(), ws.Event{
		Type:    "order.updated",
		Payload: payload,
	})
}

// engine resolves the caller and their engine for the order in the URL.
func (h *OrderViewHandler) engine(w http.ResponseWriter, r *http.Request) (*orderview.Engine, orderview.CallerIdentity, bool) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return nil, orderview.CallerIdentity{}, false
	}
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order ID"})
		return nil, caller, false
	}
	return h.mgr.Engine(orderID, caller), caller, true
}

// callerFromRequest builds the explicit caller identity from the request's
// claims. The core never reads ambient auth state itself.
func callerFromRequest(w http.ResponseWriter, r *http.Request) (orderview.CallerIdentity, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return orderview.CallerIdentity{}, false
	}
	return orderview.CallerIdentity{Role: claims.Role, StoreID: claims.StoreID}, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
