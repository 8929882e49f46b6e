package orderview

import (
	"sync"

	"go.uber.org/zap"
)

// Manager hands out one engine per open order view. Engines are keyed by
// order ID plus the caller's scope, so an admin and a merchant looking at
// the same order each get their own reconciliation state.
type Manager struct {
	source OrderSource
	logger *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(source OrderSource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:  source,
		logger:  logger,
		engines: make(map[string]*Engine),
	}
}

func engineKey(orderID string, caller CallerIdentity) string {
	return orderID + "|" + caller.Role + "|" + caller.StoreID
}

// Engine returns the engine for the given order and caller, creating it on
// first use.
func (m *Manager) Engine(orderID string, caller CallerIdentity) *Engine {
	key := engineKey(orderID, caller)
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[key]; ok {
		return e
	}
	e := NewEngine(orderID, caller, m.source, m.logger)
	m.engines[key] = e
	return e
}

// Release invalidates and drops the engine for the given order and caller,
// e.g. when the dashboard closes the order view.
func (m *Manager) Release(orderID string, caller CallerIdentity) {
	key := engineKey(orderID, caller)
	m.mu.Lock()
	e, ok := m.engines[key]
	if ok {
		delete(m.engines, key)
	}
	m.mu.Unlock()
	if ok {
		e.Invalidate()
	}
}
