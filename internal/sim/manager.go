package sim

import (
	"sync"
	"time"
)

// Manager holds one Engine per user. Sessions are fully isolated; no
// engine is ever shared across users.
type Manager struct {
	mu       sync.RWMutex
	engines  map[string]*Engine
	lastSeen map[string]time.Time
	factory  EngineFactory
}

// EngineFactory creates the engine for a user, typically rehydrating it
// from the snapshot store.
type EngineFactory func(userID string) (*Engine, error)

// NewManager creates a session manager backed by the given factory.
func NewManager(factory EngineFactory) *Manager {
	return &Manager{
		engines:  make(map[string]*Engine),
		lastSeen: make(map[string]time.Time),
		factory:  factory,
	}
}

// GetOrCreate returns the user's engine, creating it on first use.
func (m *Manager) GetOrCreate(userID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eng, ok := m.engines[userID]; ok {
		m.lastSeen[userID] = time.Now()
		return eng, nil
	}

	eng, err := m.factory(userID)
	if err != nil {
		return nil, err
	}

	m.engines[userID] = eng
	m.lastSeen[userID] = time.Now()
	return eng, nil
}

// Get returns the user's engine, or nil when no session exists yet.
func (m *Manager) Get(userID string) *Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[userID]
}

// UserCount returns the number of resident sessions.
func (m *Manager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// CleanupIdle evicts sessions idle longer than ttl. Persisted state
// survives eviction; the factory rebuilds the engine on next use.
func (m *Manager) CleanupIdle(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, t := range m.lastSeen {
		if t.Before(cutoff) {
			delete(m.engines, userID)
			delete(m.lastSeen, userID)
		}
	}
}
