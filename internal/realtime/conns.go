package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the open WebSocket for each live session. A new
// connection for the same key replaces and closes the old one.
type ConnManager struct {
	mu     sync.RWMutex
	active map[Key]*websocket.Conn
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[Key]*websocket.Conn),
	}
}

// Get returns the active connection for key.
func (m *ConnManager) Get(key Key) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[key]
}

// Register adds conn for key, closing any connection it replaces.
func (m *ConnManager) Register(key Key, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[key] = conn
	slog.Info("dialogue connection registered", "user_id", key.UserID, "tab_id", key.TabID, "encounter_id", key.EncounterID)
}

// Unregister removes conn if it is still the active connection for key.
func (m *ConnManager) Unregister(key Key, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[key]; ok && current == conn {
		delete(m.active, key)
		slog.Info("dialogue connection unregistered", "user_id", key.UserID, "tab_id", key.TabID)
	}
}

// Close terminates the connection for key, if any.
func (m *ConnManager) Close(key Key, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.active[key]; ok {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
		delete(m.active, key)
	}
}

// CloseUser terminates every connection belonging to userID.
func (m *ConnManager) CloseUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, conn := range m.active {
		if k.UserID != userID {
			continue
		}
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		delete(m.active, k)
		slog.Info("dialogue connection closed", "user_id", userID, "tab_id", k.TabID)
	}
}
