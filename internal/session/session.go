// Package session maps externally supplied or generated identifiers to
// logical conversations and serializes turn execution per session, so
// that each transcript has at most one mutator at a time.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Manager mints session ids and hands out per-session turn locks.
// The zero value is not usable; use NewManager.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*sync.Mutex)}
}

// Resolve returns the session id to use for a turn: the supplied id when
// present (trimmed), otherwise a freshly minted one. The second return
// reports whether a new id was minted.
func (m *Manager) Resolve(sessionID string) (string, bool) {
	id := strings.TrimSpace(sessionID)
	if id != "" {
		return id, false
	}
	return uuid.NewString(), true
}

// Lock acquires the turn lock for the session, creating it on first use.
// The returned func releases the lock.
func (m *Manager) Lock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Forget drops the turn lock for a purged session. Safe to call while no
// turn is in flight for that session.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
}
