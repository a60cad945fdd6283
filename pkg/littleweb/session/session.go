// Package session implements the in-memory session collaborator
// named by spec.md §6: create, get, save and remove, with a
// configurable expiry swept by a background goroutine.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session carries a unique id, an invalidated flag and a keyed mapping
// of name to opaque value (spec.md §6).
type Session struct {
	ID          string
	Invalidated bool

	mu       sync.RWMutex
	values   map[string]interface{}
	expireAt time.Time
}

// Set stores value under name.
func (s *Session) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = map[string]interface{}{}
	}
	s.values[name] = value
}

// Value returns the value stored under name, if any.
func (s *Session) Value(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Invalidate flags the session for removal on the next response
// finalization (spec.md §4.5).
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invalidated = true
}

// Empty reports whether the session carries no stored values, used to
// distinguish a freshly created, never-populated session from one
// holding state (spec.md §4.5 "empty-and-new").
func (s *Session) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values) == 0
}

// Manager is the four-operation session collaborator: Create, Get,
// Save, Remove, each against a single mutex-guarded map (spec.md §6).
type Manager struct {
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
}

// NewManager constructs a Manager whose sessions expire after timeout
// of inactivity, and starts its sweep goroutine.
func NewManager(timeout time.Duration) *Manager {
	m := &Manager{
		timeout:  timeout,
		sessions: map[string]*Session{},
		stop:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Create allocates a new session with a fresh id and the configured timeout.
func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.NewString(), expireAt: time.Now().Add(m.timeout)}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id, or false if it does not exist or
// has expired.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(s.expireAt) {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}

// Save refreshes a session's expiry and persists it.
func (m *Manager) Save(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.expireAt = time.Now().Add(m.timeout)
	m.sessions[s.ID] = s
}

// Remove deletes a session by id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Timeout returns the configured session timeout. The session cookie
// http11.Writer sets carries no Max-Age or Expires derived from it.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Close stops the sweep goroutine.
func (m *Manager) Close() { close(m.stop) }

func (m *Manager) sweep() {
	interval := m.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for id, s := range m.sessions {
				if now.After(s.expireAt) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
