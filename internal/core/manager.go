package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session manager defaults.
const (
	DefaultSessionTTL      = 2 * time.Hour
	DefaultMaxSessions     = 500
	DefaultCleanupInterval = 5 * time.Minute
)

// SessionManager owns every live session, keyed by id. Sessions idle for
// longer than the TTL are removed by Sweep.
type SessionManager struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager. Non-positive arguments use defaults.
func NewSessionManager(ttl time.Duration, max int) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &SessionManager{
		ttl:      ttl,
		max:      max,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the live session with the given id and records activity.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(s.LastSeen()) > m.ttl {
		return nil, ErrSessionNotFound
	}
	s.Touch(now)
	return s, nil
}

// Create starts a new session with a random id. When the limit is reached
// expired sessions are swept first; ErrTooManySessions is returned if that
// frees nothing.
func (m *SessionManager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.max {
		m.sweepLocked()
		if len(m.sessions) >= m.max {
			return nil, ErrTooManySessions
		}
	}

	s := NewSession(uuid.NewString())
	s.Touch(m.now())
	m.sessions[s.ID()] = s
	return s, nil
}

// GetOrCreate returns the session for id, or a new one when id is empty,
// unknown or expired. created reports whether a new session was made.
func (m *SessionManager) GetOrCreate(id string) (s *Session, created bool, err error) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false, nil
		}
	}
	s, err = m.Create()
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Delete removes a session.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of tracked sessions, expired or not.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *SessionManager) sweepLocked() int {
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired sessions every interval until ctx is done.
func (m *SessionManager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("session janitor started", "interval", interval, "ttl", m.ttl)
		for {
			select {
			case <-ctx.Done():
				slog.Info("session janitor stopped")
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					slog.Debug("expired sessions removed", "count", n, "remaining", m.Count())
				}
			}
		}
	}()
}
