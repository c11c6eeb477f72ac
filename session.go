package botledger

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle model selection is remembered.
const DefaultSessionTTL = 24 * time.Hour

// SessionTracker remembers which model each user currently talks to.
// It is transient state: nothing here is persisted or survives a restart.
type SessionTracker struct {
	mu           sync.Mutex
	defaultModel string
	ttl          time.Duration
	users        map[string]*session
}

type session struct {
	model     string
	touchedAt time.Time
}

// NewSessionTracker creates a tracker. A ttl <= 0 means DefaultSessionTTL.
func NewSessionTracker(defaultModel string, ttl time.Duration) *SessionTracker {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTracker{
		defaultModel: defaultModel,
		ttl:          ttl,
		users:        make(map[string]*session),
	}
}

// Model returns the user's selected model, or the default model when none
// is selected or the selection expired.
func (s *SessionTracker) Model(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.users[userID]
	if !ok {
		return s.defaultModel
	}

	// Expired → forget.
	if time.Since(sess.touchedAt) >= s.ttl {
		delete(s.users, userID)
		return s.defaultModel
	}
	sess.touchedAt = time.Now()
	return sess.model
}

// SetModel records the user's model selection.
func (s *SessionTracker) SetModel(userID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = &session{model: model, touchedAt: time.Now()}
}

// Forget drops the user's selection.
func (s *SessionTracker) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, userID)
}

// Prune removes expired selections and returns how many were dropped.
func (s *SessionTracker) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	n := 0
	for id, sess := range s.users {
		if !sess.touchedAt.After(cutoff) {
			delete(s.users, id)
			n++
		}
	}
	return n
}
