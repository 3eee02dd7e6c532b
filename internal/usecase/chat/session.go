package chat

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/paperqa/paperqa/internal/domain"
)

// Session holds one user's conversation history. Callers must hold the
// session lock while reading or mutating the history so concurrent
// requests for the same user serialize into clean turns.
type Session struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

// Lock acquires the session for a turn.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Empty reports whether the session has no history yet.
func (s *Session) Empty() bool { return len(s.messages) == 0 }

// Append adds a message to the history.
func (s *Session) Append(role, content string) {
	s.messages = append(s.messages, domain.ChatMessage{Role: role, Content: content})
}

// Truncate drops history back to n messages.
func (s *Session) Truncate(n int) {
	if n >= 0 && n < len(s.messages) {
		s.messages = s.messages[:n]
	}
}

// Len returns the number of stored messages.
func (s *Session) Len() int { return len(s.messages) }

// Messages returns a copy of the history.
func (s *Session) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Manager keeps one session per user id, expiring idle sessions. An
// evicted or expired session simply starts over on the next request.
type Manager struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
}

// NewManager creates a session manager holding at most capacity
// sessions, each dropped after ttl of inactivity.
func NewManager(capacity int, ttl time.Duration) *Manager {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Manager{
		sessions: expirable.NewLRU[string, *Session](capacity, nil, ttl),
	}
}

// Get returns the session for userID, creating it on first use.
func (m *Manager) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(userID); ok {
		return s
	}
	s := &Session{}
	m.sessions.Add(userID, s)
	return s
}
