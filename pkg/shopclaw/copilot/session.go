// Package copilot – session.go keeps per-customer conversation history in
// memory with expire-after-access eviction.
package copilot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default session limits.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultMaxTurns   = 200
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCall is set on assistant turns that request a tool.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolCallID and ToolName are set on tool result turns.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	At time.Time `json:"at"`
}

// Session is a snapshot of a conversation.
type Session struct {
	ID           string    `json:"id"`
	Turns        []Turn    `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionStore holds conversation history.
type SessionStore interface {
	// GetOrCreate returns the id and a copy of the history. An empty id
	// creates a new session with a generated id.
	GetOrCreate(id string) (string, []Turn)

	// Append adds turns to an existing session.
	Append(id string, turns ...Turn) error

	// History returns a copy of the session's turns.
	History(id string) ([]Turn, error)

	// Evict removes a session. It reports whether one was removed.
	Evict(id string) bool

	// Lock serializes processing for one session. The returned function
	// releases the lock.
	Lock(ctx context.Context, id string) (func(), error)
}

type memSession struct {
	// token is a one-slot semaphore; holding it means owning the session.
	token chan struct{}

	// Guarded by MemorySessionStore.mu.
	turns        []Turn
	createdAt    time.Time
	lastActivity time.Time
	evicted      bool
}

func newMemSession(now time.Time) *memSession {
	return &memSession{
		token:        make(chan struct{}, 1),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *memSession) tryLock() bool {
	select {
	case s.token <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *memSession) unlock() { <-s.token }

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	ttl      time.Duration
	maxTurns int
	now      func() time.Time
}

// NewMemorySessionStore creates a store. Non-positive values use the
// defaults.
func NewMemorySessionStore(ttl time.Duration, maxTurns int) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemorySessionStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// GetOrCreate implements SessionStore. An expired session that nobody is
// processing is replaced by a fresh one.
func (m *MemorySessionStore) GetOrCreate(id string) (string, []Turn) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[id]
	if ok && m.expired(s, now) && s.tryLock() {
		m.remove(id, s)
		s.unlock()
		ok = false
	}
	if !ok {
		s = newMemSession(now)
		m.sessions[id] = s
		return id, nil
	}
	s.lastActivity = now
	return id, cloneTurns(s.turns)
}

// Append implements SessionStore.
func (m *MemorySessionStore) Append(id string, turns ...Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	now := m.now()
	for _, t := range turns {
		if t.At.IsZero() {
			t.At = now
		}
		s.turns = append(s.turns, t)
	}
	s.turns = trimTurns(s.turns, m.maxTurns)
	s.lastActivity = now
	return nil
}

// History implements SessionStore.
func (m *MemorySessionStore) History(id string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastActivity = m.now()
	return cloneTurns(s.turns), nil
}

// Snapshot returns the full session, or false if unknown.
func (m *MemorySessionStore) Snapshot(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return Session{
		ID:           id,
		Turns:        cloneTurns(s.turns),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}, true
}

// Evict implements SessionStore. The session is removed even while a
// message is being processed; that run's later appends fail with
// ErrSessionNotFound.
func (m *MemorySessionStore) Evict(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	m.remove(id, s)
	return true
}

// Lock implements SessionStore. Sessions are created on demand. A waiter
// that wakes up holding an evicted session re-resolves the live one.
func (m *MemorySessionStore) Lock(ctx context.Context, id string) (func(), error) {
	for {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if !ok {
			s = newMemSession(m.now())
			m.sessions[id] = s
		}
		m.mu.Unlock()

		select {
		case s.token <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.Lock()
		evicted := s.evicted
		if !evicted {
			s.lastActivity = m.now()
		}
		m.mu.Unlock()

		if evicted {
			s.unlock()
			continue
		}

		var once sync.Once
		return func() { once.Do(s.unlock) }, nil
	}
}

// Count returns the number of live sessions.
func (m *MemorySessionStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Prune evicts sessions idle longer than the TTL. Sessions whose lock is
// held are skipped. It returns the number evicted.
func (m *MemorySessionStore) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if !m.expired(s, now) || !s.tryLock() {
			continue
		}
		m.remove(id, s)
		s.unlock()
		n++
	}
	return n
}

func (m *MemorySessionStore) expired(s *memSession, now time.Time) bool {
	return now.Sub(s.lastActivity) > m.ttl
}

// remove must be called with m.mu held.
func (m *MemorySessionStore) remove(id string, s *memSession) {
	s.evicted = true
	delete(m.sessions, id)
}

// trimTurns keeps at most limit turns. The retained history always starts at
// a user turn so a tool call is never separated from its result.
func trimTurns(turns []Turn, limit int) []Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	start := len(turns) - limit
	for i := start; i < len(turns); i++ {
		if turns[i].Role == RoleUser {
			return append([]Turn(nil), turns[i:]...)
		}
	}
	// No user turn inside the window: keep from the last one before it.
	for i := start - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return append([]Turn(nil), turns[i:]...)
		}
	}
	return turns
}

func cloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	return append([]Turn(nil), turns...)
}
