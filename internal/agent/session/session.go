// Package session keeps the bounded conversation history used by the query
// orchestrator. History lives in process memory only.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/aatumaykin/stockpilot/internal/llm"
)

// DefaultMaxHistoryLength is the number of exchanges kept per conversation.
const DefaultMaxHistoryLength = 10

// ErrNotFound is returned for conversations that were never started or
// already cleared.
var ErrNotFound = errors.New("conversation not found")

// Turn is one message of a conversation.
type Turn struct {
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the history of one conversation.
type Session struct {
	ID        string
	mu        sync.Mutex // serializes reads and appends for this id
	turns     []Turn
	updatedAt time.Time
}

// Store manages conversations keyed by id. Different ids never contend on
// the same lock once their session exists.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
	now      func() time.Time
}

// NewStore creates a store keeping at most maxHistoryLength exchanges
// (2×maxHistoryLength turns) per conversation.
func NewStore(maxHistoryLength int) *Store {
	if maxHistoryLength <= 0 {
		maxHistoryLength = DefaultMaxHistoryLength
	}
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: 2 * maxHistoryLength,
		now:      time.Now,
	}
}

// MaxTurns returns the per-conversation turn cap.
func (s *Store) MaxTurns() int { return s.maxTurns }

// GetOrCreate retrieves an existing session or creates a new one.
// Returns the session and a boolean indicating whether it was newly created.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = &Session{ID: id}
	s.sessions[id] = sess
	return sess, true
}

// Exists проверяет существует ли сессия
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// AppendExchange records a user query and the assistant answer, dropping
// the oldest pair once the cap is exceeded.
func (s *Store) AppendExchange(id, query, answer string) {
	sess, _ := s.GetOrCreate(id)
	now := s.now()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns,
		Turn{Role: llm.RoleUser, Content: query, Timestamp: now},
		Turn{Role: llm.RoleAssistant, Content: answer, Timestamp: now},
	)
	if over := len(sess.turns) - s.maxTurns; over > 0 {
		// Удаляем самую старую пару целиком
		if over%2 != 0 {
			over++
		}
		sess.turns = append([]Turn(nil), sess.turns[over:]...)
	}
	sess.updatedAt = now
}

// History returns a copy of the turns of id in chronological order.
func (s *Store) History(id string) ([]Turn, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Messages returns the history of id as model messages. Unknown ids yield
// an empty history.
func (s *Store) Messages(id string) []llm.Message {
	turns, err := s.History(id)
	if err != nil {
		return nil
	}
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.TextMessage(t.Role, t.Content))
	}
	return msgs
}

// Clear removes the conversation id.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// ClearAll removes every conversation and returns how many were dropped.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*Session)
	return n
}

// ClearIdle removes conversations not updated within maxAge.
func (s *Store) ClearIdle(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.updatedAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
