package session

import (
	"slices"
	"sync"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// Session is the mutable conversation state of one session id. mu is held
// for the whole duration of a chat call, including streaming.
type Session struct {
	ID string

	mu       sync.Mutex
	history  []ports.Turn
	summary  string
	model    string
	hydrated bool
}

// State is a point-in-time copy of a session.
type State struct {
	ID      string       `json:"id"`
	History []ports.Turn `json:"history"`
	Summary string       `json:"summary,omitempty"`
	Model   string       `json:"model,omitempty"`
}

func (s *Session) state() State {
	return State{ID: s.ID, History: slices.Clone(s.history), Summary: s.summary, Model: s.model}
}

// Store is the concurrent session map. Sessions are created on first use and
// live as long as the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, if it exists.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// GetOrCreate returns the session for id, creating it when missing.
func (s *Store) GetOrCreate(id string) *Session {
	if sess, ok := s.Get(id); ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &Session{ID: id}
	s.sessions[id] = sess
	return sess
}

// IDs lists the known session ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
