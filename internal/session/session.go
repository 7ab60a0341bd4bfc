// Package session holds per-session conversation state. A Session is created
// when a user starts chatting and discarded when the session ends; nothing in
// here is global.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// History is the ordered list of questions asked in a session. Answers are
// not recorded. Entries are only ever appended.
type History struct {
	mu        sync.RWMutex
	questions []string
}

func (h *History) Append(question string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.questions = append(h.questions, question)
	return len(h.questions)
}

// Questions returns a copy of the recorded questions, oldest first.
func (h *History) Questions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.questions))
	copy(out, h.questions)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.questions)
}

type Session struct {
	ID        string
	CreatedAt time.Time
	History   History

	turn     sync.Mutex
	mu       sync.Mutex
	lastUsed time.Time
}

func New(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, lastUsed: now}
}

// Lock serializes turns; at most one turn runs per session.
func (s *Session) Lock()   { s.turn.Lock() }
func (s *Session) Unlock() { s.turn.Unlock() }

// busy reports whether a turn currently holds the session.
func (s *Session) busy() bool {
	if !s.turn.TryLock() {
		return true
	}
	s.turn.Unlock()
	return false
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Registry tracks live sessions for surfaces that host more than one user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	newID    func() string
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		sessions: map[string]*Session{},
		now:      now,
		newID:    func() string { return uuid.NewString() },
	}
}

func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := New(r.newID(), r.now())
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// End discards the session and its history.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep ends sessions idle for longer than maxIdle and returns how many were
// ended. A session with a turn in progress is never idle. maxIdle <= 0
// disables expiry.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	ended := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) && !s.busy() {
			delete(r.sessions, id)
			ended++
		}
	}
	return ended
}
