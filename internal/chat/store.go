package chat

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// DefaultThread is used when the caller does not name a thread.
const DefaultThread = "default"

// MaxThreadsPerProfile caps the sessions one profile can hold open.
const MaxThreadsPerProfile = 20

// ErrTooManyThreads is returned when opening a thread would exceed
// MaxThreadsPerProfile.
var ErrTooManyThreads = errors.New("too many open threads, clear one first")

type sessionKey struct {
	profileID uuid.UUID
	threadID  string
}

// Session is the in-memory conversation of one thread. Turns are kept in
// submission order and are never persisted.
type Session struct {
	// turnMu serializes model calls so turns cannot interleave.
	turnMu sync.Mutex

	mu    sync.Mutex
	model string
	turns []models.Turn
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) setModel(m string) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// Turns returns a copy of the accumulated turns.
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) append(turns ...models.Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
	return len(s.turns)
}

// Store holds sessions keyed by (profile, thread).
type Store struct {
	mu           sync.Mutex
	sessions     map[sessionKey]*Session
	open         map[uuid.UUID]int
	defaultModel string
}

func NewStore(defaultModel string) *Store {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return &Store{
		sessions:     make(map[sessionKey]*Session),
		open:         make(map[uuid.UUID]int),
		defaultModel: defaultModel,
	}
}

// DefaultModel is the model new sessions start with.
func (s *Store) DefaultModel() string { return s.defaultModel }

// Get returns the session for (profileID, threadID), creating it if needed.
// Creation fails with ErrTooManyThreads once the profile holds
// MaxThreadsPerProfile sessions.
func (s *Store) Get(profileID uuid.UUID, threadID string) (*Session, error) {
	if threadID == "" {
		threadID = DefaultThread
	}
	k := sessionKey{profileID: profileID, threadID: threadID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[k]; ok {
		return sess, nil
	}
	if s.open[profileID] >= MaxThreadsPerProfile {
		return nil, ErrTooManyThreads
	}
	sess := &Session{model: s.defaultModel}
	s.sessions[k] = sess
	s.open[profileID]++
	return sess, nil
}

// Lookup returns an existing session without creating one.
func (s *Store) Lookup(profileID uuid.UUID, threadID string) (*Session, bool) {
	if threadID == "" {
		threadID = DefaultThread
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey{profileID: profileID, threadID: threadID}]
	return sess, ok
}

// Clear drops one thread.
func (s *Store) Clear(profileID uuid.UUID, threadID string) {
	if threadID == "" {
		threadID = DefaultThread
	}
	k := sessionKey{profileID: profileID, threadID: threadID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[k]; !ok {
		return
	}
	delete(s.sessions, k)
	s.open[profileID]--
	if s.open[profileID] <= 0 {
		delete(s.open, profileID)
	}
}

// ClearAll drops every thread of a profile and returns how many were removed.
func (s *Store) ClearAll(profileID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.sessions {
		if k.profileID == profileID {
			delete(s.sessions, k)
			n++
		}
	}
	delete(s.open, profileID)
	return n
}

// Threads lists the thread ids a profile has open.
func (s *Store) Threads(profileID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.sessions {
		if k.profileID == profileID {
			out = append(out, k.threadID)
		}
	}
	return out
}
