package session

import (
	"strings"
	"sync"
)

// Role attributes a transcript turn to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultID is used when the caller supplies no session id.
const DefaultID = "default"

// Turn is one utterance in a session transcript. Immutable once appended.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Store holds per-session bounded transcripts. State is volatile and lives for
// the lifetime of the process; a restart drops all sessions.
type Store struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string][]Turn

	lockMu    sync.Mutex
	turnLocks map[string]*sync.Mutex
}

// NewStore creates a store keeping at most limit turns per session.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 10
	}
	return &Store{
		limit:     limit,
		sessions:  make(map[string][]Turn),
		turnLocks: make(map[string]*sync.Mutex),
	}
}

// Normalize maps an absent session id to the fixed default key.
func Normalize(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return DefaultID
	}
	return sessionID
}

// Transcript returns a copy of the session transcript in chronological order.
// Unknown sessions yield an empty transcript and create no state.
func (s *Store) Transcript(sessionID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := s.sessions[Normalize(sessionID)]
	out := make([]Turn, len(transcript))
	copy(out, transcript)
	return out
}

// Append creates the session if absent, appends the turn, then trims to the
// most recent turns. Turns with empty text are never recorded.
func (s *Store) Append(sessionID string, turn Turn) {
	if strings.TrimSpace(turn.Text) == "" {
		return
	}
	key := Normalize(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := append(s.sessions[key], turn)
	if len(transcript) > s.limit {
		// FIFO eviction, purely count-based.
		transcript = transcript[len(transcript)-s.limit:]
	}
	s.sessions[key] = transcript
}

// Clear removes the session entirely. Clearing an unknown session is a no-op.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, Normalize(sessionID))
}

// Count reports the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Limit reports the per-session transcript bound.
func (s *Store) Limit() int { return s.limit }

// LockTurn serializes complete conversational turns for one session id, so two
// concurrent requests on the same session cannot interleave their history
// updates. The returned function releases the lock.
func (s *Store) LockTurn(sessionID string) func() {
	key := Normalize(sessionID)

	s.lockMu.Lock()
	lock, ok := s.turnLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.turnLocks[key] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
