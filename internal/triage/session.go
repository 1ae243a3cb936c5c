package triage

import (
	"encoding/json"
	"sync"
)

// session is the in-memory interview state for one patient. All fields
// are guarded by mu; a session is never persisted.
type session struct {
	mu sync.Mutex

	patientID      string
	context        json.RawMessage
	history        []Turn
	assistantTurns int
	state          State
}

// sessionStore maps patient ids to live sessions. The map lock is only held
// for lookups; transitions are serialized by the per-session lock.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

// acquire returns the locked session for id, creating it with ctx on miss.
// The bool reports whether this call made the session. The caller must
// unlock the session.
func (s *sessionStore) acquire(id string, ctx json.RawMessage) (*session, bool) {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[id]
		if !ok {
			sess = &session{
				patientID: id,
				context:   cloneRaw(ctx),
				state:     StateAwaitingAnswer,
			}
			s.sessions[id] = sess
		}
		s.mu.Unlock()

		sess.mu.Lock()
		if sess.state == StateTerminated {
			// lost a race with termination; the next lookup starts fresh
			sess.mu.Unlock()
			continue
		}
		return sess, !ok
	}
}

// terminate marks sess terminated and drops it from the map. Must be called
// with sess.mu held.
func (s *sessionStore) terminate(sess *session) {
	sess.state = StateTerminated

	s.mu.Lock()
	if cur, ok := s.sessions[sess.patientID]; ok && cur == sess {
		delete(s.sessions, sess.patientID)
	}
	s.mu.Unlock()
}

// len returns the number of live sessions.
func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
