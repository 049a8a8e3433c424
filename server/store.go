package server

import (
	"sync"

	"github.com/meetpointio/meetpoint/metrics"
)

// Store is the process wide session registry. It is the only place pairing
// decisions are made. The store lock guards the map itself and is held only
// for lookup and insert; everything that touches a single session is
// serialized on that session's own mutex, so registrations for different
// identifiers never contend.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session // key is the caller supplied session identifier

	metrics *metrics.AppMetrics
}

func NewStore(m *metrics.AppMetrics) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		metrics:  m,
	}
}

// Register submits a connection with its declared role and session identifier.
// A host creates the session and waits; a client completes the pairing. The
// connection stays untouched on failure, rejecting it is the caller's job.
func (s *Store) Register(sessionID string, role Role, conn Conn) (Outcome, error) {
	if sessionID == "" {
		return 0, ErrEmptySessionID
	}
	if !role.Valid() {
		return 0, ErrInvalidRole
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		if role == RoleClient {
			s.mu.Unlock()
			return 0, ErrSessionNotFound
		}
		sess = newSession(sessionID, conn, s, s.metrics)
		s.sessions[sessionID] = sess
		s.mu.Unlock()

		sess.start()
		sess.log.Infof("host connected from: %s, waiting for client", conn.RemoteAddr())
		return OutcomeWaiting, nil
	}
	s.mu.Unlock()

	return sess.attach(role, conn)
}

// Session looks up a live session by its identifier.
func (s *Store) Session(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Sessions returns a snapshot of all live sessions.
func (s *Store) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Stats counts waiting and paired sessions, used by the observable gauges.
func (s *Store) Stats() (waiting, paired int64) {
	for _, sess := range s.Sessions() {
		switch sess.currentState() {
		case stateHostWaiting:
			waiting++
		case statePaired:
			paired++
		}
	}
	return waiting, paired
}

// remove deletes a session from the registry. The removal is keyed by entry
// identity: if the identifier has already been taken over by a fresh session,
// the stale removal is a no-op.
func (s *Store) remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[sess.id]; ok && current == sess {
		delete(s.sessions, sess.id)
	}
}
