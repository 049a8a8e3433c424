package server

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meetpointio/meetpoint/metrics"
)

type sessionState int

const (
	stateHostWaiting sessionState = iota
	statePaired
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateHostWaiting:
		return "host-waiting"
	case statePaired:
		return "paired"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session pairs one host connection with one client connection under a shared
// session identifier and owns the two relay loops between them. The store is
// the only creator of sessions; the session itself is the only authority that
// closes its connections and removes itself from the store.
type Session struct {
	id      string
	log     *log.Entry
	store   *Store
	metrics *metrics.AppMetrics

	mu     sync.Mutex
	state  sessionState
	host   Conn
	client Conn

	// paired is closed when the client attaches. The host loop parks a
	// message received before pairing on it instead of buffering.
	paired chan struct{}
	// done is closed on teardown and releases a host loop parked on paired.
	done chan struct{}

	startedAt time.Time
}

func newSession(id string, host Conn, store *Store, m *metrics.AppMetrics) *Session {
	return &Session{
		id:        id,
		log:       log.WithField("session_id", id),
		store:     store,
		metrics:   m,
		state:     stateHostWaiting,
		host:      host,
		paired:    make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

// start launches the host side relay loop. Until a client attaches the loop
// doubles as the waiting host watchdog: a receive failure tears the session
// down so the identifier becomes free again.
func (s *Session) start() {
	s.metrics.SessionOpened()
	go s.hostLoop()
}

func (s *Session) ID() string {
	return s.id
}

// attach completes the pairing with a client connection or rejects the
// registration based on the current state. All state transitions are
// serialized on the session mutex, never on the store lock.
func (s *Session) attach(role Role, conn Conn) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateHostWaiting:
		if role == RoleHost {
			return 0, ErrSessionAlreadyWaiting
		}
		s.client = conn
		s.state = statePaired
		close(s.paired)
		go s.clientLoop()
		s.log.Infof("session paired, client connected from: %s", conn.RemoteAddr())
		s.metrics.SessionPaired()
		return OutcomePaired, nil
	default:
		return 0, ErrSessionBusy
	}
}

func (s *Session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// hostLoop forwards messages from the host to the client. It applies the send
// of a message before the next receive, so a slow client throttles the host
// side instead of growing a buffer.
func (s *Session) hostLoop() {
	var err error
	defer func() {
		s.terminated(RoleHost, err)
	}()

	for {
		var msg []byte
		msg, err = s.host.Receive()
		if err != nil {
			return
		}

		// a message sent before pairing waits here for the client
		select {
		case <-s.paired:
		case <-s.done:
			return
		}

		if err = s.client.Send(msg); err != nil {
			return
		}
		s.metrics.TransferToClient(len(msg))
	}
}

// clientLoop forwards messages from the client to the host. It only exists
// once the session is paired.
func (s *Session) clientLoop() {
	var err error
	defer func() {
		s.terminated(RoleClient, err)
	}()

	for {
		var msg []byte
		msg, err = s.client.Receive()
		if err != nil {
			return
		}

		if err = s.host.Send(msg); err != nil {
			return
		}
		s.metrics.TransferToHost(len(msg))
	}
}

// terminated is the supervisor entry point for a finished relay loop. The
// first signal tears the session down; later signals find the session already
// closing and return.
func (s *Session) terminated(side Role, err error) {
	if err != nil && err != io.EOF {
		s.log.Debugf("%s side terminated: %s", side, err)
	}
	s.teardown(string(side))
}

// Close force-closes the session regardless of its state. Safe to call any
// number of times and on an already closed session.
func (s *Session) Close() {
	s.teardown("shutdown")
}

func (s *Session) teardown(initiator string) {
	s.mu.Lock()
	switch s.state {
	case stateClosing, stateClosed:
		s.mu.Unlock()
		return
	case stateHostWaiting:
		s.state = stateClosed
		close(s.done)
		host := s.host
		s.mu.Unlock()

		_ = host.Close()
		s.store.remove(s)
		s.log.Infof("session closed before a client arrived (%s)", initiator)
		s.metrics.SessionClosed(time.Since(s.startedAt))
		return
	default: // statePaired
		s.state = stateClosing
		close(s.done)
		host, client := s.host, s.client
		s.mu.Unlock()

		// cascade: closing both ends unblocks the surviving relay loop
		_ = host.Close()
		_ = client.Close()

		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()

		s.store.remove(s)
		s.log.Infof("session closed (%s side terminated first)", initiator)
		s.metrics.SessionClosed(time.Since(s.startedAt))
	}
}
