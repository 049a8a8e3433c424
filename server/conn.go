package server

import (
	"errors"
	"net"
)

// Conn is the message oriented connection the relay core consumes. The
// transport listeners (ws, quic) adapt their streams to this interface before
// handing them to the Relay; the core never touches the underlying transport.
//
// Close must unblock any in-flight Receive or Send on the same connection.
type Conn interface {
	// Receive blocks until the peer sends a message, the peer disconnects or
	// the connection is closed. A graceful peer close is reported as io.EOF.
	Receive() ([]byte, error)
	// Send writes a single message. Messages are delivered unmodified and in
	// the order they were sent.
	Send(msg []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Role assigns the registration semantics of a connection: a host creates the
// session and waits, a client completes the pairing.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleClient
}

// Outcome is the result of a successful registration.
type Outcome int

const (
	// OutcomeWaiting means a session was created and the host is parked until
	// a client arrives.
	OutcomeWaiting Outcome = iota
	// OutcomePaired means the registration completed a pairing and the relay
	// loops are running.
	OutcomePaired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWaiting:
		return "waiting"
	case OutcomePaired:
		return "paired"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionNotFound is returned to a client registering an identifier
	// with no waiting host. Clients never create sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionAlreadyWaiting is returned to a second host registering an
	// identifier that already holds a waiting host. The first host is kept.
	ErrSessionAlreadyWaiting = errors.New("session already has a waiting host")
	// ErrSessionBusy is returned for any registration against a session that
	// is already paired or tearing down.
	ErrSessionBusy = errors.New("session busy")
	// ErrEmptySessionID is returned when the caller submits an empty
	// session identifier.
	ErrEmptySessionID = errors.New("empty session id")
	// ErrInvalidRole is returned when the caller submits a role other than
	// host or client.
	ErrInvalidRole = errors.New("invalid role")
)
