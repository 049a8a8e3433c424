package server

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

// AcceptFunc submits a resolved connection triple to the relay core.
type AcceptFunc func(role Role, sessionID string, conn Conn) (Outcome, error)

// Listener is a transport endpoint that resolves incoming connections into
// (role, session id, connection) triples and feeds them to an AcceptFunc.
// Listen blocks until the listener is closed.
type Listener interface {
	Listen(accept AcceptFunc) error
	Close() error
}

// Server runs a Relay behind one or more transport listeners.
type Server struct {
	relay     *Relay
	listeners []Listener
}

func NewServer(meter metric.Meter) (*Server, error) {
	relay, err := NewRelay(meter)
	if err != nil {
		return nil, err
	}
	return &Server{relay: relay}, nil
}

// Relay returns the rendezvous core the server accepts into.
func (s *Server) Relay() *Relay {
	return s.relay
}

// Listen serves the relay on all given listeners and blocks until they have
// all stopped.
func (s *Server) Listen(listeners ...Listener) error {
	s.listeners = listeners

	wg := sync.WaitGroup{}
	errChan := make(chan error, len(listeners))
	for _, l := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			if err := l.Listen(s.relay.Accept); err != nil {
				log.Errorf("listener failed: %s", err)
				errChan <- err
			}
		}(l)
	}
	wg.Wait()

	close(errChan)
	var err *multierror.Error
	for e := range errChan {
		err = multierror.Append(err, e)
	}
	return err.ErrorOrNil()
}

// Shutdown stops accepting new connections and closes all live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var err *multierror.Error

	// stop serving new connections first
	for _, l := range s.listeners {
		if lErr := l.Close(); lErr != nil {
			err = multierror.Append(err, lErr)
		}
	}

	s.relay.Shutdown(ctx)
	return err.ErrorOrNil()
}
