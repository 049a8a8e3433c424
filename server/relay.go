package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/meetpointio/meetpoint/metrics"
)

// ErrRelayClosed is returned by Accept once Shutdown has started.
var ErrRelayClosed = errors.New("relay is shut down")

// Relay is the rendezvous core. Transport listeners resolve every incoming
// connection into a (role, session id, connection) triple and submit it here;
// everything after that, pairing, forwarding and cascading teardown, happens
// inside the sessions owned by the registry.
type Relay struct {
	metrics *metrics.AppMetrics
	store   *Store

	closed  bool
	closeMu sync.RWMutex
}

func NewRelay(meter metric.Meter) (*Relay, error) {
	m, err := metrics.NewAppMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("creating app metrics: %w", err)
	}

	store := NewStore(m)
	if err := m.RegisterSessionGauges(store.Stats); err != nil {
		return nil, fmt.Errorf("registering session gauges: %w", err)
	}

	return &Relay{
		metrics: m,
		store:   store,
	}, nil
}

// Accept submits an incoming connection. On failure the connection is left
// open and untouched so the transport can reject it with a proper close
// reason.
func (r *Relay) Accept(role Role, sessionID string, conn Conn) (Outcome, error) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return 0, ErrRelayClosed
	}

	outcome, err := r.store.Register(sessionID, role, conn)
	if err != nil {
		log.Infof("rejected %s registration for session %q from %s: %s", role, sessionID, conn.RemoteAddr(), err)
		return 0, err
	}
	return outcome, nil
}

// Store exposes the session registry, mainly for inspection.
func (r *Relay) Store() *Store {
	return r.store
}

// Shutdown stops accepting new registrations and force-closes all live
// sessions in parallel. It returns when every session finished its teardown
// or the context expired.
func (r *Relay) Shutdown(ctx context.Context) {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	sessions := r.store.Sessions()
	log.Infof("closing %d session(s)", len(sessions))

	wg := sync.WaitGroup{}
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(sess)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warnf("timed out waiting for sessions to close: %s", ctx.Err())
	}
}
