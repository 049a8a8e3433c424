package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the relay's own instruments. Counters track session
// lifecycle and transferred payload bytes per direction; the observable
// gauges report how many sessions are currently waiting for a client and how
// many are actively paired.
type AppMetrics struct {
	metric.Meter

	sessions        metric.Int64UpDownCounter
	sessionsPaired  metric.Int64Counter
	bytesToClient   metric.Int64Counter
	bytesToHost     metric.Int64Counter
	sessionDuration metric.Float64Histogram
}

func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	sessions, err := meter.Int64UpDownCounter("relay_sessions")
	if err != nil {
		return nil, err
	}

	sessionsPaired, err := meter.Int64Counter("relay_sessions_paired_total")
	if err != nil {
		return nil, err
	}

	bytesToClient, err := meter.Int64Counter("relay_transfer_bytes_host_to_client")
	if err != nil {
		return nil, err
	}

	bytesToHost, err := meter.Int64Counter("relay_transfer_bytes_client_to_host")
	if err != nil {
		return nil, err
	}

	sessionDuration, err := meter.Float64Histogram("relay_session_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &AppMetrics{
		Meter:           meter,
		sessions:        sessions,
		sessionsPaired:  sessionsPaired,
		bytesToClient:   bytesToClient,
		bytesToHost:     bytesToHost,
		sessionDuration: sessionDuration,
	}, nil
}

// RegisterSessionGauges wires the waiting/paired gauges to the given snapshot
// function, typically the registry's Stats.
func (m *AppMetrics) RegisterSessionGauges(stats func() (waiting, paired int64)) error {
	sessionsWaiting, err := m.Int64ObservableGauge("relay_sessions_waiting")
	if err != nil {
		return err
	}

	sessionsActive, err := m.Int64ObservableGauge("relay_sessions_active")
	if err != nil {
		return err
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			waiting, paired := stats()
			o.ObserveInt64(sessionsWaiting, waiting)
			o.ObserveInt64(sessionsActive, paired)
			return nil
		},
		sessionsWaiting, sessionsActive,
	)
	return err
}

// SessionOpened increments the number of live sessions.
func (m *AppMetrics) SessionOpened() {
	m.sessions.Add(context.Background(), 1)
}

// SessionClosed decrements the number of live sessions and records how long
// the session existed.
func (m *AppMetrics) SessionClosed(lifetime time.Duration) {
	m.sessions.Add(context.Background(), -1)
	m.sessionDuration.Record(context.Background(), lifetime.Seconds())
}

// SessionPaired counts a completed pairing.
func (m *AppMetrics) SessionPaired() {
	m.sessionsPaired.Add(context.Background(), 1)
}

// TransferToClient counts payload bytes forwarded host to client.
func (m *AppMetrics) TransferToClient(n int) {
	m.bytesToClient.Add(context.Background(), int64(n))
}

// TransferToHost counts payload bytes forwarded client to host.
func (m *AppMetrics) TransferToHost(n int) {
	m.bytesToHost.Add(context.Background(), int64(n))
}
