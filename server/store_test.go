package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/meetpointio/meetpoint/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	m, err := metrics.NewAppMetrics(otel.Meter(""))
	require.NoError(t, err)
	return NewStore(m)
}

func TestStore_Register_HostCreatesSession(t *testing.T) {
	s := newTestStore(t)

	outcome, err := s.Register("session-123", RoleHost, newTestConn())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, outcome)

	_, ok := s.Session("session-123")
	assert.True(t, ok, "session must exist after host registration")

	_, ok = s.Session("session-999")
	assert.False(t, ok, "unrelated identifier must not have a session")
}

func TestStore_Register_ClientWithoutHost(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Register("session-123", RoleClient, newTestConn())
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, ok := s.Session("session-123")
	assert.False(t, ok, "a rejected client must not create a session")
}

func TestStore_Register_DuplicateHost(t *testing.T) {
	s := newTestStore(t)

	first := newTestConn()
	_, err := s.Register("session-123", RoleHost, first)
	require.NoError(t, err)
	sess, ok := s.Session("session-123")
	require.True(t, ok)

	_, err = s.Register("session-123", RoleHost, newTestConn())
	require.ErrorIs(t, err, ErrSessionAlreadyWaiting)

	// the first host stays registered and untouched
	current, ok := s.Session("session-123")
	require.True(t, ok)
	assert.Same(t, sess, current)
	assert.False(t, first.isClosed())
}

func TestStore_Register_PairedSessionIsBusy(t *testing.T) {
	s := newTestStore(t)

	host := newTestConn()
	clientConn := newTestConn()

	_, err := s.Register("session-123", RoleHost, host)
	require.NoError(t, err)
	outcome, err := s.Register("session-123", RoleClient, clientConn)
	require.NoError(t, err)
	require.Equal(t, OutcomePaired, outcome)

	_, err = s.Register("session-123", RoleClient, newTestConn())
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = s.Register("session-123", RoleHost, newTestConn())
	require.ErrorIs(t, err, ErrSessionBusy)

	// the existing pairing is unaffected
	clientConn.push("top")
	host.expect(t, "top")
}

func TestStore_Register_InvalidInput(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Register("", RoleHost, newTestConn())
	require.ErrorIs(t, err, ErrEmptySessionID)

	_, err = s.Register("session-123", Role("spectator"), newTestConn())
	require.ErrorIs(t, err, ErrInvalidRole)

	_, ok := s.Session("session-123")
	assert.False(t, ok)
}

func TestStore_IndependentSessions(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := s.Register(id, RoleHost, newTestConn())
		require.NoError(t, err)
	}

	waiting, paired := s.Stats()
	assert.Equal(t, int64(3), waiting)
	assert.Equal(t, int64(0), paired)

	_, err := s.Register("beta", RoleClient, newTestConn())
	require.NoError(t, err)

	waiting, paired = s.Stats()
	assert.Equal(t, int64(2), waiting)
	assert.Equal(t, int64(1), paired)
}
