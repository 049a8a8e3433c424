package client

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/meetpointio/meetpoint/server"
	quiclistener "github.com/meetpointio/meetpoint/server/listener/quic"
	wslistener "github.com/meetpointio/meetpoint/server/listener/ws"
)

func startWSServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	srv, err := server.NewServer(otel.Meter(""))
	require.NoError(t, err)

	l := wslistener.NewListener("127.0.0.1:0")
	addr, err := l.Bind()
	require.NoError(t, err)

	go func() {
		_ = srv.Listen(l)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, "ws://" + addr.String()
}

func startQUICServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	srv, err := server.NewServer(otel.Meter(""))
	require.NoError(t, err)

	l := quiclistener.NewListener("127.0.0.1:0", nil)
	go func() {
		_ = srv.Listen(l)
	}()
	require.Eventually(t, func() bool {
		return l.Addr() != nil
	}, 5*time.Second, 10*time.Millisecond, "quic listener did not bind")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, "quic://" + l.Addr().String()
}

func receiveString(t *testing.T, conn server.Conn) string {
	t.Helper()

	type result struct {
		msg []byte
		err error
	}
	resChan := make(chan result, 1)
	go func() {
		msg, err := conn.Receive()
		resChan <- result{msg, err}
	}()

	select {
	case res := <-resChan:
		require.NoError(t, res.err)
		return string(res.msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a relayed message")
		return ""
	}
}

func testRelayRoundTrip(t *testing.T, srv *server.Server, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionID := NewSessionID()

	hostConn, err := Dial(ctx, url, server.RoleHost, sessionID)
	require.NoError(t, err)

	clientConn, err := Dial(ctx, url, server.RoleClient, sessionID)
	require.NoError(t, err)

	require.NoError(t, clientConn.Send([]byte("top")))
	assert.Equal(t, "top", receiveString(t, hostConn))

	require.NoError(t, hostConn.Send([]byte("<shell output>")))
	assert.Equal(t, "<shell output>", receiveString(t, clientConn))

	// disconnecting the client severs the host within bounded time
	require.NoError(t, clientConn.Close())
	_, err = hostConn.Receive()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		_, ok := srv.Relay().Store().Session(sessionID)
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "session must be removed after the cascade")

	// the identifier can be reused for a fresh session
	hostConn, err = Dial(ctx, url, server.RoleHost, sessionID)
	require.NoError(t, err)
	_, ok := srv.Relay().Store().Session(sessionID)
	assert.True(t, ok)
	require.NoError(t, hostConn.Close())
}

func TestRelayRoundTrip_WS(t *testing.T) {
	srv, url := startWSServer(t)
	testRelayRoundTrip(t, srv, url)
}

func TestRelayRoundTrip_QUIC(t *testing.T) {
	srv, url := startQUICServer(t)
	testRelayRoundTrip(t, srv, url)
}

func TestClientWithoutHost_WS(t *testing.T) {
	_, url := startWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// the handshake itself succeeds, the rejection arrives as a close
	conn, err := Dial(ctx, url, server.RoleClient, "no-such-session")
	require.NoError(t, err)

	_, err = conn.Receive()
	require.Error(t, err)

	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.StatusPolicyViolation, closeErr.Code)
}

func TestClientWithoutHost_QUIC(t *testing.T) {
	_, url := startQUICServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Dial(ctx, url, server.RoleClient, "no-such-session")
	require.ErrorIs(t, err, server.ErrSessionNotFound)
}

func TestDial_UnsupportedScheme(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://127.0.0.1:1", server.RoleHost, "session-123")
	require.Error(t, err)
}

func TestNewSessionID(t *testing.T) {
	assert.NotEmpty(t, NewSessionID())
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestGuard_ReregistersHost(t *testing.T) {
	srv, url := startWSServer(t)
	sessionID := NewSessionID()

	received := make(chan string, 8)
	serve := func(ctx context.Context, conn server.Conn) error {
		for {
			msg, err := conn.Receive()
			if err != nil {
				return err
			}
			received <- string(msg)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- NewGuard(url, sessionID, serve).Run(ctx)
	}()

	var firstSession *server.Session
	require.Eventually(t, func() bool {
		sess, ok := srv.Relay().Store().Session(sessionID)
		if ok {
			firstSession = sess
		}
		return ok
	}, 5*time.Second, 10*time.Millisecond, "guard must register the host")

	clientConn, err := Dial(ctx, url, server.RoleClient, sessionID)
	require.NoError(t, err)
	require.NoError(t, clientConn.Send([]byte("ping")))
	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the host to receive")
	}
	require.NoError(t, clientConn.Close())

	// the session ended, the guard must bring the host back with a fresh one
	require.Eventually(t, func() bool {
		sess, ok := srv.Relay().Store().Session(sessionID)
		return ok && sess != firstSession
	}, 5*time.Second, 10*time.Millisecond, "guard must re-register the host")

	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	select {
	case err := <-runErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("guard did not stop after context cancellation")
	}
}
