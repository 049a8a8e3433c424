package server

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testConn is the server side of a fake transport connection. The test plays
// the remote peer through the in/out channels.
type testConn struct {
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	eof       chan struct{}
	eofOnce   sync.Once
}

func newTestConn() *testConn {
	return &testConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
		eof:    make(chan struct{}),
	}
}

func (c *testConn) Receive() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, net.ErrClosed
	case <-c.eof:
		return nil, io.EOF
	}
}

func (c *testConn) Send(msg []byte) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *testConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *testConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
}

// push delivers a message as if the remote peer had sent it.
func (c *testConn) push(msg string) {
	c.in <- []byte(msg)
}

// disconnect simulates the remote peer going away.
func (c *testConn) disconnect() {
	c.eofOnce.Do(func() {
		close(c.eof)
	})
}

func (c *testConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// expect waits for the relay to forward a message to this connection's peer.
func (c *testConn) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case msg := <-c.out:
		require.Equal(t, want, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message %q", want)
	}
}
