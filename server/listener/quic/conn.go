package quic

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/meetpointio/meetpoint/messages"
)

// Conn adapts a datagram enabled QUIC connection to the relay's message
// connection. Every relayed message travels as one transport framed datagram.
type Conn struct {
	session *quic.Conn

	closed    bool
	closedMu  sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc
}

func NewConn(session *quic.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		session:   session,
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

func (c *Conn) Receive() ([]byte, error) {
	for {
		dgram, err := c.session.ReceiveDatagram(c.ctx)
		if err != nil {
			return nil, c.remoteCloseErrHandling(err)
		}

		msgType, err := messages.DetermineMsgType(dgram)
		if err != nil {
			return nil, err
		}
		if msgType != messages.MsgTypeTransport {
			// stray handshake frame, e.g. a retransmitted hello response
			continue
		}
		return messages.UnmarshalTransport(dgram)
	}
}

func (c *Conn) Send(msg []byte) error {
	if err := c.session.SendDatagram(messages.MarshalTransport(msg)); err != nil {
		return c.remoteCloseErrHandling(err)
	}
	return nil
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.session.RemoteAddr()
}

func (c *Conn) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	// cancel the context to unblock a pending receive
	c.ctxCancel()

	return c.session.CloseWithError(quic.ApplicationErrorCode(messages.CloseCodeOK), "normal closure")
}

func (c *Conn) isClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

func (c *Conn) remoteCloseErrHandling(err error) error {
	if c.isClosed() {
		return net.ErrClosed
	}

	// a remote close with the OK code is a graceful disconnect
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && uint64(appErr.ErrorCode) == messages.CloseCodeOK {
		return io.EOF
	}

	return err
}
