package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/coder/websocket"
)

// MaxPayloadSize bounds a single relayed message on the WebSocket transport.
const MaxPayloadSize = 1 << 20 // 1 MiB

// Conn adapts a WebSocket connection to the relay's message connection. Each
// WebSocket binary frame is one relay message.
type Conn struct {
	conn  *websocket.Conn
	rAddr net.Addr
	ctx   context.Context
}

func NewConn(wsConn *websocket.Conn, rAddr net.Addr) *Conn {
	return &Conn{
		conn:  wsConn,
		rAddr: rAddr,
		ctx:   context.Background(),
	}
}

func (c *Conn) Receive() ([]byte, error) {
	t, msg, err := c.conn.Read(c.ctx)
	if err != nil {
		return nil, ioErrHandling(err)
	}

	if t != websocket.MessageBinary {
		return nil, fmt.Errorf("unexpected message type: %d", t)
	}
	return msg, nil
}

func (c *Conn) Send(msg []byte) error {
	return c.conn.Write(c.ctx, websocket.MessageBinary, msg)
}

func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.rAddr
}

func ioErrHandling(err error) error {
	var wErr websocket.CloseError
	if !errors.As(err, &wErr) {
		return err
	}
	if wErr.Code == websocket.StatusNormalClosure {
		return io.EOF
	}
	return err
}
