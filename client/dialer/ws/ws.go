package ws

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/meetpointio/meetpoint/server"
	listenerws "github.com/meetpointio/meetpoint/server/listener/ws"
)

// Dial connects to a relay over WebSocket and declares the role and session
// identifier through the request path. A rejected registration surfaces on
// the first Receive as a policy violation close.
func Dial(ctx context.Context, serverURL string, role server.Role, sessionID string) (server.Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", serverURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath(string(role), sessionID)

	wsConn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	wsConn.SetReadLimit(listenerws.MaxPayloadSize)

	return listenerws.NewConn(wsConn, resolveAddr(u.Host)), nil
}

func resolveAddr(host string) net.Addr {
	addr, err := net.ResolveTCPAddr("tcp", host)
	if err != nil {
		log.Debugf("failed to resolve relay address %q: %s", host, err)
		return &net.TCPAddr{}
	}
	return addr
}
