// Package client dials a relay as either role of a session. A host behind
// NAT registers first and waits; the client side completes the pairing, after
// which both ends exchange opaque messages through the relay.
package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	quicdialer "github.com/meetpointio/meetpoint/client/dialer/quic"
	wsdialer "github.com/meetpointio/meetpoint/client/dialer/ws"
	"github.com/meetpointio/meetpoint/server"
)

// Dial connects to the relay at serverURL and registers the given role for
// the session identifier. The transport is chosen by URL scheme: ws, wss or
// quic.
func Dial(ctx context.Context, serverURL string, role server.Role, sessionID string) (server.Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", serverURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return wsdialer.Dial(ctx, serverURL, role, sessionID)
	case "quic":
		return quicdialer.Dial(ctx, u.Host, role, sessionID, nil)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// NewSessionID generates a random identifier suitable for sharing with the
// counterpart out of band. The relay itself accepts any non-empty string.
func NewSessionID() string {
	return uuid.NewString()
}
