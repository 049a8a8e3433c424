package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/meetpointio/meetpoint/server"
)

// SessionFunc serves one host session on the given connection and returns
// when the session ends, for whatever reason.
type SessionFunc func(ctx context.Context, conn server.Conn) error

// Guard keeps a host registered with the relay. Whenever the current session
// ends it redials with exponential backoff and hands the fresh connection to
// the session function, so a restarting relay or a flaky uplink does not
// permanently unpublish the host.
type Guard struct {
	serverURL string
	sessionID string
	serve     SessionFunc
	log       *log.Entry
}

func NewGuard(serverURL, sessionID string, serve SessionFunc) *Guard {
	return &Guard{
		serverURL: serverURL,
		sessionID: sessionID,
		serve:     serve,
		log:       log.WithField("session_id", sessionID),
	}
}

// Run blocks until the context is canceled.
func (g *Guard) Run(ctx context.Context) error {
	for {
		conn, err := g.dial(ctx)
		if err != nil {
			return err
		}

		if err := g.serve(ctx, conn); err != nil {
			g.log.Debugf("session ended: %s", err)
		}
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (g *Guard) dial(ctx context.Context) (server.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until the context is canceled

	var conn server.Conn
	err := backoff.RetryNotify(
		func() error {
			c, err := Dial(ctx, g.serverURL, server.RoleHost, g.sessionID)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			g.log.Warnf("failed to register with relay: %s, retrying in %s", err, next)
		},
	)
	return conn, err
}
