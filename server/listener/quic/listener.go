// Package quic serves the relay over QUIC datagrams. QUIC has no request path
// to carry the session addressing, so the first datagram of a connection is a
// hello frame declaring the role and session identifier; registration
// failures close the connection with an application error code.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/meetpointio/meetpoint/messages"
	"github.com/meetpointio/meetpoint/server"
)

const helloTimeout = 5 * time.Second

// NextProto is the ALPN identifier of the relay protocol.
const NextProto = "meetpoint-relay"

type Listener struct {
	address   string
	tlsConfig *tls.Config

	mu       sync.Mutex
	listener *quic.Listener
	quit     chan struct{}

	wg     sync.WaitGroup
	accept server.AcceptFunc
}

// NewListener creates a QUIC listener. When tlsConfig is nil a self signed
// certificate is generated, which clients must opt in to trust.
func NewListener(address string, tlsConfig *tls.Config) *Listener {
	if tlsConfig == nil {
		tlsConfig = generateTLSConfig()
	}
	tlsConfig.NextProtos = []string{NextProto}
	return &Listener{
		address:   address,
		tlsConfig: tlsConfig,
	}
}

func (l *Listener) Listen(accept server.AcceptFunc) error {
	l.accept = accept

	ql, err := quic.ListenAddr(l.address, l.tlsConfig, &quic.Config{
		EnableDatagrams: true,
	})
	if err != nil {
		return err
	}
	quit := make(chan struct{})
	l.mu.Lock()
	l.listener = ql
	l.quit = quit
	l.mu.Unlock()

	log.Infof("QUIC server is listening on address: %s", ql.Addr())
	l.wg.Add(1)
	go l.acceptLoop(ql, quit)

	<-quit
	return nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	ql, quit := l.listener, l.quit
	l.listener, l.quit = nil, nil
	l.mu.Unlock()
	if ql == nil {
		return nil
	}

	close(quit)
	err := ql.Close()
	l.wg.Wait()
	return err
}

// Addr reports the bound address, nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) acceptLoop(ql *quic.Listener, quit chan struct{}) {
	defer l.wg.Done()

	for {
		qConn, err := ql.Accept(context.Background())
		if err != nil {
			select {
			case <-quit:
				return
			default:
				log.Errorf("failed to accept connection: %s", err)
				continue
			}
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handshake(qConn)
		}()
	}
}

// handshake reads the hello frame, submits the connection to the relay and
// acknowledges or rejects the registration.
func (l *Listener) handshake(qConn *quic.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), helloTimeout)
	defer cancel()

	dgram, err := qConn.ReceiveDatagram(ctx)
	if err != nil {
		log.Debugf("failed to read hello from %s: %s", qConn.RemoteAddr(), err)
		_ = qConn.CloseWithError(quic.ApplicationErrorCode(messages.CloseCodeBadHello), "missing hello")
		return
	}

	role, sessionID, err := parseHello(dgram)
	if err != nil {
		log.Debugf("invalid hello from %s: %s", qConn.RemoteAddr(), err)
		_ = qConn.CloseWithError(quic.ApplicationErrorCode(messages.CloseCodeBadHello), err.Error())
		return
	}

	conn := NewConn(qConn)
	if _, err := l.accept(role, sessionID, conn); err != nil {
		_ = qConn.CloseWithError(quic.ApplicationErrorCode(closeCode(err)), err.Error())
		return
	}

	if err := qConn.SendDatagram(messages.MarshalHelloResponse()); err != nil {
		log.Debugf("failed to send hello response to %s: %s", qConn.RemoteAddr(), err)
	}
}

func parseHello(dgram []byte) (server.Role, string, error) {
	msgType, err := messages.DetermineMsgType(dgram)
	if err != nil {
		return "", "", err
	}
	if msgType != messages.MsgTypeHello {
		return "", "", errors.New("expected hello frame")
	}

	wireRole, sessionID, err := messages.UnmarshalHello(dgram)
	if err != nil {
		return "", "", err
	}

	role := server.RoleHost
	if wireRole == messages.RoleClient {
		role = server.RoleClient
	}
	return role, sessionID, nil
}

func closeCode(err error) uint64 {
	switch {
	case errors.Is(err, server.ErrSessionNotFound):
		return messages.CloseCodeSessionNotFound
	case errors.Is(err, server.ErrSessionAlreadyWaiting):
		return messages.CloseCodeSessionAlreadyWaiting
	case errors.Is(err, server.ErrSessionBusy):
		return messages.CloseCodeSessionBusy
	default:
		return messages.CloseCodeBadHello
	}
}
