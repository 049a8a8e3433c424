package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/meetpointio/meetpoint/messages"
	"github.com/meetpointio/meetpoint/server"
	listenerquic "github.com/meetpointio/meetpoint/server/listener/quic"
)

// Dial connects to a relay over QUIC, sends the hello frame and waits for the
// server to acknowledge the registration. A nil tlsConfig trusts any server
// certificate, matching the relay's self signed default.
func Dial(ctx context.Context, address string, role server.Role, sessionID string, tlsConfig *tls.Config) (server.Conn, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}
	tlsConfig.NextProtos = []string{listenerquic.NextProto}

	qConn, err := quic.DialAddr(ctx, address, tlsConfig, &quic.Config{
		EnableDatagrams: true,
	})
	if err != nil {
		return nil, err
	}

	wireRole := messages.RoleHost
	if role == server.RoleClient {
		wireRole = messages.RoleClient
	}
	hello, err := messages.MarshalHello(wireRole, sessionID)
	if err != nil {
		_ = qConn.CloseWithError(quic.ApplicationErrorCode(messages.CloseCodeBadHello), "")
		return nil, err
	}
	if err := qConn.SendDatagram(hello); err != nil {
		return nil, registrationError(err)
	}

	if err := awaitHelloResponse(ctx, qConn); err != nil {
		return nil, err
	}
	return listenerquic.NewConn(qConn), nil
}

func awaitHelloResponse(ctx context.Context, qConn *quic.Conn) error {
	dgram, err := qConn.ReceiveDatagram(ctx)
	if err != nil {
		return registrationError(err)
	}

	msgType, err := messages.DetermineMsgType(dgram)
	if err != nil {
		return err
	}
	if msgType != messages.MsgTypeHelloResponse {
		return fmt.Errorf("expected hello response, got %s", msgType)
	}
	return nil
}

// registrationError translates a remote close into the relay's registration
// error taxonomy.
func registrationError(err error) error {
	var appErr *quic.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}

	switch uint64(appErr.ErrorCode) {
	case messages.CloseCodeSessionNotFound:
		return server.ErrSessionNotFound
	case messages.CloseCodeSessionAlreadyWaiting:
		return server.ErrSessionAlreadyWaiting
	case messages.CloseCodeSessionBusy:
		return server.ErrSessionBusy
	default:
		return err
	}
}
