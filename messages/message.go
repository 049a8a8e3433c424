// Package messages defines the binary frames used by transports that have no
// request path to carry the session addressing, currently the QUIC transport.
// Every frame starts with a version byte and a message type byte. The hello
// frame declares the connection's role and session identifier; after a
// positive hello response both directions carry transport frames with the
// opaque relay payload.
package messages

import (
	"errors"
	"fmt"
)

const (
	CurrentProtocolVersion = 1

	sizeOfVersionByte = 1
	sizeOfMsgType     = 1
	sizeOfRoleByte    = 1

	sizeOfProtoHeader = sizeOfVersionByte + sizeOfMsgType

	// MaxSessionIDSize bounds the identifier length on the wire. The relay
	// itself treats identifiers as opaque strings.
	MaxSessionIDSize = 256

	// MaxHandshakeSize is the read bound for the first frame of a connection.
	MaxHandshakeSize = sizeOfProtoHeader + sizeOfRoleByte + MaxSessionIDSize
)

var (
	ErrInvalidMessageLength = errors.New("invalid message length")
	ErrUnsupportedVersion   = errors.New("unsupported version")
)

type MsgType byte

const (
	MsgTypeUnknown       MsgType = 0
	MsgTypeHello         MsgType = 1
	MsgTypeHelloResponse MsgType = 2
	MsgTypeTransport     MsgType = 3
)

func (m MsgType) String() string {
	switch m {
	case MsgTypeHello:
		return "hello"
	case MsgTypeHelloResponse:
		return "hello response"
	case MsgTypeTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Role is the wire encoding of the connection role.
type Role byte

const (
	RoleUnknown Role = 0
	RoleHost    Role = 1
	RoleClient  Role = 2
)

// Close codes a transport maps registration failures to, e.g. QUIC
// application error codes.
const (
	CloseCodeOK uint64 = iota
	CloseCodeSessionNotFound
	CloseCodeSessionAlreadyWaiting
	CloseCodeSessionBusy
	CloseCodeBadHello
)

// DetermineMsgType reads the type of a framed message after validating the
// protocol version.
func DetermineMsgType(msg []byte) (MsgType, error) {
	if len(msg) < sizeOfProtoHeader {
		return MsgTypeUnknown, ErrInvalidMessageLength
	}
	if version := int(msg[0]); version != CurrentProtocolVersion {
		return MsgTypeUnknown, fmt.Errorf("%d: %w", version, ErrUnsupportedVersion)
	}

	msgType := MsgType(msg[1])
	switch msgType {
	case MsgTypeHello, MsgTypeHelloResponse, MsgTypeTransport:
		return msgType, nil
	default:
		return MsgTypeUnknown, fmt.Errorf("invalid msg type %d", msg[1])
	}
}

// MarshalHello builds the first frame of a connection, declaring its role and
// session identifier.
func MarshalHello(role Role, sessionID string) ([]byte, error) {
	if role != RoleHost && role != RoleClient {
		return nil, fmt.Errorf("invalid role %d", role)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id")
	}
	if len(sessionID) > MaxSessionIDSize {
		return nil, fmt.Errorf("session id too long: %d", len(sessionID))
	}

	msg := make([]byte, sizeOfProtoHeader+sizeOfRoleByte, sizeOfProtoHeader+sizeOfRoleByte+len(sessionID))
	msg[0] = byte(CurrentProtocolVersion)
	msg[1] = byte(MsgTypeHello)
	msg[2] = byte(role)
	return append(msg, sessionID...), nil
}

// UnmarshalHello parses a hello frame. The caller must have checked the
// message type already.
func UnmarshalHello(msg []byte) (Role, string, error) {
	if len(msg) <= sizeOfProtoHeader+sizeOfRoleByte {
		return RoleUnknown, "", ErrInvalidMessageLength
	}
	if len(msg) > MaxHandshakeSize {
		return RoleUnknown, "", fmt.Errorf("hello frame too long: %d", len(msg))
	}

	role := Role(msg[2])
	if role != RoleHost && role != RoleClient {
		return RoleUnknown, "", fmt.Errorf("invalid role %d", msg[2])
	}
	return role, string(msg[sizeOfProtoHeader+sizeOfRoleByte:]), nil
}

// MarshalHelloResponse acknowledges a successful registration.
func MarshalHelloResponse() []byte {
	return []byte{byte(CurrentProtocolVersion), byte(MsgTypeHelloResponse)}
}

// MarshalTransport frames an opaque relay payload.
func MarshalTransport(payload []byte) []byte {
	msg := make([]byte, sizeOfProtoHeader, sizeOfProtoHeader+len(payload))
	msg[0] = byte(CurrentProtocolVersion)
	msg[1] = byte(MsgTypeTransport)
	return append(msg, payload...)
}

// UnmarshalTransport strips the frame header off a transport message.
func UnmarshalTransport(msg []byte) ([]byte, error) {
	if len(msg) < sizeOfProtoHeader {
		return nil, ErrInvalidMessageLength
	}
	return msg[sizeOfProtoHeader:], nil
}
