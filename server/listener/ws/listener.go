// Package ws serves the relay over WebSocket. The request path carries the
// addressing triple: a connection to /host/{session-id} registers as the
// session's host, /client/{session-id} completes the pairing.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/meetpointio/meetpoint/server"
)

type Listener struct {
	address string

	mu     sync.Mutex
	ln     net.Listener
	server *http.Server

	wg     sync.WaitGroup
	accept server.AcceptFunc
}

func NewListener(address string) *Listener {
	return &Listener{
		address: address,
	}
}

// Bind reserves the listen address without serving yet. Listen binds
// implicitly when Bind was not called; tests bind eagerly to learn the port.
func (l *Listener) Bind() (net.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr(), nil
	}

	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return nil, err
	}
	l.ln = ln
	return ln.Addr(), nil
}

func (l *Listener) Listen(accept server.AcceptFunc) error {
	if _, err := l.Bind(); err != nil {
		return err
	}
	l.accept = accept

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.onAccept)

	l.mu.Lock()
	l.server = &http.Server{
		Handler: mux,
	}
	ln := l.ln
	l.mu.Unlock()

	log.Infof("WS server is listening on address: %s", ln.Addr())
	err := l.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (l *Listener) Close() error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Debugf("closing WS server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.wg.Wait()
	return nil
}

func (l *Listener) onAccept(w http.ResponseWriter, r *http.Request) {
	l.wg.Add(1)
	defer l.wg.Done()

	role, sessionID, err := splitPath(r.URL.Path)
	if err != nil {
		log.Debugf("rejecting request %q from %s: %s", r.URL.Path, r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Errorf("failed to accept ws connection from %s: %s", r.RemoteAddr, err)
		return
	}
	wsConn.SetReadLimit(MaxPayloadSize)

	conn := NewConn(wsConn, remoteAddr(r))
	if _, err := l.accept(role, sessionID, conn); err != nil {
		_ = wsConn.Close(websocket.StatusPolicyViolation, err.Error())
	}
}

// splitPath resolves the /{role}/{session-id} addressing convention used by
// incoming connection requests.
func splitPath(path string) (server.Role, string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid path %q, expected /{role}/{session-id}", path)
	}

	role := server.Role(parts[0])
	if !role.Valid() {
		return "", "", fmt.Errorf("unknown role %q", parts[0])
	}
	return role, parts[1], nil
}

func remoteAddr(r *http.Request) net.Addr {
	addr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr)
	if err != nil {
		return &net.TCPAddr{}
	}
	return addr
}
