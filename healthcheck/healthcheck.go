// Package healthcheck exposes a minimal HTTP liveness endpoint for load
// balancers and orchestration probes.
package healthcheck

import (
	"context"
	"net/http"
)

type Config struct {
	ListenAddress string
}

type Server struct {
	*http.Server
}

func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &Server{
		Server: &http.Server{
			Addr:    cfg.ListenAddress,
			Handler: mux,
		},
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
