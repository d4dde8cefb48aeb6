package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog"
)

// Server exposes net/http/pprof on a dedicated localhost listener, separate
// from the chat endpoints.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	log      zerolog.Logger
}

func NewServer(log zerolog.Logger) *Server {
	return &Server{log: log}
}

// Start binds to localhost on the given port and serves profiling endpoints.
// Port 0 picks a free port. Returns the bound port.
func (s *Server) Start(port int) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("bind to %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	// Dedicated mux so nothing registered on http.DefaultServeMux leaks out.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Warn().Err(err).Msg("pprof server error")
		}
	}()

	return s.port, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
