package dashboard

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"actions-bootstrapper/metrics"
	"actions-bootstrapper/process"
	"actions-bootstrapper/supervisor"
)

//go:embed static/*
var staticFS embed.FS

// Server serves the web dashboard for viewing and stopping action servers.
type Server struct {
	launcher process.Launcher
	sup      *supervisor.Supervisor
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a dashboard bound to addr. m may be nil, in which case
// /metrics answers 404.
func NewServer(addr string, launcher process.Launcher, sup *supervisor.Supervisor, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		launcher: launcher,
		sup:      sup,
		logger:   logger.With("component", "dashboard"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("GET /api/servers/{id}", s.handleGetServer)
	mux.HandleFunc("GET /api/servers/{id}/output", s.handleGetOutput)
	mux.HandleFunc("GET /api/servers/{id}/logs", s.handleGetLogs)
	mux.HandleFunc("GET /api/servers/{id}/logs/stream", s.handleStreamLogs)
	mux.HandleFunc("POST /api/servers/{id}/stop", s.handleStopServer)
	mux.HandleFunc("POST /api/servers/{id}/kill", s.handleKillServer)
	mux.Handle("GET /metrics", m.Handler())

	staticContent, _ := fs.Sub(staticFS, "static")
	mux.Handle("/", http.FileServer(http.FS(staticContent)))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves HTTP requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
