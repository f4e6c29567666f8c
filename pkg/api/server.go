// Package api serves the admin HTTP endpoint: liveness, Prometheus
// metrics, and a small JSON status document.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marmos91/filed/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the document served at /v1/status.
type Status struct {
	Version           string  `json:"version"`
	MountPoint        string  `json:"mount_point"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	ActiveConnections int32   `json:"active_connections"`
}

// StatusSource supplies live fields for the status document.
type StatusSource interface {
	ActiveConnectionCount() int32
}

// Config holds admin endpoint configuration.
type Config struct {
	Port       int
	Version    string
	MountPoint string
	Source     StatusSource
}

// Server is the admin HTTP server.
type Server struct {
	config  Config
	httpSrv *http.Server
	started time.Time
}

// NewServer builds the admin server and its router.
func NewServer(config Config) *Server {
	s := &Server{config: config, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen admin endpoint on %s: %w", s.httpSrv.Addr, err)
	}
	logger.Info("admin endpoint listening", "address", listener.Addr().String())

	done := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			done <- err
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown admin endpoint: %w", err)
		}
		return <-done
	case err := <-done:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Version:       s.config.Version,
		MountPoint:    s.config.MountPoint,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.config.Source != nil {
		status.ActiveConnections = s.config.Source.ActiveConnectionCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Debug("status encode failed", "error", err)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
