// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the bridge over HTTP: touch input on /touch,
// controller state on /status, and Prometheus metrics on /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GEEKiDoS/polaris-touch-godot/bridge"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/version"
	"github.com/GEEKiDoS/polaris-touch-godot/touch"
)

// StatusSource supplies the controller state for /status.
type StatusSource interface {
	Status() bridge.Status
}

var _ StatusSource = (*bridge.Bridge)(nil)

// Status is the /status response body.
type Status struct {
	bridge.Status
	Transport    config.TransportKind `json:"transport"`
	TouchClients int                  `json:"touch_clients"`
	Version      string               `json:"version"`
}

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address. Required.
	Address string

	// Touch serves the /touch WebSocket. Required.
	Touch *touch.Handler

	// Bridge supplies /status. Required.
	Bridge StatusSource

	// Transport is reported in /status.
	Transport config.TransportKind

	// Gatherer backs /metrics. If nil, /metrics is not served.
	Gatherer prometheus.Gatherer

	// ShutdownTimeout bounds graceful shutdown. Defaults to 5 seconds.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Server serves the HTTP surface on a TCP listener.
type Server struct {
	config  Config
	logger  *slog.Logger
	handler http.Handler

	// ready is closed once the listener is bound.
	ready chan struct{}
	addr  net.Addr
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Address == "" {
		return nil, errors.New("server: Address is required")
	}
	if cfg.Touch == nil {
		return nil, errors.New("server: Touch is required")
	}
	if cfg.Bridge == nil {
		return nil, errors.New("server: Bridge is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		logger: logger,
		ready:  make(chan struct{}),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Handle("/touch", s.config.Touch)

	router.Group(func(router chi.Router) {
		router.Use(s.logRequests)
		router.Get("/status", s.handleStatus)
		if s.config.Gatherer != nil {
			router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
		}
	})
	return router
}

// Handler returns the router, for tests that drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Ready returns a channel that is closed once the server is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve listens and serves until ctx is cancelled, then shuts down
// gracefully and disconnects touch clients.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(s.config.Touch.Close)

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Status:       s.config.Bridge.Status(),
		Transport:    s.config.Transport,
		TouchClients: s.config.Touch.Connections(),
		Version:      version.Short(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug("writing status failed", "error", err)
	}
}

// logRequests logs each request at Debug.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"bytes", wrapped.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
