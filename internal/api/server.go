// Package api exposes the device registry over HTTP.
//
// The server follows the usual lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/groutine"
	"github.com/srg/ledctl/internal/led"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Listen   string
	Registry *led.Registry
	Logger   *logrus.Logger
}

// Server is the HTTP API server
type Server struct {
	listen   string
	registry *led.Registry
	logger   *logrus.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	return &Server{
		listen:   deps.Listen,
		registry: deps.Registry,
		logger:   deps.Logger,
	}, nil
}

// Handler returns the routed handler without starting a listener
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.WithField("address", ln.Addr().String()).Info("API server listening")

	srv := s.server
	groutine.Go(ctx, "api-server", func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("error", err).Error("API server error")
		}
	})
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts the server down
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
