// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the HTTP surface of a payment-metered agent:
// the JSON-RPC endpoint, the well-known agent card, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/metrics"
)

// AgentCardPath is the well-known discovery path for the agent card.
const AgentCardPath = "/.well-known/agent.json"

// Server hosts the JSON-RPC endpoint and its supporting routes.
type Server struct {
	httpServer *http.Server
	card       *payments.AgentCard
	logger     *slog.Logger
}

// Config holds configuration for Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// RPCHandler serves the JSON-RPC endpoint. Required.
	RPCHandler http.Handler

	// AgentCard is served at the well-known discovery path. Required.
	AgentCard *payments.AgentCard

	// Metrics, when set, exposes its registry at /metrics.
	Metrics *metrics.Metrics

	// ReadHeaderTimeout guards against slow-header clients. Defaults to
	// 10 seconds.
	ReadHeaderTimeout time.Duration

	Logger *slog.Logger
}

// New creates a Server from the given configuration.
func New(config Config) (*Server, error) {
	if config.RPCHandler == nil {
		return nil, fmt.Errorf("rpc handler cannot be nil")
	}
	if config.AgentCard == nil {
		return nil, fmt.Errorf("agent card cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readHeaderTimeout := config.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}

	s := &Server{
		card:   config.AgentCard,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/", config.RPCHandler.ServeHTTP)
	r.Get(AgentCardPath, s.serveAgentCard)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", config.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// ListenAndServe starts the server and blocks until it stops. It returns
// nil after a clean Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) serveAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, s.card); err != nil {
		s.logger.Error("failed to write agent card", "error", err)
	}
}
