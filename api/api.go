// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the governance engine over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	DefaultListenAddress    = ":8080"
	DefaultMaxRequestsPerIP = 32
	DefaultSignatureMaxSkew = 5 * time.Minute
	DefaultMaxBodyBytes     = 1 << 20
)

type Config struct {
	ListenAddress string
	// MaxRequestsPerIP bounds in-flight requests per client IP. A negative
	// value disables the limit.
	MaxRequestsPerIP int
	SignatureMaxSkew time.Duration
	MaxBodyBytes     int64
	// ReplayCacheSize bounds how many recent signatures are remembered
	ReplayCacheSize int
	// Clock defaults to time.Now and is used for signature freshness checks
	Clock func() time.Time
}

// Server is the governance HTTP API server
type Server struct {
	config        Config
	logger        *slog.Logger
	engine        GovernanceEngine
	limiter       *ipLimiter
	replay        *replayGuard
	healthChecker *grpchealth.StaticChecker
	httpServer    *http.Server
	listener      net.Listener
	serveWg       sync.WaitGroup
	mu            sync.Mutex
}

// New creates an API server for engine. It does not start listening.
func New(
	cfg Config,
	engine GovernanceEngine,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.MaxRequestsPerIP == 0 {
		cfg.MaxRequestsPerIP = DefaultMaxRequestsPerIP
	}
	if cfg.SignatureMaxSkew <= 0 {
		cfg.SignatureMaxSkew = DefaultSignatureMaxSkew
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ReplayCacheSize <= 0 {
		cfg.ReplayCacheSize = DefaultReplayCacheSize
	}
	return &Server{
		config:        cfg,
		logger:        logger,
		engine:        engine,
		limiter:       newIPLimiter(cfg.MaxRequestsPerIP),
		replay:        newReplayGuard(cfg.ReplayCacheSize, cfg.SignatureMaxSkew),
		healthChecker: grpchealth.NewStaticChecker(),
	}
}

// Handler returns the complete HTTP handler, including the per-IP limiter
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/v1/initialize", s.signed(s.handleInitialize))
	mux.HandleFunc("POST /api/v1/users", s.signed(s.handleRegisterUser))
	mux.HandleFunc("GET /api/v1/users/{identity}", s.handleGetUser)
	mux.HandleFunc("POST /api/v1/delegate", s.signed(s.handleDelegate))
	mux.HandleFunc("POST /api/v1/undelegate", s.signed(s.handleUndelegate))
	mux.HandleFunc("POST /api/v1/proposals", s.signed(s.handleCreateProposal))
	mux.HandleFunc("GET /api/v1/proposals", s.handleListProposals)
	mux.HandleFunc("GET /api/v1/proposals/{id}", s.handleGetProposal)
	mux.HandleFunc(
		"POST /api/v1/proposals/{id}/votes",
		s.signed(s.handleVote),
	)
	mux.HandleFunc(
		"GET /api/v1/proposals/{id}/votes/{identity}",
		s.handleGetVoteRecord,
	)
	mux.HandleFunc(
		"POST /api/v1/proposals/{id}/finalize",
		s.signed(s.handleFinalize),
	)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.Handle("/graphql", s.graphqlHandler())
	mux.Handle(grpchealth.NewHandler(s.healthChecker))
	return s.limiter.middleware(mux, s.logger)
}

// Start binds the listener and serves in a background goroutine. The server
// shuts down when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		// Use h2c so gRPC health checks work without TLS
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.listener = ln
	s.healthChecker.SetStatus("", grpchealth.StatusServing)
	s.serveWg.Add(2)
	go func() {
		defer s.serveWg.Done()
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	stopCh := make(chan struct{})
	server.RegisterOnShutdown(func() { close(stopCh) })
	go func() {
		defer s.serveWg.Done()
		select {
		case <-ctx.Done():
			s.logger.Debug("context cancelled, shutting down API server")
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := s.shutdown(shutdownCtx); err != nil {
				s.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		case <-stopCh:
		}
	}()
	s.logger.Info("API listener started on " + ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.healthChecker.SetStatus("", grpchealth.StatusNotServing)
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server and waits for its goroutines
func (s *Server) Stop(ctx context.Context) error {
	err := s.shutdown(ctx)
	s.serveWg.Wait()
	return err
}
