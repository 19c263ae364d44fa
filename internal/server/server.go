// Package server exposes the Washdesk REST API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/washdeskhq/washdesk/internal/auth"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/services/orders"
	"github.com/washdeskhq/washdesk/internal/services/payments"
)

// Server wraps the HTTP server and the application services.
type Server struct {
	config        *common.Config
	logger        *common.Logger
	storage       interfaces.Storage
	issuer        *auth.TokenIssuer
	authenticator *auth.Authenticator
	payments      *payments.Service
	orders        *orders.Service
	server        *http.Server
}

// NewServer creates the REST API server with all routes and middleware wired.
func NewServer(cfg *common.Config, logger *common.Logger, storage interfaces.Storage, gateway interfaces.PaystackClient) *Server {
	issuer := auth.NewTokenIssuer(&cfg.Auth)
	s := &Server{
		config:        cfg,
		logger:        logger,
		storage:       storage,
		issuer:        issuer,
		authenticator: auth.NewAuthenticator(issuer, storage, logger, cfg.Auth.RotateRefreshTokens),
		payments:      payments.NewService(storage, gateway, cfg.Paystack.CallbackURL, logger),
		orders:        orders.NewService(storage, logger),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := s.applyMiddleware(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
