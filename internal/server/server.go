// Package server exposes the HTTP surface of chap: login and session
// endpoints, token management, MFA lifecycle, node access token minting,
// the GitHub webhook receiver, and admin views over platform keys, nodes,
// and the audit log.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"chap/internal/auth"
	"chap/internal/constants"
	"chap/internal/logger"
)

// Server wraps the HTTP server with graceful shutdown
type Server struct {
	httpServer *http.Server
	app        *App
	logger     *logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(app *App, addr string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		app:    app,
		logger: app.Logger,
	}

	// Register routes
	s.registerRoutes(mux)

	// Build middleware chain: RequestID → SecurityHeaders → Authenticate → Idempotency → handler.
	// Authenticate resolves an identity without blocking; handlers gate access.
	// Idempotency runs inside Authenticate because replay keys are scoped to
	// the caller's token.
	authMW := auth.NewMiddleware(app.Store, app.Logger)
	handler := Chain(mux, RequestID, SecurityHeaders, authMW.Authenticate, s.idempotencyMiddleware)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  constants.HTTPReadTimeout,
		WriteTimeout: constants.HTTPWriteTimeout,
		IdleTimeout:  constants.HTTPIdleTimeout,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes(mux *http.ServeMux) {
	cfg := s.app.Config

	// Public routes
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/api/auth/login", s.rateLimitMiddleware(
		constants.RateBucketLogin, cfg.RateLimit.Login.Limit, cfg.RateLimit.Login.WindowSecs,
	)(http.HandlerFunc(s.handleLogin)))
	mux.Handle("/api/webhooks/github", s.rateLimitMiddleware(
		constants.RateBucketWebhook, cfg.RateLimit.Webhook.Limit, cfg.RateLimit.Webhook.WindowSecs,
	)(http.HandlerFunc(s.handleGitHubWebhook)))

	// Session routes
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
	mux.HandleFunc("/api/auth/me", s.handleMe)
	mux.HandleFunc("/api/auth/password", s.handleChangePassword)

	// Personal token routes
	mux.HandleFunc("/api/tokens", s.handleTokens)
	mux.HandleFunc("/api/tokens/", s.handleTokenByID)

	// MFA routes
	mux.HandleFunc("/api/mfa/setup", s.handleMFASetup)
	mux.HandleFunc("/api/mfa/enable", s.handleMFAEnable)
	mux.HandleFunc("/api/mfa/disable", s.handleMFADisable)

	// Node routes
	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/nodes/", s.handleNodeRoutes)

	// Admin routes
	mux.HandleFunc("/api/admin/users", s.handleAdminUsers)
	mux.HandleFunc("/api/admin/platform-keys", s.handleAdminPlatformKeys)
	mux.HandleFunc("/api/admin/platform-keys/", s.handleAdminPlatformKeyByID)
	mux.HandleFunc("/api/admin/audit", s.handleAdminAudit)
}

// Start runs the server and blocks until shutdown signal
func (s *Server) Start() error {
	// Channel for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, shutdownSignals...)

	// Periodic cleanup of expired sessions, idempotency records, and rate
	// windows. All best-effort; expired rows are also ignored on read.
	cleanupStop := make(chan struct{})
	go s.cleanupLoop(cleanupStop)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errChan:
		close(cleanupStop)
		return err
	case sig := <-stop:
		s.logger.Info("Received signal %v, shutting down...", sig)
	}
	close(cleanupStop)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeoutSecs*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Shutdown error: %v", err)
	}

	s.app.Close()
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) cleanupLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.app.Services.Auth.CleanupExpiredSessions()
			if err := s.app.Idempotency.PruneExpired(); err != nil {
				s.logger.Warn("Idempotency prune failed: %v", err)
			}
			if err := s.app.RateWindows.PruneExpired(time.Now().Unix()); err != nil {
				s.logger.Warn("Rate window prune failed: %v", err)
			}
		}
	}
}

// Handler returns the HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
