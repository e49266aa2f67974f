// Package services provides the business logic layer for chap.
// Services orchestrate operations across the auth store, audit log, rate
// limiter, and node token minter. HTTP handlers should delegate to
// services for all business logic.
package services

import (
	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/captcha"
	"chap/internal/config"
	"chap/internal/logger"
	"chap/internal/nodetoken"
	"chap/internal/ratelimit"
)

// Services holds all service instances for the application.
// It acts as a service container that is initialized once at startup.
type Services struct {
	Auth  *AuthService
	Token *TokenService
	Node  *NodeService

	Limiter *ratelimit.Limiter
}

// NewServices wires up the service layer.
func NewServices(cfg *config.Config, log *logger.Logger, store *auth.Store, auditLog *audit.Logger, limiter *ratelimit.Limiter) *Services {
	verifier := captcha.NewVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.Secret)
	minter := nodetoken.NewMinter(store)

	return &Services{
		Auth:    NewAuthService(cfg, log, store, auditLog, limiter, verifier),
		Token:   NewTokenService(log, store, auditLog),
		Node:    NewNodeService(log, store, auditLog, minter),
		Limiter: limiter,
	}
}
