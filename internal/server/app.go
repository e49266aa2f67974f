package server

import (
	"database/sql"
	"time"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/config"
	"chap/internal/idempotency"
	"chap/internal/logger"
	"chap/internal/ratelimit"
	"chap/internal/services"
)

// App holds all application state and dependencies
type App struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *sql.DB
	Store       *auth.Store
	AuditLogger *audit.Logger
	Idempotency *idempotency.Store
	RateWindows *ratelimit.SQLStore
	StartedAt   time.Time

	// Services layer for business logic
	Services *services.Services
}

// NewApp creates a new application instance over an initialized core database.
func NewApp(cfg *config.Config, log *logger.Logger, db *sql.DB) *App {
	store := auth.NewStore(db, cfg.Session.MaxLoginAttempts, cfg.Session.LockoutDuration())
	auditLog := audit.NewLogger(db)
	rateWindows := ratelimit.NewSQLStore(db)
	limiter := ratelimit.NewLimiter(rateWindows)

	return &App{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		Store:       store,
		AuditLogger: auditLog,
		Idempotency: idempotency.NewStore(db),
		RateWindows: rateWindows,
		StartedAt:   time.Now(),
		Services:    services.NewServices(cfg, log, store, auditLog, limiter),
	}
}

// Close releases the application's database connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
