package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/config"
	"chap/internal/constants"
	"chap/internal/database"
	"chap/internal/logger"
	"chap/internal/server"
	"chap/internal/version"
)

func main() {
	// 0. Version flag
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppDisplayName, version.Version)
		os.Exit(0)
	}

	// 1. Initialize debug logger
	log := logger.NewLogger(constants.DefaultLogLevel)
	log.Info("%s version %s starting", constants.AppDisplayName, version.Version)

	// 2. Load or create config
	log.Info("Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Debug("Config directory: %s", config.GetConfigDir())
	log.SetLevel(cfg.LogLevel)
	cfg.LogEffectiveValues(log)

	// 3. Ensure the data directory and open the core database
	if err := os.MkdirAll(cfg.DataDir, constants.DirPermissions); err != nil {
		log.Error("Failed to create data directory %s: %v", cfg.DataDir, err)
		os.Exit(1)
	}
	db, err := database.InitCoreDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open core database: %v", err)
		os.Exit(1)
	}
	log.Debug("Core database ready at %s", cfg.Database.Path)

	// 4. Create application instance
	app := server.NewApp(cfg, log, db)

	// 5. Bootstrap auth: create the admin user and platform key if no users exist
	bootstrapResult, err := auth.Bootstrap(app.Store, log)
	if err != nil {
		log.Error("Auth bootstrap failed: %v", err)
		os.Exit(1)
	}
	if bootstrapResult != nil {
		fmt.Println("╔══════════════════════════════════════════════════════════════╗")
		fmt.Println("║              INITIAL ADMIN CREDENTIALS                      ║")
		fmt.Println("║  Save these now — they will NOT be shown again.             ║")
		fmt.Println("╠══════════════════════════════════════════════════════════════╣")
		fmt.Printf("║  Username     : %-44s║\n", bootstrapResult.Username)
		fmt.Printf("║  Password     : %-44s║\n", bootstrapResult.Password)
		fmt.Printf("║  Platform Key : %-44s║\n", bootstrapResult.PlatformKey)
		fmt.Println("╚══════════════════════════════════════════════════════════════╝")
		log.Info("Auth: bootstrap complete — admin account created")
		app.AuditLogger.Log(constants.AuditActionBootstrap, "", bootstrapResult.Username, audit.BootstrapDetails{
			AdminUsername: bootstrapResult.Username,
		})
	}

	// 6. Enable file logging in the data directory
	logPath := filepath.Join(cfg.DataDir, constants.AppName+".log")
	if err := log.SetLogFile(logPath); err != nil {
		log.Warn("Failed to enable file logging: %v", err)
	} else {
		log.Info("File logging enabled at %s", logPath)
	}

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := server.NewServer(app, addr)

	log.Info("Starting %s server on port %d", constants.AppDisplayName, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Error("Server error: %v", err)
		os.Exit(1)
	}
}
