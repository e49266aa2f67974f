package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chap/internal/constants"
	"chap/internal/logger"
)

// SessionConfig holds user-configurable session and login settings.
type SessionConfig struct {
	DurationHours       int `yaml:"duration_hours"`
	MaxLoginAttempts    int `yaml:"max_login_attempts"`
	LockoutDurationMins int `yaml:"lockout_duration_mins"`
}

// Duration returns the session duration as time.Duration.
func (c *SessionConfig) Duration() time.Duration {
	return time.Duration(c.DurationHours) * time.Hour
}

// LockoutDuration returns the lockout duration as time.Duration.
func (c *SessionConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationMins) * time.Minute
}

// DatabaseConfig holds the core database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RateLimitBucketConfig holds the limit and window for one rate-limit bucket.
type RateLimitBucketConfig struct {
	Limit      int `yaml:"limit"`
	WindowSecs int `yaml:"window_secs"`
}

// Window returns the bucket's fixed window as time.Duration.
func (c *RateLimitBucketConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// RateLimitConfig holds per-bucket rate-limit settings.
type RateLimitConfig struct {
	Login   RateLimitBucketConfig `yaml:"login"`
	Webhook RateLimitBucketConfig `yaml:"webhook"`
}

// GitHubConfig holds webhook verification settings.
type GitHubConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// CaptchaConfig holds outbound CAPTCHA verification settings.
// When VerifyURL is empty the CAPTCHA gate is disabled.
type CaptchaConfig struct {
	VerifyURL string `yaml:"verify_url"`
	Secret    string `yaml:"secret"`
}

// Enabled reports whether CAPTCHA verification is configured.
func (c *CaptchaConfig) Enabled() bool {
	return c.VerifyURL != ""
}

// Config holds all application configuration.
type Config struct {
	Port      int             `yaml:"port"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	GitHub    GitHubConfig    `yaml:"github"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
}

// ApplyDefaults fills zero-valued fields with constant defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, constants.DataDir)
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = constants.DefaultLogLevel
	}
	if cfg.Database.Path == "" && cfg.DataDir != "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, constants.CoreDB)
	}

	// Session defaults
	if cfg.Session.DurationHours == 0 {
		cfg.Session.DurationHours = int(constants.AuthSessionDuration.Hours())
	}
	if cfg.Session.MaxLoginAttempts == 0 {
		cfg.Session.MaxLoginAttempts = constants.AuthMaxLoginAttempts
	}
	if cfg.Session.LockoutDurationMins == 0 {
		cfg.Session.LockoutDurationMins = constants.AuthLockoutDurationMins
	}

	// Rate limit defaults
	if cfg.RateLimit.Login.Limit == 0 {
		cfg.RateLimit.Login.Limit = constants.DefaultLoginRateLimit
	}
	if cfg.RateLimit.Login.WindowSecs == 0 {
		cfg.RateLimit.Login.WindowSecs = constants.DefaultLoginRateWindowSecs
	}
	if cfg.RateLimit.Webhook.Limit == 0 {
		cfg.RateLimit.Webhook.Limit = constants.DefaultWebhookRateLimit
	}
	if cfg.RateLimit.Webhook.WindowSecs == 0 {
		cfg.RateLimit.Webhook.WindowSecs = constants.DefaultWebhookRateWindowSecs
	}
}

// validate checks that all configurable values are within acceptable ranges.
// Runs once at load: no silent per-access defaulting afterwards.
func (cfg *Config) validate() error {
	var errs []string

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if cfg.Database.Path == "" {
		errs = append(errs, "database.path must be set")
	}

	if cfg.Session.DurationHours < 1 {
		errs = append(errs, "session.duration_hours must be >= 1")
	}
	if cfg.Session.MaxLoginAttempts < 1 {
		errs = append(errs, "session.max_login_attempts must be >= 1")
	}
	if cfg.Session.LockoutDurationMins < 1 {
		errs = append(errs, "session.lockout_duration_mins must be >= 1")
	}

	if cfg.RateLimit.Login.Limit < 1 {
		errs = append(errs, "ratelimit.login.limit must be >= 1")
	}
	if cfg.RateLimit.Login.WindowSecs < 1 {
		errs = append(errs, "ratelimit.login.window_secs must be >= 1")
	}
	if cfg.RateLimit.Webhook.Limit < 1 {
		errs = append(errs, "ratelimit.webhook.limit must be >= 1")
	}
	if cfg.RateLimit.Webhook.WindowSecs < 1 {
		errs = append(errs, "ratelimit.webhook.window_secs must be >= 1")
	}

	if cfg.Captcha.Enabled() && cfg.Captcha.Secret == "" {
		errs = append(errs, "captcha.secret must be set when captcha.verify_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogEffectiveValues logs all effective configuration values at startup.
func (cfg *Config) LogEffectiveValues(log *logger.Logger) {
	log.Info("config: port=%d", cfg.Port)
	log.Info("config: data_dir=%s", cfg.DataDir)
	log.Info("config: database.path=%s", cfg.Database.Path)
	log.Info("config: session.duration_hours=%d", cfg.Session.DurationHours)
	log.Info("config: session.max_login_attempts=%d", cfg.Session.MaxLoginAttempts)
	log.Info("config: session.lockout_duration_mins=%d", cfg.Session.LockoutDurationMins)
	log.Info("config: ratelimit.login=%d/%ds", cfg.RateLimit.Login.Limit, cfg.RateLimit.Login.WindowSecs)
	log.Info("config: ratelimit.webhook=%d/%ds", cfg.RateLimit.Webhook.Limit, cfg.RateLimit.Webhook.WindowSecs)
	log.Info("config: github.webhook_secret=%s", maskSecret(cfg.GitHub.WebhookSecret))
	log.Info("config: captcha.enabled=%t", cfg.Captcha.Enabled())
}

// maskSecret renders a secret as set/unset without leaking its value.
func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "(set)"
}

func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.ConfigDir)
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), constants.ConfigFile)
}

func EnsureConfigDir() error {
	return os.MkdirAll(GetConfigDir(), constants.DirPermissions)
}

// LoadConfig reads the config file, applies defaults, and validates.
// A missing config file yields the default configuration.
func LoadConfig() (*Config, error) {
	if err := EnsureConfigDir(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	path := GetConfigPath()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the config to the config file.
func SaveConfig(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(GetConfigPath(), data, 0o644)
}
