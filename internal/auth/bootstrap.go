package auth

import (
	"fmt"

	"chap/internal/constants"
	"chap/internal/logger"
)

// BootstrapResult contains the credentials generated during bootstrap.
// These are shown once and never again.
type BootstrapResult struct {
	Username    string
	Password    string
	PlatformKey string
}

// Bootstrap creates the initial admin user and a full-access platform key
// if no users exist. Returns the plaintext credentials that must be shown
// to the operator once. Returns nil if users already exist (no bootstrap
// needed).
func Bootstrap(store *Store, log *logger.Logger) (*BootstrapResult, error) {
	count, err := store.CountUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to check user count: %w", err)
	}

	if count > 0 {
		log.Debug("Auth: %d user(s) exist, skipping bootstrap", count)
		return nil, nil
	}

	log.Info("Auth: no users found, bootstrapping admin account...")

	// Generate credentials
	password, err := GeneratePassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	platformKey, err := GeneratePlatformKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate platform key: %w", err)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := store.CreateBootstrapUser(
		constants.AuthBootstrapUsername,
		"System Administrator",
		passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	// The bootstrap platform key carries the unrestricted scope so the
	// operator can drive the API before creating narrower credentials.
	_, err = store.CreateToken(&Token{
		Name:        "bootstrap",
		Kind:        constants.TokenKindPlatform,
		TokenHash:   HashToken(platformKey),
		TokenPrefix: ExtractTokenPrefix(platformKey),
		Scopes:      []string{constants.ScopeAll},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap platform key: %w", err)
	}

	log.Info("Auth: bootstrap user '%s' created (id=%d)",
		constants.AuthBootstrapUsername, user.ID)

	return &BootstrapResult{
		Username:    constants.AuthBootstrapUsername,
		Password:    password,
		PlatformKey: platformKey,
	}, nil
}
