package auth

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chap/internal/constants"
	"chap/internal/database"
)

// setupTestDB creates an in-memory SQLite database with the core schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(database.GetCoreSchema()); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

// setupTestStore creates a store backed by an in-memory DB.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t), constants.AuthMaxLoginAttempts, 15*time.Minute)
}

// ============================================================================
// User Tests
// ============================================================================

func TestCreateUser(t *testing.T) {
	store := setupTestStore(t)

	user, err := store.CreateUser("testuser", "Test User", "hash123", false, nil)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if user.ID == 0 {
		t.Error("expected non-zero user ID")
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if !user.IsActive {
		t.Error("expected user to be active")
	}
	if user.IsAdmin {
		t.Error("expected non-admin user")
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.CreateUser("dup", "", "h1", false, nil); err != nil {
		t.Fatalf("first CreateUser failed: %v", err)
	}
	if _, err := store.CreateUser("dup", "", "h2", false, nil); err == nil {
		t.Error("expected error for duplicate username")
	}
}

func TestCreateBootstrapUser(t *testing.T) {
	store := setupTestStore(t)

	user, err := store.CreateBootstrapUser("admin", "System Administrator", "hash")
	if err != nil {
		t.Fatalf("CreateBootstrapUser failed: %v", err)
	}
	if !user.IsBootstrap {
		t.Error("expected bootstrap flag")
	}
	if !user.IsAdmin {
		t.Error("bootstrap user must be admin")
	}
}

func TestGetUserByUsername(t *testing.T) {
	store := setupTestStore(t)
	created, _ := store.CreateUser("lookup", "Look Up", "pwhash", true, nil)

	user, err := store.GetUserByUsername("lookup")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("expected ID %d, got %d", created.ID, user.ID)
	}
	if user.PasswordHash != "pwhash" {
		t.Errorf("expected password hash to round-trip, got %q", user.PasswordHash)
	}
	if !user.IsAdmin {
		t.Error("expected admin flag to round-trip")
	}
}

func TestFailedLogin_LockoutAtThreshold(t *testing.T) {
	store := setupTestStore(t)
	user, _ := store.CreateUser("locky", "", "h", false, nil)

	for i := 0; i < constants.AuthMaxLoginAttempts; i++ {
		if err := store.IncrementFailedLogin(user.ID); err != nil {
			t.Fatalf("IncrementFailedLogin failed: %v", err)
		}
	}

	fetched, err := store.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if fetched.FailedLoginCount != constants.AuthMaxLoginAttempts {
		t.Errorf("expected %d failed logins, got %d", constants.AuthMaxLoginAttempts, fetched.FailedLoginCount)
	}
	if fetched.LockedUntil == nil {
		t.Fatal("expected account lock at threshold")
	}
	if *fetched.LockedUntil <= time.Now().Unix() {
		t.Error("lock should extend into the future")
	}

	if err := store.ResetFailedLogin(user.ID); err != nil {
		t.Fatalf("ResetFailedLogin failed: %v", err)
	}
	fetched, _ = store.GetUserByID(user.ID)
	if fetched.FailedLoginCount != 0 || fetched.LockedUntil != nil {
		t.Error("expected counter and lock cleared after reset")
	}
}

func TestTOTPLifecycle(t *testing.T) {
	store := setupTestStore(t)
	user, _ := store.CreateUser("mfa", "", "h", false, nil)

	if err := store.SetTOTPSecret(user.ID, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("SetTOTPSecret failed: %v", err)
	}
	fetched, _ := store.GetUserByID(user.ID)
	if fetched.TOTPSecret == nil || *fetched.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Fatal("expected secret stored")
	}
	if fetched.TOTPEnabled {
		t.Error("secret storage must not enable MFA")
	}

	if err := store.EnableTOTP(user.ID); err != nil {
		t.Fatalf("EnableTOTP failed: %v", err)
	}
	fetched, _ = store.GetUserByID(user.ID)
	if !fetched.TOTPEnabled {
		t.Error("expected MFA enabled")
	}

	if err := store.DisableTOTP(user.ID); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	fetched, _ = store.GetUserByID(user.ID)
	if fetched.TOTPEnabled || fetched.TOTPSecret != nil {
		t.Error("expected MFA disabled and secret cleared")
	}
}

// ============================================================================
// Token Tests
// ============================================================================

func TestCreateToken_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	user, _ := store.CreateUser("owner", "", "h", false, nil)

	raw, _ := GeneratePersonalToken()
	created, err := store.CreateToken(&Token{
		UserID:      &user.ID,
		Name:        "ci token",
		Kind:        constants.TokenKindPersonal,
		TokenHash:   HashToken(raw),
		TokenPrefix: ExtractTokenPrefix(raw),
		Scopes:      []string{"deployments:*", "projects:read"},
		Constraints: &Constraints{TeamID: "team-1"},
	})
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected assigned ID")
	}

	fetched, err := store.GetTokenByHash(HashToken(raw))
	if err != nil {
		t.Fatalf("GetTokenByHash failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected token found by hash")
	}
	if fetched.Name != "ci token" || fetched.Kind != constants.TokenKindPersonal {
		t.Errorf("unexpected token fields: %+v", fetched)
	}
	if len(fetched.Scopes) != 2 || fetched.Scopes[0] != "deployments:*" {
		t.Errorf("scopes did not round-trip: %v", fetched.Scopes)
	}
	if fetched.Constraints == nil || fetched.Constraints.TeamID != "team-1" {
		t.Errorf("constraints did not round-trip: %+v", fetched.Constraints)
	}
}

func TestGetTokenByHash_Unknown(t *testing.T) {
	store := setupTestStore(t)

	token, err := store.GetTokenByHash(HashToken("chp_never_issued"))
	if err != nil {
		t.Fatalf("GetTokenByHash failed: %v", err)
	}
	if token != nil {
		t.Error("expected nil for unknown hash")
	}
}

func TestRevokeToken(t *testing.T) {
	store := setupTestStore(t)
	raw, _ := GeneratePersonalToken()
	created, _ := store.CreateToken(&Token{
		Kind:      constants.TokenKindPlatform,
		TokenHash: HashToken(raw),
		Scopes:    []string{"*"},
	})

	if err := store.RevokeToken(created.ID); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	fetched, _ := store.GetTokenByHash(HashToken(raw))
	if !fetched.Revoked {
		t.Error("expected revoked flag set")
	}
}

func TestTouchToken_UpdatesLastUsed(t *testing.T) {
	store := setupTestStore(t)
	raw, _ := GeneratePersonalToken()
	created, _ := store.CreateToken(&Token{
		Kind:      constants.TokenKindPlatform,
		TokenHash: HashToken(raw),
		Scopes:    []string{"*"},
	})

	if err := store.TouchToken(created.ID); err != nil {
		t.Fatalf("TouchToken failed: %v", err)
	}
	fetched, _ := store.GetTokenByHash(HashToken(raw))
	if fetched.LastUsedAt == nil {
		t.Error("expected last_used_at set after touch")
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := setupTestStore(t)
	user, _ := store.CreateUser("sess", "", "h", false, nil)

	past := time.Now().Add(-time.Hour).Unix()
	future := time.Now().Add(time.Hour).Unix()

	expired, _ := GenerateSessionToken()
	store.CreateToken(&Token{
		UserID: &user.ID, Kind: constants.TokenKindSession,
		TokenHash: HashToken(expired), Scopes: []string{"*"}, ExpiresAt: &past,
	})
	live, _ := GenerateSessionToken()
	store.CreateToken(&Token{
		UserID: &user.ID, Kind: constants.TokenKindSession,
		TokenHash: HashToken(live), Scopes: []string{"*"}, ExpiresAt: &future,
	})

	removed, err := store.DeleteExpiredSessions()
	if err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if tok, _ := store.GetTokenByHash(HashToken(live)); tok == nil {
		t.Error("live session should survive cleanup")
	}
}

func TestListTokensForUser_ExcludesSessions(t *testing.T) {
	store := setupTestStore(t)
	user, _ := store.CreateUser("lister", "", "h", false, nil)

	session, _ := GenerateSessionToken()
	store.CreateToken(&Token{UserID: &user.ID, Kind: constants.TokenKindSession, TokenHash: HashToken(session), Scopes: []string{"*"}})
	personal, _ := GeneratePersonalToken()
	store.CreateToken(&Token{UserID: &user.ID, Kind: constants.TokenKindPersonal, TokenHash: HashToken(personal), Scopes: []string{"*"}, Name: "p"})

	tokens, err := store.ListTokensForUser(user.ID)
	if err != nil {
		t.Fatalf("ListTokensForUser failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Kind != constants.TokenKindPersonal {
		t.Errorf("expected personal token, got %s", tokens[0].Kind)
	}
}

// ============================================================================
// Node Tests
// ============================================================================

func TestNodeSecret(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.CreateNode("node-1", "worker-1", "s3cret", nil); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	secret, err := store.NodeSecret("node-1")
	if err != nil {
		t.Fatalf("NodeSecret failed: %v", err)
	}
	if secret != "s3cret" {
		t.Errorf("expected s3cret, got %q", secret)
	}
}

func TestNodeSecret_UnknownNode(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.NodeSecret("ghost"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestNodeSecret_EmptySecretIsError(t *testing.T) {
	store := setupTestStore(t)
	store.CreateNode("node-2", "worker-2", "", nil)

	if _, err := store.NodeSecret("node-2"); err == nil {
		t.Error("expected error for empty secret, no fallback to a shared key")
	}
}
