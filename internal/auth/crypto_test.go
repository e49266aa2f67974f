package auth

import (
	"strings"
	"testing"

	"chap/internal/constants"
)

// ============================================================================
// Token Hashing Tests
// ============================================================================

func TestHashToken_Deterministic(t *testing.T) {
	h1 := HashToken("chp_sometoken")
	h2 := HashToken("chp_sometoken")
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %s and %s", h1, h2)
	}
}

func TestHashToken_DistinctInputs(t *testing.T) {
	h1 := HashToken("chp_token_one")
	h2 := HashToken("chp_token_two")
	if h1 == h2 {
		t.Error("distinct tokens must not collide")
	}
}

func TestHashToken_NeverEchoesInput(t *testing.T) {
	raw := "chp_supersecretvalue"
	hash := HashToken(raw)
	if strings.Contains(hash, "supersecret") {
		t.Error("hash must not contain plaintext material")
	}
	if len(hash) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(hash))
	}
}

// ============================================================================
// Token Generation Tests
// ============================================================================

func TestGenerateSessionToken_Prefix(t *testing.T) {
	token, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if !IsSessionToken(token) {
		t.Errorf("expected %s prefix, got %s", constants.SessionTokenPrefix, token[:8])
	}
	if IsPersonalToken(token) || IsPlatformKey(token) {
		t.Error("session token matched another kind's prefix")
	}
}

func TestGeneratePersonalToken_Prefix(t *testing.T) {
	token, err := GeneratePersonalToken()
	if err != nil {
		t.Fatalf("GeneratePersonalToken failed: %v", err)
	}
	if !IsPersonalToken(token) {
		t.Errorf("expected %s prefix, got %s", constants.PersonalTokenPrefix, token[:8])
	}
}

func TestGeneratePlatformKey_Prefix(t *testing.T) {
	key, err := GeneratePlatformKey()
	if err != nil {
		t.Fatalf("GeneratePlatformKey failed: %v", err)
	}
	if !IsPlatformKey(key) {
		t.Errorf("expected %s prefix, got %s", constants.PlatformKeyPrefix, key[:8])
	}
}

func TestGenerateTokens_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GeneratePersonalToken()
		if err != nil {
			t.Fatalf("GeneratePersonalToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("generated duplicate token")
		}
		seen[token] = true
	}
}

func TestExtractTokenPrefix(t *testing.T) {
	if got := ExtractTokenPrefix("chp_abcdefghij"); got != "chp_abcd" {
		t.Errorf("expected chp_abcd, got %s", got)
	}
	if got := ExtractTokenPrefix("short"); got != "short" {
		t.Errorf("short input should be returned whole, got %s", got)
	}
}

// ============================================================================
// Password Tests
// ============================================================================

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := VerifyPassword("correct horse battery staple", hash); err != nil {
		t.Errorf("VerifyPassword rejected correct password: %v", err)
	}
	if err := VerifyPassword("wrong password", hash); err == nil {
		t.Error("VerifyPassword accepted wrong password")
	}
}

func TestGeneratePassword_Length(t *testing.T) {
	password, err := GeneratePassword()
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	if len(password) != constants.AuthPasswordGenLength {
		t.Errorf("expected length %d, got %d", constants.AuthPasswordGenLength, len(password))
	}
}

// ============================================================================
// Base62 Tests
// ============================================================================

func TestBase62Encode_ZeroBytes(t *testing.T) {
	if got := base62Encode([]byte{0, 0}); got != "0" {
		t.Errorf("expected \"0\" for zero input, got %q", got)
	}
}

func TestBase62Encode_NoSpecialChars(t *testing.T) {
	token, err := generateBase62(48)
	if err != nil {
		t.Fatalf("generateBase62 failed: %v", err)
	}
	for _, c := range token {
		if !strings.ContainsRune(base62Alphabet, c) {
			t.Errorf("unexpected character %q in base62 output", c)
		}
	}
}
