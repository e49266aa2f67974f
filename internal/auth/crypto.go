package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/bcrypt"

	"chap/internal/constants"
)

// base62Alphabet is used for human-friendly token encoding (no special chars).
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// HashPassword hashes a plaintext password using bcrypt with the configured cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), constants.AuthBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a bcrypt hash.
// Returns nil on success, error on mismatch or failure.
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashToken computes the BLAKE3 digest of a raw bearer token for storage and
// lookup. The digest is deterministic and one-way; the plaintext is never
// stored.
func HashToken(token string) string {
	hasher := blake3.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

// GenerateSessionToken creates a new session token with the chs_ prefix.
// Returns the plaintext token (sent to the client once).
func GenerateSessionToken() (string, error) {
	return generatePrefixed(constants.SessionTokenPrefix)
}

// GeneratePersonalToken creates a new personal API token with the chp_ prefix.
func GeneratePersonalToken() (string, error) {
	return generatePrefixed(constants.PersonalTokenPrefix)
}

// GeneratePlatformKey creates a new platform API key with the chk_ prefix.
func GeneratePlatformKey() (string, error) {
	return generatePrefixed(constants.PlatformKeyPrefix)
}

// GenerateNodeSecret creates a random per-node signing secret.
func GenerateNodeSecret() (string, error) {
	return generateBase62(constants.NodeSecretBytes)
}

// GeneratePassword creates a cryptographically secure random password.
// Uses a mix of lowercase, uppercase, digits, and special characters.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	length := constants.AuthPasswordGenLength

	password := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range password {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password[i] = charset[idx.Int64()]
	}

	return string(password), nil
}

// ExtractTokenPrefix returns the first N characters of a token for logging.
func ExtractTokenPrefix(token string) string {
	if len(token) <= constants.AuthTokenPrefixLength {
		return token
	}
	return token[:constants.AuthTokenPrefixLength]
}

// IsSessionToken checks if a token has the session token prefix.
func IsSessionToken(token string) bool {
	return strings.HasPrefix(token, constants.SessionTokenPrefix)
}

// IsPersonalToken checks if a token has the personal token prefix.
func IsPersonalToken(token string) bool {
	return strings.HasPrefix(token, constants.PersonalTokenPrefix)
}

// IsPlatformKey checks if a token has the platform key prefix.
func IsPlatformKey(token string) bool {
	return strings.HasPrefix(token, constants.PlatformKeyPrefix)
}

// generatePrefixed generates a prefixed base62 token.
func generatePrefixed(prefix string) (string, error) {
	encoded, err := generateBase62(constants.AuthTokenRandomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return prefix + encoded, nil
}

// generateBase62 generates random bytes and encodes them to base62.
func generateBase62(numBytes int) (string, error) {
	randomBytes := make([]byte, numBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return base62Encode(randomBytes), nil
}

// base62Encode encodes raw bytes to a base62 string.
func base62Encode(data []byte) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(int64(len(base62Alphabet)))

	if num.Sign() == 0 {
		return string(base62Alphabet[0])
	}

	var result []byte
	zero := big.NewInt(0)
	mod := new(big.Int)

	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		result = append(result, base62Alphabet[mod.Int64()])
	}

	// Reverse the result
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return string(result)
}
