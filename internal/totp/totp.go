// Package totp implements RFC 6238 time-based one-time passwords used as the
// second authentication factor: Base32 secret handling, HMAC-SHA1 code
// derivation with dynamic truncation, and verification over a sliding window
// of time steps to tolerate clock drift.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chap/internal/constants"
)

const (
	// Digits and Period are fixed protocol constants; enrolled
	// authenticator apps bake them in via the provisioning URI.
	Digits = constants.TOTPDigits
	Period = constants.TOTPPeriodSecs
)

// base32Alphabet is the standard RFC 4648 alphabet.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// GenerateSecret creates a cryptographically random TOTP secret,
// Base32-encoded without padding.
func GenerateSecret() (string, error) {
	raw := make([]byte, constants.TOTPSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return base32Encode(raw), nil
}

// ProvisioningURI builds the otpauth:// URI encoded into enrollment QR codes.
func ProvisioningURI(accountName, secret, issuer string) string {
	label := url.PathEscape(issuer + ":" + accountName)
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", fmt.Sprintf("%d", Digits))
	params.Set("period", fmt.Sprintf("%d", Period))
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// GenerateCode computes the code for the time step containing the given
// timestamp.
func GenerateCode(secret string, at time.Time) string {
	return hotp(base32Decode(secret), uint64(at.Unix()/Period))
}

// VerifyCode checks a user-supplied code against the secret, accepting
// codes from the window of time steps either side of the step containing
// the timestamp. The supplied code must be exactly six digits after
// whitespace removal. Comparisons are constant-time.
func VerifyCode(secret, code string, window int, at time.Time) bool {
	code = strings.Join(strings.Fields(code), "")
	if len(code) != Digits {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}

	key := base32Decode(secret)
	step := at.Unix() / Period

	matched := false
	for offset := -int64(window); offset <= int64(window); offset++ {
		t := step + offset
		if t < 0 {
			continue
		}
		candidate := hotp(key, uint64(t))
		// No early exit: every candidate is compared so timing does not
		// reveal which step matched.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			matched = true
		}
	}
	return matched
}

// hotp derives a Digits-long code from the key and counter per RFC 4226:
// HMAC-SHA1 over the 8-byte big-endian counter, then dynamic truncation.
func hotp(key []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", Digits, value%mod)
}

// base32Encode encodes raw bytes using the RFC 4648 alphabet, no padding.
func base32Encode(data []byte) string {
	var sb strings.Builder
	var buffer uint32
	var bits uint

	for _, b := range data {
		buffer = buffer<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buffer>>bits)&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buffer<<(5-bits))&0x1f])
	}
	return sb.String()
}

// base32Decode decodes a Base32 string tolerantly: lowercase is accepted,
// characters outside the alphabet (padding, separators) are stripped, and a
// truncated trailing group is ignored.
func base32Decode(s string) []byte {
	var out []byte
	var buffer uint32
	var bits uint

	for _, c := range strings.ToUpper(s) {
		idx := strings.IndexRune(base32Alphabet, c)
		if idx < 0 {
			continue
		}
		buffer = buffer<<5 | uint32(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
		}
	}
	// Leftover bits (< 8) belong to an incomplete group and are dropped.
	return out
}
