// Package captcha verifies login challenge responses against an external
// provider (hCaptcha, Turnstile, or anything speaking the same siteverify
// form protocol). Any failure denies the login: a provider outage must not
// open the door.
package captcha

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chap/internal/constants"
)

// Verifier checks challenge responses against the configured provider.
type Verifier struct {
	verifyURL string
	secret    string
	client    *http.Client
}

// NewVerifier creates a verifier for the provider endpoint. An empty
// verifyURL disables CAPTCHA checking entirely.
func NewVerifier(verifyURL, secret string) *Verifier {
	return &Verifier{
		verifyURL: verifyURL,
		secret:    secret,
		client:    &http.Client{Timeout: constants.CaptchaVerifyTimeout},
	}
}

// Enabled reports whether a provider is configured.
func (v *Verifier) Enabled() bool {
	return v.verifyURL != ""
}

// Verify checks a challenge response token. When no provider is configured
// it always passes; when one is, every error path fails closed.
func (v *Verifier) Verify(response, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if response == "" {
		return fmt.Errorf("missing challenge response")
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	resp, err := v.client.Post(v.verifyURL, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("captcha provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha provider returned status %d", resp.StatusCode)
	}

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode captcha response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("captcha verification failed: %v", result.ErrorCodes)
	}
	return nil
}
