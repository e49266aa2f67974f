package captcha

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// ============================================
// Disabled Verifier Tests
// ============================================

func TestDisabledVerifierPasses(t *testing.T) {
	v := NewVerifier("", "")
	if v.Enabled() {
		t.Error("Verifier without a URL should be disabled")
	}
	if err := v.Verify("", "10.0.0.1"); err != nil {
		t.Errorf("Disabled verifier should pass: %v", err)
	}
}

// ============================================
// Provider Interaction Tests
// ============================================

func TestVerifySuccess(t *testing.T) {
	var gotSecret, gotResponse, gotIP string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotSecret = r.PostFormValue("secret")
		gotResponse = r.PostFormValue("response")
		gotIP = r.PostFormValue("remoteip")
		w.Write([]byte(`{"success":true}`))
	}))
	defer provider.Close()

	v := NewVerifier(provider.URL, "shh")
	if err := v.Verify("challenge-token", "10.0.0.1"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if gotSecret != "shh" || gotResponse != "challenge-token" || gotIP != "10.0.0.1" {
		t.Errorf("Provider received secret=%q response=%q remoteip=%q", gotSecret, gotResponse, gotIP)
	}
}

func TestVerifyProviderRejects(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer provider.Close()

	v := NewVerifier(provider.URL, "shh")
	if err := v.Verify("bad-token", ""); err == nil {
		t.Error("Rejected challenge should fail verification")
	}
}

// ============================================
// Fail Closed Tests
// ============================================

func TestVerifyEmptyResponseFailsWhenEnabled(t *testing.T) {
	v := NewVerifier("http://127.0.0.1:1/siteverify", "shh")
	if err := v.Verify("", "10.0.0.1"); err == nil {
		t.Error("Empty challenge response should fail when a provider is configured")
	}
}

func TestVerifyProviderUnreachableFailsClosed(t *testing.T) {
	// Nothing listens here; the request errors immediately.
	v := NewVerifier("http://127.0.0.1:1/siteverify", "shh")
	if err := v.Verify("challenge-token", "10.0.0.1"); err == nil {
		t.Error("Provider outage should deny the login")
	}
}

func TestVerifyProviderErrorStatusFailsClosed(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer provider.Close()

	v := NewVerifier(provider.URL, "shh")
	if err := v.Verify("challenge-token", ""); err == nil {
		t.Error("Provider 500 should deny the login")
	}
}

func TestVerifyMalformedBodyFailsClosed(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer provider.Close()

	v := NewVerifier(provider.URL, "shh")
	if err := v.Verify("challenge-token", ""); err == nil {
		t.Error("Undecodable provider response should deny the login")
	}
}
