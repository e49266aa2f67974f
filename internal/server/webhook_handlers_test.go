package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHubSignature(t *testing.T) {
	secret := "hook-secret"
	body := []byte(`{"ref":"refs/heads/main"}`)

	if !verifyHubSignature(secret, body, sign(secret, body)) {
		t.Error("valid signature should verify")
	}
	if verifyHubSignature("other-secret", body, sign(secret, body)) {
		t.Error("signature from a different secret must fail")
	}
	if verifyHubSignature(secret, []byte(`{"tampered":true}`), sign(secret, body)) {
		t.Error("signature over a different body must fail")
	}
}

func TestVerifyHubSignature_MalformedHeader(t *testing.T) {
	secret := "hook-secret"
	body := []byte(`{}`)

	cases := []string{
		"",
		"sha1=deadbeef",
		"deadbeef",
		"sha256=",
		"sha256=not-hex!",
	}
	for _, header := range cases {
		if verifyHubSignature(secret, body, header) {
			t.Errorf("header %q must fail verification", header)
		}
	}
}
