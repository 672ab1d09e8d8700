package lygos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	SignatureHeader       = "X-Lygos-Signature"
	SignatureHeaderSHA256 = "X-Lygos-Signature-Sha256"
)

// SignatureFrom picks the signature header the provider sent.
func SignatureFrom(h http.Header) string {
	if s := h.Get(SignatureHeader); s != "" {
		return s
	}
	return h.Get(SignatureHeaderSHA256)
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the exact raw body. It accepts an
// optional "sha256=" prefix and never errors: anything malformed is false.
func VerifySignature(secret string, rawBody []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := mac.Sum(nil)
	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal(expected, provided)
}
