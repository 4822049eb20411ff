package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Sign returns the header value for body under secret.
func Sign(body []byte, secret string) string {
	return "sha256=" + computeHMACSHA256(body, secret)
}

// verifySignature checks a "sha256=<hex>" header value in constant time. A
// bare hex digest is accepted too.
func verifySignature(body []byte, header string, secret string) bool {
	signature := strings.TrimSpace(header)
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := computeHMACSHA256(body, secret)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}

func computeHMACSHA256(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
