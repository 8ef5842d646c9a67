package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hmacSHA256Hex signs the raw body with the shared secret.
func hmacSHA256Hex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// hmacSHA1Hex signs the raw body with the shared secret.
func hmacSHA1Hex(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureMatches compares two hex signatures in constant time, tolerating
// an optional "sha1="/"sha256=" algorithm prefix on the presented value.
func signatureMatches(presented, expected string) bool {
	presented = strings.TrimSpace(presented)
	for _, prefix := range []string{"sha256=", "sha1="} {
		if strings.HasPrefix(presented, prefix) {
			presented = presented[len(prefix):]
			break
		}
	}
	return hmac.Equal([]byte(strings.ToLower(presented)), []byte(strings.ToLower(expected)))
}
