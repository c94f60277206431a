package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA256 Square attaches to webhooks.
const SignatureHeader = "x-square-hmacsha256-signature"

// Sign computes the Square webhook signature over notificationURL + body.
func Sign(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the payload.
func VerifySignature(signatureKey, notificationURL string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signatureKey == "" || signature == "" {
		return false
	}
	expected := Sign(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
