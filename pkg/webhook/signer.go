package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hashSecret derives a one-way hash of the raw secret for storage. SHA-256
// rather than bcrypt: the hash itself must be re-derivable as an HMAC key on
// every delivery, which a salted bcrypt hash can't give back.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// sign computes the hex-encoded HMAC-SHA256 signature of payload using key
// as the HMAC key (the webhook's stored secret hash).
func sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound X-EAP-Signature-256 value against the
// payload and the webhook's stored secret hash, using a constant-time
// comparison.
func VerifySignature(payload []byte, secretHash, signature string) bool {
	expected := sign(payload, secretHash)
	return hmac.Equal([]byte(expected), []byte(signature))
}
