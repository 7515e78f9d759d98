package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the provider's hex-encoded HMAC-SHA256 signature over
// "intentID|paymentID" with the given secret. Exposed for tests and for the
// sandbox provider used in local development.
func Sign(secret []byte, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature recomputes the HMAC and compares it to the claimed
// signature in constant time. The claimed value is hex-decoded first so the
// comparison runs over raw MAC bytes.
func verifySignature(secret []byte, intentID, paymentID, claimed string) bool {
	claimedMAC, err := hex.DecodeString(claimed)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	expected := mac.Sum(nil)

	return hmac.Equal(expected, claimedMAC)
}
