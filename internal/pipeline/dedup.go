package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// dedupKey derives a stable idempotency key for one side effect on one email.
// The same email, action type and normalized payload always hash to the same
// key, so a retried run can detect an already-recorded success.
func dedupKey(emailID, actionType string, payload ...string) string {
	h := sha256.New()
	h.Write([]byte(emailID))
	h.Write([]byte{0})
	h.Write([]byte(actionType))
	for _, part := range payload {
		h.Write([]byte{0})
		h.Write([]byte(normalizePayload(part)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePayload collapses whitespace and case so cosmetic differences do
// not defeat deduplication.
func normalizePayload(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
