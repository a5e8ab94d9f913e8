package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

// computeDigest returns the hex-encoded sha256 of data, used by Template to
// fingerprint its on-disk content so DecisionLog entries (§4.E) can record
// which exact prompt template version produced a given decision.
func computeDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
