// Package checksum derives stable content digests used as cache keys.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key returns the analysis cache key for an operation over content,
// in the form "ai:<op>:<sha256>".
func Key(op, content string) string {
	return "ai:" + op + ":" + Sum([]byte(content))
}
