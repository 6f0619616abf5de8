package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a stable hex digest of s, used wherever an identifier must
// not appear in clear (logs, storage paths).
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 hex characters of HashKey(s).
func ShortHash(s string) string {
	if s == "" {
		return ""
	}
	return HashKey(s)[:12]
}
