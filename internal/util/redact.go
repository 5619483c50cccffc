package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the first 16 hex chars of sha256(s). Used wherever a
// key or token must appear in logs without revealing its content.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// RedactKey keeps the function segment of a storage key readable and
// fingerprints the rest: "tokens_<secret>_0" -> "tokens:3f2a...".
func RedactKey(storageKey string) string {
	fn, rest, ok := strings.Cut(storageKey, "_")
	if !ok {
		return Fingerprint(storageKey)
	}
	return fn + ":" + Fingerprint(rest)
}
