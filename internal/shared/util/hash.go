package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentFingerprint returns the hex SHA-256 of a document's extracted text.
// Identical content always yields the same fingerprint.
func ContentFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
