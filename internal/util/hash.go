package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashContent returns the hex-encoded SHA-256 digest of the trimmed text.
// Chunk and document rows carry this hash for change detection and dedupe.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
