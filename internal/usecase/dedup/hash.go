// Package dedup implements the three deduplication layers applied to each
// collection batch: in-batch hashes, same-day processed articles, and the
// historical published-URL set.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashContentPrefix bounds how much body text participates in the hash so
// near-identical reposts with trailing noise still collide.
const hashContentPrefix = 500

// HashContent returns the lowercase hex SHA-256 of the trimmed title
// concatenated with the first 500 runes of the trimmed content. The hash
// is deterministic across runs and processes.
func HashContent(title, content string) string {
	t := strings.TrimSpace(title)
	c := strings.TrimSpace(content)
	if runes := []rune(c); len(runes) > hashContentPrefix {
		c = string(runes[:hashContentPrefix])
	}
	sum := sha256.Sum256([]byte(t + c))
	return hex.EncodeToString(sum[:])
}

// HashContentAny hashes dynamic payload values. It returns "" unless both
// arguments are strings; the filters treat "" as never matching, so
// malformed payloads pass through instead of colliding with each other.
// Empty strings are valid input and hash like any other.
func HashContentAny(title, content any) string {
	t, ok := title.(string)
	if !ok {
		return ""
	}
	c, ok := content.(string)
	if !ok {
		return ""
	}
	return HashContent(t, c)
}
