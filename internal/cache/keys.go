package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentKey derives a stable cache key from content: namespace, a colon and
// the hex SHA-256 of content. Equal content always maps to the same key
// across processes.
func ContentKey(namespace, content string) string {
	sum := sha256.Sum256([]byte(content))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
