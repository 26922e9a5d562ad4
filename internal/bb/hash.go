package bb

import (
	"crypto/sha256"
	"encoding/hex"
)

// PathHashLen is the length of a PathHash result.
const PathHashLen = sha256.Size * 2

// PathHash returns the hex SHA-256 of a logical path. Cache keys and asset
// file names are both derived this way.
func PathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// IsPathHash reports whether s has the shape of a PathHash result.
func IsPathHash(s string) bool {
	if len(s) != PathHashLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
