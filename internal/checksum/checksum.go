// Package checksum computes the content digests used as document versions
// in ETag and If-Match headers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether ifMatch names the version of data. An empty
// value or "*" matches any version; surrounding ETag quotes are ignored.
func Matches(ifMatch string, data []byte) bool {
	ifMatch = strings.Trim(strings.TrimSpace(ifMatch), `"`)
	if ifMatch == "" || ifMatch == "*" {
		return true
	}
	return ifMatch == Sum(data)
}
