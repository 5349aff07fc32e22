// Package checksum fingerprints file contents and embedding inputs so
// unchanged records can be skipped on reindex.
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

// Text returns the digest of the given parts joined by a NUL separator, so
// ("ab", "c") and ("a", "bc") differ.
func Text(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
