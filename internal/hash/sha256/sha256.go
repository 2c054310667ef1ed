// Package sha256 content-addresses archived pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// Hasher implements archive.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of data.
func (*Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ShardedPath returns prefix/ab/cd/abcd...ext for digest. Digests shorter
// than four characters are not sharded.
func ShardedPath(prefix, digest, ext string) string {
	if len(digest) < 4 {
		return path.Join(prefix, digest+ext)
	}
	return path.Join(prefix, digest[:2], digest[2:4], digest+ext)
}
