// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// DigestLen is the length of a hex-encoded SHA-256 digest.
const DigestLen = 64

// Hasher produces lowercase hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashReader consumes r and returns the hex digest of its contents.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	digest := sha256.New()
	if _, err := io.Copy(digest, r); err != nil {
		return "", fmt.Errorf("hash reader: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ValidDigest reports whether s looks like a hex SHA-256 digest. Case is
// ignored; callers normalize before storing.
func ValidDigest(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
