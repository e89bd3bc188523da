// Package hash computes the hex content digests used as content-table row keys.
package hash

import (
	"crypto"
	_ "crypto/sha1"   // registers crypto.SHA1
	_ "crypto/sha256" // registers crypto.SHA256
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Supported digest algorithms.
const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
)

// ErrUnsupportedAlgorithm reports a digest algorithm that is unknown or not linked
// into the binary. It is a startup configuration error.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// Hasher implements crawl.Hasher. SHA-1 is the default.
type Hasher struct {
	name string
	algo crypto.Hash
}

// New returns a Hasher for the named algorithm. An empty name selects SHA-1.
func New(name string) (*Hasher, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	var algo crypto.Hash
	switch normalized {
	case "", AlgorithmSHA1:
		normalized, algo = AlgorithmSHA1, crypto.SHA1
	case AlgorithmSHA256:
		algo = crypto.SHA256
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	if !algo.Available() {
		return nil, fmt.Errorf("%w: %s is not linked", ErrUnsupportedAlgorithm, normalized)
	}
	return &Hasher{name: normalized, algo: algo}, nil
}

// Digest hashes data and returns the lowercase hex digest.
func (h *Hasher) Digest(data []byte) string {
	d := h.algo.New()
	d.Write(data) //nolint:errcheck // hash.Hash writes never fail
	return hex.EncodeToString(d.Sum(nil))
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string {
	return h.name
}

// KeyLen returns the length of the hex digest.
func (h *Hasher) KeyLen() int {
	return h.algo.Size() * 2
}
