// Package blake2b provides the call-parameter digest used to key the call log.
package blake2b

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DigestBytes is the number of digest bytes kept; the hex form is twice as long.
const DigestBytes = 8

// Hasher implements a truncated BLAKE2b-512 digest.
type Hasher struct{}

// New returns a BLAKE2b hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns the first DigestBytes of the digest as hex.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := blake2b.Sum512(data)
	return hex.EncodeToString(sum[:DigestBytes]), nil
}

// HashJSON digests the JSON encoding of v. Map keys are emitted sorted by
// encoding/json, so equal parameter objects always produce equal digests.
func (h *Hasher) HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	return h.Hash(data)
}
