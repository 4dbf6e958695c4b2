package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/liquidlab/liquidspec/internal/wire"
)

// Domain prefix for output hashes. Version suffix enables future
// algorithm migration without ambiguity against old rows.
const domainOutput = "liquidspec/output/v1"

// OutputHash computes a content hash for a rendered output string.
// The value is canonicalized before hashing so the hash is stable across
// engines that agree on output but differ in JSON encoding details.
//
// Format: SHA256(domain + 0x00 + canonical(output))
// The null byte separator prevents domain/data boundary ambiguity.
func OutputHash(output string) (string, error) {
	canonical, err := wire.MarshalCanonical(output)
	if err != nil {
		return "", fmt.Errorf("OutputHash: failed to marshal: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domainOutput))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustOutputHash is like OutputHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustOutputHash(output string) string {
	hash, err := OutputHash(output)
	if err != nil {
		panic(err)
	}
	return hash
}
