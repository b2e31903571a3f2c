// Package crypto wraps the primitives atomiq needs: SHA-256 hashing and
// ed25519 signing. It follows the teacher chain's split of hashing,
// key handling and signing into separate small files.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte digest that marshals to/from JSON as lowercase hex
// without a "0x" prefix, per the stable JSON contract every on-chain hash
// is part of.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalJSON renders h as a lowercase hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses a lowercase hex string into h.
func (h *Hash) UnmarshalJSON(data []byte) error {
	s, err := unquoteHex(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("crypto: invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("crypto: hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

func unquoteHex(data []byte) (string, error) {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", fmt.Errorf("crypto: expected hex string, got %q", data)
	}
	return string(data[1 : len(data)-1]), nil
}

// Sum returns the SHA-256 digest of data.
func Sum(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashBytes returns the SHA-256 digest of data as a slice.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
