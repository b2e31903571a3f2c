package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Seed is the 32-byte ed25519 seed persisted as the "secret" half of a
// keypair. PrivateKey (the 64-byte expanded form ed25519 actually signs
// with) is always derived from it via ed25519.NewKeyFromSeed, so only the
// seed needs to be stored.
type Seed [ed25519.SeedSize]byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// GenerateSeed generates a fresh random 32-byte ed25519 seed.
func GenerateSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("generate seed: %w", err)
	}
	return s, nil
}

// PrivateKey returns the expanded 64-byte ed25519 private key for s.
func (s Seed) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(s[:])
}

// Public returns the ed25519 public key derived from s.
func (s Seed) Public() PublicKey {
	priv := s.PrivateKey()
	return PublicKey(priv.Public().(ed25519.PublicKey))
}

// Hex returns the hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// MarshalJSON renders pub as a lowercase hex string rather than the
// []byte default of base64.
func (pub PublicKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + pub.Hex() + `"`), nil
}

// UnmarshalJSON parses a lowercase hex string into pub.
func (pub *PublicKey) UnmarshalJSON(data []byte) error {
	s, err := unquoteHex(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid pubkey hex: %w", err)
	}
	*pub = b
	return nil
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// SeedFromBytes validates and wraps a 32-byte seed.
func SeedFromBytes(b []byte) (Seed, error) {
	var s Seed
	if len(b) != ed25519.SeedSize {
		return Seed{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}
