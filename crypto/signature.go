package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signature is a raw 64-byte ed25519 signature, hex-encoded in JSON.
type Signature [ed25519.SignatureSize]byte

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// MarshalJSON renders s as a lowercase hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses a lowercase hex string into s.
func (s *Signature) UnmarshalJSON(data []byte) error {
	str, err := unquoteHex(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	if len(b) != len(s) {
		return fmt.Errorf("crypto: signature must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return nil
}

// Sign signs data with priv and returns the raw ed25519 signature.
func Sign(priv ed25519.PrivateKey, data []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(priv, data))
	return sig
}

// Verify checks a raw signature against data using the public key.
func Verify(pub PublicKey, data []byte, sig Signature) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("crypto: invalid public key length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig[:]) {
		return errors.New("crypto: signature verification failed")
	}
	return nil
}
