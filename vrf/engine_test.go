package vrf

import (
	"testing"

	"github.com/atomiq/atomiq/crypto"
)

type memKeyStore struct {
	seed crypto.Seed
	ok   bool
}

func (m *memKeyStore) LoadVRFKeyPair() (crypto.Seed, bool, error) { return m.seed, m.ok, nil }
func (m *memKeyStore) SaveVRFKeyPair(seed crypto.Seed) error {
	m.seed, m.ok = seed, true
	return nil
}

func TestBootstrapGeneratesThenPersists(t *testing.T) {
	store := &memKeyStore{}
	e1, err := Bootstrap(store)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	e2, err := Bootstrap(store)
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if e1.PublicKey().Hex() != e2.PublicKey().Hex() {
		t.Error("reopening the same store should recover the same public key")
	}
}

func TestSignBundleDeterministic(t *testing.T) {
	e, err := Bootstrap(&memKeyStore{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	msg := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	b1 := e.SignBundle(msg)
	b2 := e.SignBundle(msg)
	if b1.Output != b2.Output || b1.Proof != b2.Proof {
		t.Error("signing the same input message twice should be deterministic")
	}
}

func TestVerifyBundleRoundTrip(t *testing.T) {
	e, _ := Bootstrap(&memKeyStore{})
	msg := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	bundle := e.SignBundle(msg)

	if err := VerifyBundle(bundle, 1, "coinflip", "p1", crypto.Hash{}, 1, 1000); err != nil {
		t.Errorf("VerifyBundle: %v", err)
	}
}

func TestVerifyBundleRejectsInputMessageMismatch(t *testing.T) {
	e, _ := Bootstrap(&memKeyStore{})
	msg := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	bundle := e.SignBundle(msg)

	err := VerifyBundle(bundle, 2 /* wrong tx id */, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	if err != ErrInputMessageMismatch {
		t.Errorf("expected ErrInputMessageMismatch, got %v", err)
	}
}

func TestVerifyBundleRejectsTamperedSignature(t *testing.T) {
	e, _ := Bootstrap(&memKeyStore{})
	msg := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	bundle := e.SignBundle(msg)
	bundle.Proof[0] ^= 0xFF

	if err := VerifyBundle(bundle, 1, "coinflip", "p1", crypto.Hash{}, 1, 1000); err == nil {
		t.Error("tampered proof should fail verification")
	}
}

func TestVerifyBundleRejectsTamperedPublicKey(t *testing.T) {
	e, _ := Bootstrap(&memKeyStore{})
	other, _ := Bootstrap(&memKeyStore{})
	msg := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	bundle := e.SignBundle(msg)
	bundle.PublicKey = other.PublicKey()

	if err := VerifyBundle(bundle, 1, "coinflip", "p1", crypto.Hash{}, 1, 1000); err == nil {
		t.Error("substituting a different public key should fail verification")
	}
}

func TestCoinFromOutputParity(t *testing.T) {
	even := crypto.Hash{}
	even[0] = 0
	if CoinFromOutput(even) != "heads" {
		t.Error("even first byte should produce heads")
	}
	odd := crypto.Hash{}
	odd[0] = 1
	if CoinFromOutput(odd) != "tails" {
		t.Error("odd first byte should produce tails")
	}
}

func TestInputMessageBindsBlockContext(t *testing.T) {
	a := InputMessage(1, "coinflip", "p1", crypto.Hash{}, 1, 1000)
	b := InputMessage(1, "coinflip", "p1", crypto.Sum([]byte("other")), 1, 1000)
	if a == b {
		t.Error("input message must bind to the previous block hash")
	}
}
