package vrf

import (
	"fmt"
	"log"
	"sync"

	atomiqcrypto "github.com/atomiq/atomiq/crypto"
)

// KeyStore is the narrow persistence interface Engine needs: load the
// persisted keypair (if any) and save a freshly generated one exactly
// once. storage.Engine implements this by reading/writing the
// "vrf:keypair" row described in the storage key schema.
type KeyStore interface {
	LoadVRFKeyPair() (seed atomiqcrypto.Seed, ok bool, err error)
	SaveVRFKeyPair(seed atomiqcrypto.Seed) error
}

// Bundle is the (output, proof, public_key, input_message) tuple spec §4.2
// / §6 calls the VRF bundle — everything a third party needs to
// independently verify a game result.
type Bundle struct {
	Output       atomiqcrypto.Hash      `json:"vrf_output"`
	Proof        atomiqcrypto.Signature `json:"vrf_proof"`
	PublicKey    atomiqcrypto.PublicKey `json:"public_key"`
	InputMessage string                 `json:"input_message"`
}

// Engine holds the persistent signing keypair. It is the sole holder of
// the secret seed; signing is stateless with respect to callers.
type Engine struct {
	mu   sync.RWMutex
	seed atomiqcrypto.Seed
	pub  atomiqcrypto.PublicKey
}

// Bootstrap loads the keypair from store, or generates and persists a
// fresh one if absent, before returning. The public key this returns is
// stable across restarts for the lifetime of the store (spec §4.2 "Key
// lifecycle").
func Bootstrap(store KeyStore) (*Engine, error) {
	seed, ok, err := store.LoadVRFKeyPair()
	if err != nil {
		return nil, fmt.Errorf("vrf: load keypair: %w", err)
	}
	if !ok {
		seed, err = atomiqcrypto.GenerateSeed()
		if err != nil {
			return nil, fmt.Errorf("vrf: generate keypair: %w", err)
		}
		if err := store.SaveVRFKeyPair(seed); err != nil {
			return nil, fmt.Errorf("vrf: persist keypair: %w", err)
		}
		log.Printf("[vrf] generated new signer keypair, public key %s", seed.Public().Hex())
	} else {
		log.Printf("[vrf] loaded signer keypair, public key %s", seed.Public().Hex())
	}
	return &Engine{seed: seed, pub: seed.Public()}, nil
}

// PublicKey returns the signer's persisted public key.
func (e *Engine) PublicKey() atomiqcrypto.PublicKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pub
}

// Sign deterministically signs message and derives the VRF output as
// sha256(proof).
func (e *Engine) Sign(message []byte) (proof atomiqcrypto.Signature, output atomiqcrypto.Hash) {
	e.mu.RLock()
	priv := e.seed.PrivateKey()
	e.mu.RUnlock()
	proof = atomiqcrypto.Sign(priv, message)
	output = atomiqcrypto.Sum(proof[:])
	return proof, output
}

// SignBundle signs inputMessage and assembles the full verifiable Bundle.
func (e *Engine) SignBundle(inputMessage string) Bundle {
	proof, output := e.Sign([]byte(inputMessage))
	return Bundle{
		Output:       output,
		Proof:        proof,
		PublicKey:    e.PublicKey(),
		InputMessage: inputMessage,
	}
}

// Verify checks that proof is a valid ed25519 signature of message under
// pub and that output == sha256(proof). This is the stateless
// verification routine spec §4.2 requires; it never touches the Engine's
// secret state.
func Verify(pub atomiqcrypto.PublicKey, message []byte, proof atomiqcrypto.Signature, output atomiqcrypto.Hash) error {
	if err := atomiqcrypto.Verify(pub, message, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if atomiqcrypto.Sum(proof[:]) != output {
		return ErrOutputMismatch
	}
	return nil
}

// VerifyBundle reconstructs the expected input message from the supplied
// block context and checks it byte-for-byte against b.InputMessage before
// delegating to Verify, fully implementing the §6 "VRF verification
// recipe".
func VerifyBundle(b Bundle, txID uint64, gameType, playerAddress string, previousBlockHash atomiqcrypto.Hash, blockHeight uint64, blockTimestampMS int64) error {
	expected := InputMessage(txID, gameType, playerAddress, previousBlockHash, blockHeight, blockTimestampMS)
	if expected != b.InputMessage {
		return ErrInputMessageMismatch
	}
	return Verify(b.PublicKey, []byte(b.InputMessage), b.Proof, b.Output)
}

// CoinFromOutput derives the coin-flip result from the VRF output's first
// byte parity: even → heads, odd → tails.
func CoinFromOutput(output atomiqcrypto.Hash) string {
	if output[0]%2 == 0 {
		return "heads"
	}
	return "tails"
}
