package vrf

import "errors"

// Verification errors, returned verbatim to the verifier (spec §7).
var (
	ErrSignatureInvalid     = errors.New("vrf: signature invalid")
	ErrOutputMismatch       = errors.New("vrf: output does not match sha256(proof)")
	ErrCoinMismatch         = errors.New("vrf: coin result does not match output parity")
	ErrInputMessageMismatch = errors.New("vrf: recomputed input message does not match stored message")
)
