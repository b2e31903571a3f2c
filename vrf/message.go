// Package vrf implements the per-transaction verifiable random function: a
// persistent ed25519 signer whose signature over a block-bound canonical
// message is deterministic and independently re-derivable by anyone
// holding the committed block.
package vrf

import (
	"fmt"

	"github.com/atomiq/atomiq/crypto"
)

// InputMessage builds the exact canonical VRF input string for a game
// transaction, byte-for-byte per the block-bound format. It binds the
// pending block's height and timestamp and the *previous* block's hash,
// so the message is unpredictable at submission time (only the producer
// knows block placement) yet deterministically reproducible once the
// block is committed.
func InputMessage(txID uint64, gameType, playerAddress string, previousBlockHash crypto.Hash, pendingBlockHeight uint64, blockTimestampMS int64) string {
	return fmt.Sprintf(
		"tx-%d:%s:%s:block_hash:%s,tx:%d,height:%d,time:%d",
		txID, gameType, playerAddress,
		previousBlockHash.String(),
		txID, pendingBlockHeight, blockTimestampMS,
	)
}
