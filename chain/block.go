package chain

import (
	"bytes"
	"encoding/binary"

	"github.com/atomiq/atomiq/crypto"
)

// ZeroHash is the canonical previous-block-hash for the genesis block
// (height 1).
var ZeroHash crypto.Hash

// Block is an immutable, hash-linked collection of transactions.
type Block struct {
	Height               uint64         `json:"height"`
	BlockHash            crypto.Hash    `json:"block_hash"`
	PreviousBlockHash    crypto.Hash    `json:"previous_block_hash"`
	Transactions         []*Transaction `json:"transactions"`
	Timestamp            int64          `json:"timestamp"` // milliseconds
	TransactionCount     int            `json:"transaction_count"`
	TransactionsRootHash crypto.Hash    `json:"transactions_root"`
	StateRootHash        crypto.Hash    `json:"state_root"`
}

// ComputeHash returns sha256(height ‖ previous_block_hash ‖
// transactions_root ‖ state_root ‖ timestamp), all multi-byte integers
// big-endian, per the block-hash formula.
func (b *Block) ComputeHash() crypto.Hash {
	var buf bytes.Buffer
	var u64 [8]byte

	binary.BigEndian.PutUint64(u64[:], b.Height)
	buf.Write(u64[:])

	buf.Write(b.PreviousBlockHash[:])
	buf.Write(b.TransactionsRootHash[:])
	buf.Write(b.StateRootHash[:])

	binary.BigEndian.PutUint64(u64[:], uint64(b.Timestamp))
	buf.Write(u64[:])

	return crypto.Sum(buf.Bytes())
}

// VerifyIntegrity recomputes TransactionsRootHash, StateRootHash (caller
// supplies the independently recomputed state root since that requires the
// full (sender,nonce) set) and BlockHash, reporting any mismatch.
// stateRoot should be recomputed by replaying the chain up to and
// including this block; pass b.StateRootHash to skip that check.
func (b *Block) VerifyIntegrity(stateRoot crypto.Hash) error {
	if txRoot := TransactionsRoot(b.Transactions); txRoot != b.TransactionsRootHash {
		return ErrTxRootMismatch
	}
	if stateRoot != b.StateRootHash {
		return ErrStateRootMismatch
	}
	if b.ComputeHash() != b.BlockHash {
		return ErrBlockHashMismatch
	}
	return nil
}

// NewBlock assembles an unsigned, unhashed block. Callers must set
// StateRootHash (via the State's ComputeRoot) before calling
// ComputeHash/Finalize.
func NewBlock(height uint64, previousBlockHash crypto.Hash, timestamp int64, txs []*Transaction) *Block {
	return &Block{
		Height:               height,
		PreviousBlockHash:    previousBlockHash,
		Transactions:         txs,
		Timestamp:            timestamp,
		TransactionCount:     len(txs),
		TransactionsRootHash: TransactionsRoot(txs),
	}
}

// Finalize computes and sets BlockHash from the block's current fields.
// Call only after StateRootHash has been assigned.
func (b *Block) Finalize() {
	b.BlockHash = b.ComputeHash()
}
