package chain

import "github.com/atomiq/atomiq/crypto"

// MerkleRoot builds a binary Merkle root over leaves, duplicating the last
// leaf at each odd-sized level so every level has an even node count. An
// empty leaf set yields the all-zero root.
func MerkleRoot(leaves []crypto.Hash) crypto.Hash {
	if len(leaves) == 0 {
		return crypto.Hash{}
	}
	level := make([]crypto.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]crypto.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = crypto.Sum(concat(level[2*i][:], level[2*i+1][:]))
		}
		level = next
	}
	return level[0]
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// TransactionsRoot computes the Merkle root over a block's transaction
// hashes, in transaction order.
func TransactionsRoot(txs []*Transaction) crypto.Hash {
	if len(txs) == 0 {
		return crypto.Hash{}
	}
	leaves := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.Hash()
	}
	return MerkleRoot(leaves)
}
