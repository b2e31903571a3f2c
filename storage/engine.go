package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/crypto"
)

// Key prefixes and fixed keys, exactly per the schema every deployment of
// this core agrees on byte-for-byte.
const (
	prefixBlock      = "block:height:"
	prefixHashIdx    = "hash_idx:"
	prefixTxIdx      = "tx_idx:"
	prefixGameResult = "game_result:"
	keyLatestHeight  = "chain:latest_height"
	keyLatestHash    = "chain:latest_hash"
	keyVRFKeyPair    = "vrf:keypair"
)

// recentBlocksKept is the number of most-recent blocks pruning never
// removes, regardless of how far over budget the store is.
const recentBlocksKept = 100

// pruneTargetRatio is the fraction of max_storage_size_mb pruning brings
// the store back down to.
const pruneTargetRatio = 0.9

// Sizer is implemented by DB backends that can report their on-disk size.
// Prune is a no-op against a backend that does not implement it.
type Sizer interface {
	Size() (int64, error)
}

// Engine implements the chain's storage capabilities (put_batch, get,
// scan_prefix, delete_batch, plus tip and VRF keypair accessors) and the
// block/transaction/game-result key schema over a generic DB. It is
// grounded on the teacher's StateDB.Commit db.NewBatch → Set/Delete →
// Write pattern, generalized from a dirty-state write buffer to whole
// block commits.
type Engine struct {
	db DB
}

// NewEngine wraps db as the chain's storage engine.
func NewEngine(db DB) *Engine {
	return &Engine{db: db}
}

func u64Key(prefix string, n uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], n)
	return buf
}

func hashKey(prefix string, h crypto.Hash) []byte {
	buf := make([]byte, len(prefix)+len(h))
	copy(buf, prefix)
	copy(buf[len(prefix):], h[:])
	return buf
}

func u64Bytes(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// Get reads a single raw value.
func (e *Engine) Get(key []byte) ([]byte, error) {
	return e.db.Get(key)
}

// ScanPrefix returns an ascending-order iterator over keys sharing prefix.
func (e *Engine) ScanPrefix(prefix []byte) Iterator {
	return e.db.NewIterator(prefix)
}

// PutBatch atomically writes every entry or none.
func (e *Engine) PutBatch(entries map[string][]byte) error {
	batch := e.db.NewBatch()
	for k, v := range entries {
		batch.Set([]byte(k), v)
	}
	return batch.Write()
}

// DeleteBatch atomically deletes every key or none.
func (e *Engine) DeleteBatch(keys [][]byte) error {
	batch := e.db.NewBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	return batch.Write()
}

// CommitBlock atomically writes a committed block and its game results:
// the block body, the hash index, one tx_idx row per transaction, one
// game_result row per included bet, and the new chain tip. This is the
// single all-or-nothing batch the Producer's commit step requires.
func (e *Engine) CommitBlock(block *chain.Block, results []*chain.GameResult) error {
	blockData, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("storage: marshal block: %w", err)
	}

	batch := e.db.NewBatch()
	batch.Set(u64Key(prefixBlock, block.Height), blockData)
	batch.Set(hashKey(prefixHashIdx, block.BlockHash), u64Bytes(block.Height))

	for i, tx := range block.Transactions {
		batch.Set(u64Key(prefixTxIdx, tx.ID), []byte(fmt.Sprintf("%d:%d", block.Height, i)))
	}
	for _, res := range results {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("storage: marshal game result: %w", err)
		}
		batch.Set(u64Key(prefixGameResult, res.TxID), data)
	}

	batch.Set([]byte(keyLatestHeight), u64Bytes(block.Height))
	batch.Set([]byte(keyLatestHash), block.BlockHash[:])

	return batch.Write()
}

// GetBlockByHeight reads and deserializes the block stored at height.
func (e *Engine) GetBlockByHeight(height uint64) (*chain.Block, error) {
	data, err := e.db.Get(u64Key(prefixBlock, height))
	if err != nil {
		return nil, err
	}
	var b chain.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("storage: unmarshal block: %w", err)
	}
	return &b, nil
}

// GetBlockByHash resolves hash via hash_idx then reads the block body.
func (e *Engine) GetBlockByHash(hash crypto.Hash) (*chain.Block, error) {
	val, err := e.db.Get(hashKey(prefixHashIdx, hash))
	if err != nil {
		return nil, err
	}
	if len(val) != 8 {
		return nil, fmt.Errorf("storage: corrupt hash_idx entry for %s", hash)
	}
	return e.GetBlockByHeight(binary.BigEndian.Uint64(val))
}

// GetTransaction resolves a transaction id via tx_idx, then indexes into
// the owning block's transaction slice. It never stores a transaction
// body a second time.
func (e *Engine) GetTransaction(txID uint64) (tx *chain.Transaction, height uint64, err error) {
	val, err := e.db.Get(u64Key(prefixTxIdx, txID))
	if err != nil {
		return nil, 0, err
	}
	var index int
	if _, err := fmt.Sscanf(string(val), "%d:%d", &height, &index); err != nil {
		return nil, 0, fmt.Errorf("storage: corrupt tx_idx entry for %d: %w", txID, err)
	}
	block, err := e.GetBlockByHeight(height)
	if err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(block.Transactions) {
		return nil, 0, fmt.Errorf("storage: tx_idx index %d out of range for block %d", index, height)
	}
	return block.Transactions[index], height, nil
}

// GetGameResult reads the finalized game outcome for a bet transaction.
func (e *Engine) GetGameResult(txID uint64) (*chain.GameResult, error) {
	data, err := e.db.Get(u64Key(prefixGameResult, txID))
	if err != nil {
		return nil, err
	}
	var res chain.GameResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("storage: unmarshal game result: %w", err)
	}
	return &res, nil
}

// LatestHeight returns the current chain tip height, or ok=false if no
// block has ever been committed.
func (e *Engine) LatestHeight() (height uint64, ok bool, err error) {
	val, err := e.db.Get([]byte(keyLatestHeight))
	if err == ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(val), true, nil
}

// LatestHash returns the current chain tip's block hash.
func (e *Engine) LatestHash() (hash crypto.Hash, ok bool, err error) {
	val, err := e.db.Get([]byte(keyLatestHash))
	if err == ErrNotFound {
		return crypto.Hash{}, false, nil
	}
	if err != nil {
		return crypto.Hash{}, false, err
	}
	copy(hash[:], val)
	return hash, true, nil
}

// LoadVRFKeyPair implements vrf.KeyStore.
func (e *Engine) LoadVRFKeyPair() (seed crypto.Seed, ok bool, err error) {
	val, err := e.db.Get([]byte(keyVRFKeyPair))
	if err == ErrNotFound {
		return crypto.Seed{}, false, nil
	}
	if err != nil {
		return crypto.Seed{}, false, err
	}
	if len(val) < len(crypto.Seed{}) {
		return crypto.Seed{}, false, fmt.Errorf("storage: corrupt vrf:keypair row (%d bytes)", len(val))
	}
	seed, err = crypto.SeedFromBytes(val[:len(crypto.Seed{})])
	return seed, err == nil, err
}

// SaveVRFKeyPair implements vrf.KeyStore, persisting the 32-byte secret
// seed followed by the 32-byte derived public key, exactly per the
// "vrf:keypair" row format. Bootstrap calls it only when no keypair exists;
// atomiqd's -keystore-import mode calls it to replace the stored keypair.
func (e *Engine) SaveVRFKeyPair(seed crypto.Seed) error {
	pub := seed.Public()
	row := make([]byte, 0, len(seed)+len(pub))
	row = append(row, seed[:]...)
	row = append(row, pub...)
	return e.db.Set([]byte(keyVRFKeyPair), row)
}

// Prune deletes the oldest block bodies and hash_idx entries (never
// tx_idx or game_result rows, which remain resolvable forever) once the
// store exceeds maxSizeMB, always preserving the most recent
// recentBlocksKept blocks. It stops once the serialized size of the
// removed blocks brings the measured size down to the pruneTargetRatio
// target. A backend that cannot report its size is never pruned.
func (e *Engine) Prune(maxSizeMB int) error {
	if maxSizeMB <= 0 {
		return nil
	}
	sizer, ok := e.db.(Sizer)
	if !ok {
		return nil
	}
	size, err := sizer.Size()
	if err != nil {
		return fmt.Errorf("storage: measure size: %w", err)
	}
	limit := int64(maxSizeMB) * 1024 * 1024
	if size <= limit {
		return nil
	}
	target := int64(float64(limit) * pruneTargetRatio)

	height, ok, err := e.LatestHeight()
	if err != nil || !ok || height <= recentBlocksKept {
		return err
	}

	var keys [][]byte
	var freed int64
	for h := uint64(1); h <= height-recentBlocksKept && size-freed > target; h++ {
		block, err := e.GetBlockByHeight(h)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return err
		}
		keys = append(keys, u64Key(prefixBlock, h))
		keys = append(keys, hashKey(prefixHashIdx, block.BlockHash))
		if data, err := json.Marshal(block); err == nil {
			freed += int64(len(data))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := e.DeleteBatch(keys); err != nil {
		return fmt.Errorf("storage: prune batch: %w", err)
	}
	log.Printf("[storage] pruned %d blocks, was %d bytes over a %d byte target", len(keys)/2, size-target, target)
	return nil
}
