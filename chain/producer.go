package chain

import (
	"fmt"
	"log"
	"time"

	"github.com/atomiq/atomiq/crypto"
)

// BlockStore is the narrow storage interface the Producer needs: read the
// chain tip, read back blocks for startup state-rebuild, commit new
// blocks atomically, and prune. storage.Engine satisfies this.
type BlockStore interface {
	LatestHeight() (height uint64, ok bool, err error)
	LatestHash() (hash crypto.Hash, ok bool, err error)
	GetBlockByHeight(height uint64) (*Block, error)
	GetGameResult(txID uint64) (*GameResult, error)
	CommitBlock(block *Block, results []*GameResult) error
	Prune(maxStorageSizeMB int) error
}

// ProducerConfig carries the DirectCommit tunables.
type ProducerConfig struct {
	Interval         time.Duration
	MaxTxPerBlock    int
	EmptyBlocks      bool
	MaxStorageSizeMB int
}

// Producer is the single-validator DirectCommit block-production
// pipeline: snapshot, drain, execute, assemble, commit, publish, run on a
// fixed tick. Generalizes the teacher's PoA.ProduceBlock/Run, dropping
// the proposer-rotation and block-signature steps a single-validator
// chain has no use for.
type Producer struct {
	cfg ProducerConfig

	store BlockStore
	pool  *Pool
	state *State
	game  *GameProcessor
	bus   *Bus

	nowMS func() int64

	height       uint64
	previousHash crypto.Hash

	// onCommitted, if set, runs synchronously after every successful
	// commit, before the bus event is published.
	onCommitted func(*Block)
}

// NewProducer rebuilds State and the GameProcessor's result index from
// every block already committed to store — application state is never
// itself persisted, only rebuilt by replaying committed blocks — and
// returns a Producer positioned at the current tip.
func NewProducer(cfg ProducerConfig, store BlockStore, pool *Pool, game *GameProcessor, bus *Bus) (*Producer, error) {
	p := &Producer{
		cfg:          cfg,
		store:        store,
		pool:         pool,
		state:        NewState(),
		game:         game,
		bus:          bus,
		nowMS:        nowMillis,
		previousHash: ZeroHash,
	}

	height, ok, err := store.LatestHeight()
	if err != nil {
		return nil, fmt.Errorf("chain: read latest height: %w", err)
	}
	if !ok {
		return p, nil
	}

	for h := uint64(1); h <= height; h++ {
		block, err := store.GetBlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("chain: replay block %d: %w", h, err)
		}
		if block.PreviousBlockHash != p.previousHash {
			log.Fatalf("[chain] FATAL: block %d previous_block_hash %s does not match block %d's hash %s: %v",
				h, block.PreviousBlockHash, h-1, p.previousHash, ErrChainLinkage)
		}
		for _, tx := range block.Transactions {
			p.state.Apply(tx)
			if tx.Type != TxGameBet {
				continue
			}
			res, err := store.GetGameResult(tx.ID)
			if err != nil {
				return nil, fmt.Errorf("chain: replay game result for tx %d: %w", tx.ID, err)
			}
			game.LoadFinalized(res)
			if res.Outcome == "win" {
				p.state.ApplyPayout(res.PlayerID, res.Payout)
			}
		}
		if err := block.VerifyIntegrity(p.state.ComputeRoot()); err != nil {
			log.Fatalf("[chain] FATAL: block %d failed integrity verification on replay: %v", h, err)
		}
		p.height = block.Height
		p.previousHash = block.BlockHash
	}

	hash, ok, err := store.LatestHash()
	if err != nil {
		return nil, fmt.Errorf("chain: read latest hash: %w", err)
	}
	if ok {
		p.previousHash = hash
	}
	log.Printf("[chain] replayed %d blocks, resuming at height %d", height, p.height)
	return p, nil
}

// OnCommitted registers a callback invoked synchronously after each
// successful block commit.
func (p *Producer) OnCommitted(fn func(*Block)) {
	p.onCommitted = fn
}

// Height returns the current chain tip height.
func (p *Producer) Height() uint64 { return p.height }

// NextNonce returns the nonce a new transaction from sender must carry to
// be accepted by the next tick, letting a submit handler build a valid
// transaction without reaching into Producer internals.
func (p *Producer) NextNonce(sender string) uint64 { return p.state.NextNonce(sender) }

// Run starts the fixed-interval tick loop. It blocks until done is
// closed.
func (p *Producer) Run(done <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				log.Printf("[chain] tick error: %v", err)
			}
		}
	}
}

// Tick runs one DirectCommit cycle. It produces no block (returns nil)
// when the pool is empty and EmptyBlocks is false.
func (p *Producer) Tick() error {
	txs := p.pool.Drain(p.cfg.MaxTxPerBlock)
	if len(txs) == 0 && !p.cfg.EmptyBlocks {
		return nil
	}

	snap := p.state.Snapshot()
	now := p.nowMS()
	nextHeight := p.height + 1

	var accepted []*Transaction
	var results []*GameResult
	for _, tx := range txs {
		if err := p.executeTx(tx, nextHeight, now, &results); err != nil {
			log.Printf("[chain] dropping tx %d: %v", tx.ID, err)
			continue
		}
		accepted = append(accepted, tx)
	}

	block := NewBlock(nextHeight, p.previousHash, now, accepted)
	block.StateRootHash = p.state.ComputeRoot()
	block.Finalize()

	for _, res := range results {
		res.BlockHash = block.BlockHash
		res.Timestamp = block.Timestamp
	}
	if err := p.store.CommitBlock(block, results); err != nil {
		if rbErr := p.state.RevertToSnapshot(snap); rbErr != nil {
			log.Printf("[chain] FATAL: state rollback failed after commit failure: %v", rbErr)
		}
		return fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}
	p.state.DiscardSnapshots()

	p.height = block.Height
	p.previousHash = block.BlockHash
	p.game.Finalize(block.BlockHash, block.Timestamp, results)

	if p.onCommitted != nil {
		p.onCommitted(block)
	}
	p.bus.Publish(BlockCommittedEvent{
		Height:       block.Height,
		BlockHash:    block.BlockHash,
		Transactions: block.Transactions,
		Timestamp:    block.Timestamp,
	})

	if err := p.store.Prune(p.cfg.MaxStorageSizeMB); err != nil {
		log.Printf("[chain] prune error: %v", err)
	}
	return nil
}

// executeTx validates and applies a single transaction's nonce effect,
// running the VRF bet path for TxGameBet and appending its result.
// previousHash — the block preceding the one being assembled — is what
// the VRF input message binds to, per the canonical block-bound format.
func (p *Producer) executeTx(tx *Transaction, pendingHeight uint64, blockTimestampMS int64, results *[]*GameResult) error {
	if err := p.state.ValidateNonce(tx.Sender, tx.Nonce); err != nil {
		return err
	}

	if tx.Type == TxGameBet {
		bet, err := DecodeGameBet(tx.Data)
		if err != nil {
			return err
		}
		res := p.game.ExecuteBet(tx, bet, p.previousHash, pendingHeight, blockTimestampMS)
		if res.Outcome == "win" {
			p.state.ApplyPayout(bet.PlayerID, res.Payout)
		}
		*results = append(*results, res)
	}

	p.state.AdvanceNonce(tx.Sender, tx.Nonce)
	return nil
}
