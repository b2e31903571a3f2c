package chain

import (
	"testing"

	"github.com/atomiq/atomiq/crypto"
)

// memStore is a minimal in-package BlockStore double, avoiding a dependency
// on the storage package (which would be a cyclic import) for producer
// unit tests.
type memStore struct {
	blocks  map[uint64]*Block
	results map[uint64]*GameResult
	height  uint64
	hash    crypto.Hash
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[uint64]*Block), results: make(map[uint64]*GameResult)}
}

func (m *memStore) LatestHeight() (uint64, bool, error) { return m.height, m.height > 0, nil }
func (m *memStore) LatestHash() (crypto.Hash, bool, error) {
	return m.hash, m.height > 0, nil
}
func (m *memStore) GetBlockByHeight(h uint64) (*Block, error) {
	b, ok := m.blocks[h]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}
func (m *memStore) GetGameResult(txID uint64) (*GameResult, error) {
	r, ok := m.results[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}
func (m *memStore) CommitBlock(b *Block, results []*GameResult) error {
	m.blocks[b.Height] = b
	for _, r := range results {
		m.results[r.TxID] = r
	}
	m.height = b.Height
	m.hash = b.BlockHash
	return nil
}
func (m *memStore) Prune(int) error { return nil }

func newTestProducer(t *testing.T, store BlockStore) (*Pool, *Producer, *GameProcessor, *Bus) {
	t.Helper()
	pool := NewPool(PoolConfig{MaxPoolSize: 100, MaxTxDataSize: 1024}, func() int64 { return 1000 })
	game := NewGameProcessor(newTestEngine(t))
	bus := NewBus(4)
	producer, err := NewProducer(ProducerConfig{MaxTxPerBlock: 10, EmptyBlocks: false}, store, pool, game, bus)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	return pool, producer, game, bus
}

func TestProducerTickCommitsBlockAndPublishes(t *testing.T) {
	pool, producer, game, bus := newTestProducer(t, newMemStore())
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	data, _ := NewGameBetData(GameBetPayload{GameType: "coinflip", PlayerID: "p1", Choice: "heads", TokenSymbol: "SOL", BetAmount: 1})
	txID, err := pool.Submit("p1", data, producer.NextNonce("p1"), TxGameBet)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := producer.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if producer.Height() != 1 {
		t.Fatalf("Height: got %d want 1", producer.Height())
	}

	if _, ok := game.GetByTxID(txID); !ok {
		t.Error("game result should be finalized after commit")
	}

	ev, ok := sub.Recv()
	if !ok || !ev.ContainsTx(txID) {
		t.Error("expected a BlockCommittedEvent naming the submitted transaction")
	}
}

func TestProducerSkipsEmptyTickWhenDisabled(t *testing.T) {
	_, producer, _, _ := newTestProducer(t, newMemStore())
	if err := producer.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if producer.Height() != 0 {
		t.Errorf("Height should remain 0 with an empty pool and EmptyBlocks=false, got %d", producer.Height())
	}
}

func TestProducerDropsInvalidNonceWithoutAdvancing(t *testing.T) {
	pool, producer, _, _ := newTestProducer(t, newMemStore())
	// Submitting with a stale nonce directly (bypassing NextNonce) to
	// simulate a replayed transaction.
	data, _ := NewGameBetData(GameBetPayload{GameType: "coinflip", PlayerID: "p1", Choice: "heads", TokenSymbol: "SOL", BetAmount: 1})
	if _, err := pool.Submit("p1", data, 5, TxGameBet); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := producer.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if producer.Height() != 1 {
		t.Fatalf("Height: got %d want 1", producer.Height())
	}
	if producer.NextNonce("p1") != 1 {
		t.Error("an invalid-nonce transaction must not be applied to state")
	}
}

func TestProducerReplayRebuildsStateAndGameResults(t *testing.T) {
	store := newMemStore()
	pool, producer, _, _ := newTestProducer(t, store)

	data, _ := NewGameBetData(GameBetPayload{GameType: "coinflip", PlayerID: "p1", Choice: "heads", TokenSymbol: "SOL", BetAmount: 1})
	txID, _ := pool.Submit("p1", data, producer.NextNonce("p1"), TxGameBet)
	if err := producer.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Simulate a restart: a fresh Producer/GameProcessor pair replaying the
	// same store.
	pool2 := NewPool(PoolConfig{MaxPoolSize: 100, MaxTxDataSize: 1024}, func() int64 { return 2000 })
	game2 := NewGameProcessor(newTestEngine(t))
	bus2 := NewBus(4)
	producer2, err := NewProducer(ProducerConfig{MaxTxPerBlock: 10, EmptyBlocks: false}, store, pool2, game2, bus2)
	if err != nil {
		t.Fatalf("NewProducer (replay): %v", err)
	}

	if producer2.Height() != 1 {
		t.Fatalf("replayed height: got %d want 1", producer2.Height())
	}
	if producer2.NextNonce("p1") != 2 {
		t.Errorf("replayed nonce: got %d want 2", producer2.NextNonce("p1"))
	}
	if _, ok := game2.GetByTxID(txID); !ok {
		t.Error("replay should re-seed the game result index from storage")
	}
}
