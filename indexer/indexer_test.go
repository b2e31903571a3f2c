package indexer_test

import (
	"testing"
	"time"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/crypto"
	"github.com/atomiq/atomiq/indexer"
	"github.com/atomiq/atomiq/internal/testutil"
	"github.com/atomiq/atomiq/vrf"
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

func chainTestEngine(t *testing.T) (*vrf.Engine, error) {
	t.Helper()
	return vrf.Bootstrap(&memKeyStore{})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestIndexerIndexesGameBetsByPlayer(t *testing.T) {
	db := testutil.NewMemDB()
	bus := chain.NewBus(4)
	engine, err := chainTestEngine(t)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	game := chain.NewGameProcessor(engine)

	idx := indexer.New(db, bus, game)
	defer idx.Close()

	tx := &chain.Transaction{ID: 1, Sender: "p1", Type: chain.TxGameBet}
	bet := chain.GameBetPayload{GameType: "coinflip", PlayerID: "p1", Choice: "heads", TokenSymbol: "SOL", BetAmount: 1}
	res := game.ExecuteBet(tx, bet, chain.ZeroHash, 1, 1000)
	game.Finalize(chain.ZeroHash, 1000, []*chain.GameResult{res})

	bus.Publish(chain.BlockCommittedEvent{Height: 1, Transactions: []*chain.Transaction{tx}, Timestamp: 1000})

	waitUntil(t, func() bool {
		ids, err := idx.GetResultsByPlayer("p1")
		return err == nil && len(ids) == 1
	})

	ids, err := idx.GetResultsByPlayer("p1")
	if err != nil {
		t.Fatalf("GetResultsByPlayer: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("unexpected index contents: %v", ids)
	}
}

func TestIndexerIgnoresStandardTransactions(t *testing.T) {
	db := testutil.NewMemDB()
	bus := chain.NewBus(4)
	engine, err := chainTestEngine(t)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	game := chain.NewGameProcessor(engine)

	idx := indexer.New(db, bus, game)
	defer idx.Close()

	tx := &chain.Transaction{ID: 5, Sender: "p1", Type: chain.TxStandard}
	bus.Publish(chain.BlockCommittedEvent{Height: 1, Transactions: []*chain.Transaction{tx}})

	// Give the background loop a moment to (not) act.
	time.Sleep(20 * time.Millisecond)
	ids, err := idx.GetResultsByPlayer("p1")
	if err != nil {
		t.Fatalf("GetResultsByPlayer: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("a standard transaction should never be indexed, got %v", ids)
	}
}
