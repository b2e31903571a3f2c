// Package tests exercises the S1-S6 end-to-end scenarios across chain,
// storage, and vrf together, the way the teacher's own tests package
// checks whole flows rather than single units. Grounded in shape on the
// teacher's tests/core_test.go; uses testify here (unlike the
// package-level _test.go files) for assertion ergonomics on longer,
// multi-step scenarios.
package tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/internal/testutil"
	"github.com/atomiq/atomiq/vrf"
)

func newHarness(t *testing.T, db *testutil.MemDB) (*chain.Pool, *chain.Producer, *chain.GameProcessor, *chain.Bus) {
	t.Helper()
	store := testutil.NewEngineOn(db)
	engine, err := vrf.Bootstrap(store)
	require.NoError(t, err)

	pool := chain.NewPool(chain.PoolConfig{MaxPoolSize: 50_000, MaxTxDataSize: 1024}, nil)
	game := chain.NewGameProcessor(engine)
	bus := chain.NewBus(0)

	producer, err := chain.NewProducer(chain.ProducerConfig{
		MaxTxPerBlock: 10_000,
		EmptyBlocks:   false,
	}, store, pool, game, bus)
	require.NoError(t, err)
	return pool, producer, game, bus
}

func submitBet(t *testing.T, pool *chain.Pool, producer *chain.Producer, player, choice string, amount float64) uint64 {
	t.Helper()
	data, err := chain.NewGameBetData(chain.GameBetPayload{
		GameType:    "coinflip",
		PlayerID:    player,
		Choice:      choice,
		TokenSymbol: "SOL",
		BetAmount:   amount,
	})
	require.NoError(t, err)
	nonce := producer.NextNonce(player)
	id, err := pool.Submit(player, data, nonce, chain.TxGameBet)
	require.NoError(t, err)
	return id
}

// TestCoinflipSettlement covers S1/S2: a single coinflip bet settles in the
// first block, its VRF bundle independently verifies, and outcome/payout
// are consistent with whichever side actually won.
func TestCoinflipSettlement(t *testing.T) {
	db := testutil.NewMemDB()
	pool, producer, game, _ := newHarness(t, db)

	txID := submitBet(t, pool, producer, "p1", "heads", 1.0)
	require.NoError(t, producer.Tick())

	res, ok := game.GetByTxID(txID)
	require.True(t, ok)
	require.Equal(t, uint64(1), res.BlockHeight)
	require.Contains(t, []string{"heads", "tails"}, res.CoinResult)

	if res.CoinResult == "heads" {
		require.Equal(t, "win", res.Outcome)
		require.Equal(t, 2.0, res.Payout)
	} else {
		require.Equal(t, "loss", res.Outcome)
		require.Equal(t, 0.0, res.Payout)
	}

	require.NoError(t, game.Verify(res, chain.ZeroHash))
}

// TestRestartStability covers S3: the VRF public key reported in Game
// Results is unchanged across a simulated engine restart against the same
// store.
func TestRestartStability(t *testing.T) {
	db := testutil.NewMemDB()
	pool, producer, game, _ := newHarness(t, db)

	txID := submitBet(t, pool, producer, "p1", "heads", 1.0)
	require.NoError(t, producer.Tick())
	first, ok := game.GetByTxID(txID)
	require.True(t, ok)
	firstKey := first.VRF.PublicKey

	// Simulate a restart: fresh in-process components over the same store.
	pool2, producer2, game2, _ := newHarness(t, db)
	txID2 := submitBet(t, pool2, producer2, "p2", "tails", 1.0)
	require.NoError(t, producer2.Tick())
	second, ok := game2.GetByTxID(txID2)
	require.True(t, ok)

	require.Equal(t, firstKey.Hex(), second.VRF.PublicKey.Hex())
	require.Equal(t, uint64(2), producer2.Height())
}

// TestPoolFull covers S4: a third submit against a two-slot pool is
// rejected with ErrPoolFull while the first two still finalize.
func TestPoolFull(t *testing.T) {
	db := testutil.NewMemDB()
	store := testutil.NewEngineOn(db)
	engine, err := vrf.Bootstrap(store)
	require.NoError(t, err)

	pool := chain.NewPool(chain.PoolConfig{MaxPoolSize: 2, MaxTxDataSize: 1024}, nil)
	game := chain.NewGameProcessor(engine)
	bus := chain.NewBus(0)
	producer, err := chain.NewProducer(chain.ProducerConfig{MaxTxPerBlock: 10, EmptyBlocks: false}, store, pool, game, bus)
	require.NoError(t, err)

	submitBet(t, pool, producer, "p1", "heads", 1.0)
	submitBet(t, pool, producer, "p2", "heads", 1.0)

	data, err := chain.NewGameBetData(chain.GameBetPayload{GameType: "coinflip", PlayerID: "p3", Choice: "heads", TokenSymbol: "SOL", BetAmount: 1.0})
	require.NoError(t, err)
	_, err = pool.Submit("p3", data, producer.NextNonce("p3"), chain.TxGameBet)
	require.ErrorIs(t, err, chain.ErrPoolFull)

	require.NoError(t, producer.Tick())
	require.Equal(t, uint64(1), producer.Height())
}

// TestTamperDetection covers S5: flipping a bit in a committed
// transaction's data breaks transactions_root and block_hash
// self-consistency.
func TestTamperDetection(t *testing.T) {
	db := testutil.NewMemDB()
	store := testutil.NewEngineOn(db)
	pool, producer, _, _ := newHarness(t, db)

	submitBet(t, pool, producer, "p1", "heads", 1.0)
	require.NoError(t, producer.Tick())

	block, err := store.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	block.Transactions[0].Data[0] ^= 0xFF

	err = block.VerifyIntegrity(block.StateRootHash)
	require.ErrorIs(t, err, chain.ErrTxRootMismatch)
}

// TestBatchOfTenMixedBets covers S6: ten bets from ten distinct players
// land in one block, in submission order, each independently verifiable.
func TestBatchOfTenMixedBets(t *testing.T) {
	db := testutil.NewMemDB()
	store := testutil.NewEngineOn(db)
	pool, producer, game, _ := newHarness(t, db)

	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
	ids := make([]uint64, 0, len(players))
	for i, p := range players {
		choice := "heads"
		if i%2 == 1 {
			choice = "tails"
		}
		ids = append(ids, submitBet(t, pool, producer, p, choice, 1.0))
	}

	require.NoError(t, producer.Tick())

	block, err := store.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, 10, block.TransactionCount)

	for i, id := range ids {
		tx, height, err := store.GetTransaction(id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), height)
		require.Equal(t, block.Transactions[i].ID, tx.ID)

		res, ok := game.GetByTxID(id)
		require.True(t, ok)
		require.NoError(t, game.Verify(res, chain.ZeroHash))
	}

	emptyRootState := chain.NewState().ComputeRoot()
	require.NotEqual(t, emptyRootState, block.StateRootHash)
}
