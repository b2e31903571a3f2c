// Package indexer maintains a secondary index over committed game bets so
// a game server can list a player's results without scanning every block.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/storage"
)

const prefixPlayerResults = "idx:player:game_result:"

// Indexer subscribes to the finalization bus and updates the
// player→transaction-id index on every committed block.
type Indexer struct {
	db  storage.DB
	gp  *chain.GameProcessor
	sub *chain.Subscription
}

// New creates an Indexer backed by db, subscribes to bus, and starts its
// background consume loop. Call Close to stop it.
func New(db storage.DB, bus *chain.Bus, gp *chain.GameProcessor) *Indexer {
	idx := &Indexer{db: db, gp: gp, sub: bus.Subscribe()}
	go idx.run()
	return idx
}

// Close unsubscribes from the bus, stopping the consume loop.
func (idx *Indexer) Close() {
	idx.sub.Unsubscribe()
}

func (idx *Indexer) run() {
	for {
		ev, ok := idx.sub.Recv()
		if !ok {
			return
		}
		idx.onBlockCommitted(ev)
	}
}

// GetResultsByPlayer returns all game-bet transaction ids settled for the
// given player address, in the order they were indexed.
func (idx *Indexer) GetResultsByPlayer(player string) ([]uint64, error) {
	return idx.getList(prefixPlayerResults + player)
}

// onBlockCommitted indexes every game-bet transaction in a committed
// block by player. Grounded on the teacher's event-handler
// list-maintenance shape, driven by chain.Bus events instead of the
// events.Emitter's typed per-feature callbacks.
func (idx *Indexer) onBlockCommitted(ev chain.BlockCommittedEvent) {
	for _, tx := range ev.Transactions {
		if tx.Type != chain.TxGameBet {
			continue
		}
		res, ok := idx.gp.GetByTxID(tx.ID)
		if !ok {
			continue
		}
		if err := idx.addToList(prefixPlayerResults+res.PlayerID, tx.ID); err != nil {
			log.Printf("[indexer] game result index write failed (player=%s tx=%d): %v", res.PlayerID, tx.ID, err)
		}
	}
}

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key string, value uint64) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
