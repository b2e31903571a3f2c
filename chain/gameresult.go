package chain

import (
	"github.com/atomiq/atomiq/crypto"
	"github.com/atomiq/atomiq/vrf"
)

// Token identifies the asset a bet was staked in. Mint is omitted for
// symbols that need no on-chain mint address (spec's `token{symbol,mint?}`).
type Token struct {
	Symbol string `json:"symbol"`
	Mint   string `json:"mint,omitempty"`
}

// GameResult is the persisted, VRF-proved outcome of a GameBet
// transaction. Created once by the Producer during block execution,
// finalized with block identity at commit time, never mutated again.
// Field order and names follow the stable Game Result JSON contract
// external verifiers consume.
type GameResult struct {
	TxID         uint64      `json:"transaction_id"`
	PlayerID     string      `json:"player_address"`
	GameType     string      `json:"game_type"`
	BetAmount    float64     `json:"bet_amount"`
	Token        Token       `json:"token"`
	PlayerChoice string      `json:"player_choice"`
	CoinResult   string      `json:"coin_result"`
	Outcome      string      `json:"outcome"` // "win" | "loss"
	VRF          vrf.Bundle  `json:"vrf"`
	Payout       float64     `json:"payout"`
	Timestamp    int64       `json:"timestamp"`
	BlockHeight  uint64      `json:"block_height"`
	BlockHash    crypto.Hash `json:"block_hash"`
}
