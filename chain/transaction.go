package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/atomiq/atomiq/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	// TxStandard carries an opaque application payload with no VRF
	// involvement; it only consumes a nonce slot.
	TxStandard TxType = "standard"
	// TxGameBet is executed by the game processor: it consumes a VRF
	// output and produces a GameResult.
	TxGameBet TxType = "game_bet"
)

// Transaction is the atomic unit of work on the chain. ID and Timestamp
// are assigned by the Pool at submit time; nothing mutates a transaction
// afterwards.
type Transaction struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"` // milliseconds
	Nonce     uint64 `json:"nonce"`
	Type      TxType `json:"tx_type"`
}

// Hash returns sha256 over the canonical, length-prefixed serialization of
// (id, sender, data, timestamp, nonce). tx_type deliberately does not
// participate in the hash (spec-mandated tuple).
func (tx *Transaction) Hash() crypto.Hash {
	var buf bytes.Buffer
	var u64 [8]byte

	binary.BigEndian.PutUint64(u64[:], tx.ID)
	buf.Write(u64[:])

	writeLenPrefixed(&buf, []byte(tx.Sender))
	writeLenPrefixed(&buf, tx.Data)

	binary.BigEndian.PutUint64(u64[:], uint64(tx.Timestamp))
	buf.Write(u64[:])

	binary.BigEndian.PutUint64(u64[:], tx.Nonce)
	buf.Write(u64[:])

	return crypto.Sum(buf.Bytes())
}

// writeLenPrefixed writes a 4-byte big-endian length followed by b, so that
// variable-length fields cannot be confused at their boundaries.
func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// GameBetPayload is the decoded form of Transaction.Data when Type ==
// TxGameBet.
type GameBetPayload struct {
	GameType    string  `json:"game_type"`
	PlayerID    string  `json:"player_id"`
	Choice      string  `json:"choice"` // "heads" | "tails"
	TokenSymbol string  `json:"token_symbol"`
	TokenMint   string  `json:"token_mint,omitempty"`
	BetAmount   float64 `json:"bet_amount"`
}

// DecodeGameBet unmarshals a GameBet transaction's payload.
func DecodeGameBet(data []byte) (GameBetPayload, error) {
	var p GameBetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return GameBetPayload{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if p.PlayerID == "" {
		return GameBetPayload{}, fmt.Errorf("%w: missing player_id", ErrDecodeFailed)
	}
	if p.Choice != "heads" && p.Choice != "tails" {
		return GameBetPayload{}, fmt.Errorf("%w: choice must be heads or tails", ErrDecodeFailed)
	}
	if p.BetAmount <= 0 {
		return GameBetPayload{}, fmt.Errorf("%w: bet_amount must be positive", ErrDecodeFailed)
	}
	if p.GameType == "" {
		p.GameType = "coinflip"
	}
	return p, nil
}

// NewGameBetData marshals a GameBetPayload into a Transaction's Data field.
func NewGameBetData(p GameBetPayload) ([]byte, error) {
	return json.Marshal(p)
}
