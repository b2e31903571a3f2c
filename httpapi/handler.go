package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/crypto"
	"github.com/atomiq/atomiq/storage"
	"github.com/atomiq/atomiq/vrf"
)

// defaultTimeout is the wait_finalization deadline used when a caller omits
// timeout_ms, per spec §5's "default 2000ms deadline for game endpoints".
const defaultTimeout = 2000 * time.Millisecond

// Handler holds all dependencies needed to serve the inbound contract spec
// §6 names. It owns no state of its own: every method defers to the chain
// core.
type Handler struct {
	pool     *chain.Pool
	producer *chain.Producer
	game     *chain.GameProcessor
	waiter   *chain.FinalizationWaiter
	store    *storage.Engine
}

// NewHandler creates an httpapi Handler.
func NewHandler(pool *chain.Pool, producer *chain.Producer, game *chain.GameProcessor, waiter *chain.FinalizationWaiter, store *storage.Engine) *Handler {
	return &Handler{pool: pool, producer: producer, game: game, waiter: waiter, store: store}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "submit_game_bet":
		return h.submitGameBet(req)
	case "wait_finalization":
		return h.waitFinalization(req)
	case "get_game_result":
		return h.getGameResult(req)
	case "get_block_by_height":
		return h.getBlockByHeight(req)
	case "get_block_by_hash":
		return h.getBlockByHash(req)
	case "get_tx":
		return h.getTx(req)
	case "verify":
		return h.verify(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// submitGameBet builds a GameBet transaction and submits it to the pool.
// It does not subscribe to the finalization bus; a later wait_finalization
// call avoids missing a block that committed in between by checking the
// game result index both before and after it subscribes.
func (h *Handler) submitGameBet(req Request) Response {
	var params submitGameBetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	if params.PlayerID == "" {
		return errResponse(req.ID, CodeInvalidParams, "player_id is required")
	}
	if params.Choice != "heads" && params.Choice != "tails" {
		return errResponse(req.ID, CodeInvalidParams, "choice must be heads or tails")
	}
	if params.BetAmount <= 0 {
		return errResponse(req.ID, CodeInvalidParams, "bet_amount must be positive")
	}

	payload := chain.GameBetPayload{
		GameType:    params.GameType,
		PlayerID:    params.PlayerID,
		Choice:      params.Choice,
		TokenSymbol: params.Token.Symbol,
		TokenMint:   params.Token.Mint,
		BetAmount:   params.BetAmount,
	}
	data, err := chain.NewGameBetData(payload)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}

	nonce := h.producer.NextNonce(params.PlayerID)
	txID, err := h.pool.Submit(params.PlayerID, data, nonce, chain.TxGameBet)
	if err != nil {
		return errResponse(req.ID, codeForPoolError(err), err.Error())
	}
	return okResponse(req.ID, map[string]uint64{"tx_id": txID})
}

// waitFinalization blocks (up to timeout_ms, default 2s) for tx_id's
// including block to commit. On timeout it returns a pending result rather
// than an error, per spec §7's "boundary returns pending" rule.
func (h *Handler) waitFinalization(req Request) Response {
	var params waitFinalizationParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	if params.TxID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	timeout := defaultTimeout
	if params.TimeoutMS > 0 {
		timeout = time.Duration(params.TimeoutMS) * time.Millisecond
	}

	if res, ok := h.game.GetByTxID(params.TxID); ok {
		return okResponse(req.ID, res)
	}

	sub := h.waiter.Subscribe()
	defer sub.Unsubscribe()

	if res, ok := h.game.GetByTxID(params.TxID); ok {
		return okResponse(req.ID, res)
	}

	ev, err := sub.WaitForTx(params.TxID, timeout)
	if err != nil {
		if errors.Is(err, chain.ErrTimeout) {
			return okResponse(req.ID, pendingResult{Status: "pending", TxID: params.TxID, GameID: params.TxID})
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	_ = ev

	if res, ok := h.game.GetByTxID(params.TxID); ok {
		return okResponse(req.ID, res)
	}
	// tx committed but carries no game result (e.g. it was a standard tx).
	return okResponse(req.ID, map[string]string{"status": "committed"})
}

func (h *Handler) getGameResult(req Request) Response {
	var params struct {
		TxID uint64 `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if res, ok := h.game.GetByTxID(params.TxID); ok {
		return okResponse(req.ID, res)
	}
	res, err := h.store.GetGameResult(params.TxID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return okResponse(req.ID, nil)
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getBlockByHeight(req Request) Response {
	var params struct {
		Height uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	block, err := h.store.GetBlockByHeight(params.Height)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return okResponse(req.ID, nil)
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBlockByHash(req Request) Response {
	var params struct {
		Hash crypto.Hash `json:"hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	block, err := h.store.GetBlockByHash(params.Hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return okResponse(req.ID, nil)
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getTx(req Request) Response {
	var params struct {
		TxID uint64 `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	tx, height, err := h.store.GetTransaction(params.TxID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return okResponse(req.ID, nil)
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	block, err := h.store.GetBlockByHeight(height)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	index := -1
	for i, t := range block.Transactions {
		if t.ID == tx.ID {
			index = i
			break
		}
	}
	return okResponse(req.ID, map[string]any{"block": block, "index": index})
}

// verify independently reconstructs and checks a VRF bundle against the
// §6 recipe, returning {valid:false, reason:...} rather than an RPC error
// for any mismatch — verification failure is an ordinary result, not a
// fault.
func (h *Handler) verify(req Request) Response {
	var params verifyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	err := vrf.VerifyBundle(params.VRF, params.TransactionID, params.GameType, params.PlayerAddress,
		params.PreviousBlockHash, params.BlockHeight, params.Timestamp)
	if err != nil {
		return okResponse(req.ID, verifyResult{Valid: false, Reason: err.Error()})
	}
	if params.CoinResult != "" && vrf.CoinFromOutput(params.VRF.Output) != params.CoinResult {
		return okResponse(req.ID, verifyResult{Valid: false, Reason: vrf.ErrCoinMismatch.Error()})
	}
	return okResponse(req.ID, verifyResult{Valid: true})
}

func codeForPoolError(err error) int {
	if errors.Is(err, chain.ErrPoolFull) || errors.Is(err, chain.ErrDataTooLarge) {
		return CodeInvalidParams
	}
	return CodeInternalError
}
