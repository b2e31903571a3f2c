package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/atomiq/atomiq/crypto"
)

// Account is the application-state record kept per sender. Only Nonce is
// consensus-critical (it feeds StateRootHash); Balance is payout
// bookkeeping the Game Processor maintains for win accounting.
type Account struct {
	Sender  string
	Nonce   uint64
	Balance float64
}

// stateSnapshot is a deep copy of the dirty overlay, pushed by Snapshot and
// restored by RevertToSnapshot. Grounded on storage.StateDB's
// dirty/deleted snapshot stack, generalized from byte buffers to Account
// values since the application state here has no persistent backing of
// its own (it is rebuilt by replaying committed blocks at startup).
type stateSnapshot struct {
	accounts map[string]Account
}

// State is the single-writer (DirectCommit Producer) sender→nonce map.
// It is never itself persisted; a fresh State is rebuilt on startup by
// replaying every committed block in height order through Apply.
type State struct {
	mu        sync.RWMutex
	accounts  map[string]Account
	snapshots []stateSnapshot
}

// NewState returns an empty State.
func NewState() *State {
	return &State{accounts: make(map[string]Account)}
}

// NextNonce returns the nonce a transaction from sender must carry to be
// valid: 1 for an unknown sender, or one more than the last accepted nonce.
func (s *State) NextNonce(sender string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[sender].Nonce + 1
}

// GetAccount returns a copy of sender's account (zero-value if unknown).
func (s *State) GetAccount(sender string) Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc := s.accounts[sender]
	acc.Sender = sender
	return acc
}

// ValidateNonce checks nonce against sender's expected next nonce without
// mutating state, so a transaction can be decoded and executed before its
// nonce effect is committed (spec step order: check, then decode/execute,
// then update state).
func (s *State) ValidateNonce(sender string, nonce uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if expected := s.accounts[sender].Nonce + 1; nonce != expected {
		return fmt.Errorf("%w: sender %s expected %d got %d", ErrInvalidNonce, sender, expected, nonce)
	}
	return nil
}

// AdvanceNonce sets sender's nonce to nonce, assumed already validated by
// ValidateNonce.
func (s *State) AdvanceNonce(sender string, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[sender]
	acc.Sender = sender
	acc.Nonce = nonce
	s.accounts[sender] = acc
}

// ValidateAndAdvanceNonce checks tx.Nonce against the sender's expected
// next nonce and, if valid, advances it. Returns ErrInvalidNonce otherwise.
func (s *State) ValidateAndAdvanceNonce(sender string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[sender]
	if nonce != acc.Nonce+1 {
		return fmt.Errorf("%w: sender %s expected %d got %d", ErrInvalidNonce, sender, acc.Nonce+1, nonce)
	}
	acc.Sender = sender
	acc.Nonce = nonce
	s.accounts[sender] = acc
	return nil
}

// Credit adds amount to sender's balance (payout bookkeeping only; never
// consensus-checked).
func (s *State) Credit(sender string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[sender]
	acc.Sender = sender
	acc.Balance += amount
	s.accounts[sender] = acc
}

// Snapshot saves the current account map and returns a snapshot ID used to
// roll back a failed tick.
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]Account, len(s.accounts))
	for k, v := range s.accounts {
		cp[k] = v
	}
	s.snapshots = append(s.snapshots, stateSnapshot{accounts: cp})
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the account map to the state captured by
// Snapshot(id) and discards all snapshots taken after it.
func (s *State) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("chain: invalid state snapshot id %d", id)
	}
	snap := s.snapshots[id]
	cp := make(map[string]Account, len(snap.accounts))
	for k, v := range snap.accounts {
		cp[k] = v
	}
	s.accounts = cp
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshots drops all pending snapshots after a successful commit.
func (s *State) DiscardSnapshots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = nil
}

// ComputeRoot returns sha256 over the canonical, length-prefixed,
// sender-sorted serialization of all (sender, nonce) pairs. Balance is
// deliberately excluded: it is not part of the spec's state root.
func (s *State) ComputeRoot() crypto.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make([]string, 0, len(s.accounts))
	for k := range s.accounts {
		senders = append(senders, k)
	}
	sort.Strings(senders)

	var buf bytes.Buffer
	var u64 [8]byte
	for _, sender := range senders {
		writeLenPrefixed(&buf, []byte(sender))
		binary.BigEndian.PutUint64(u64[:], s.accounts[sender].Nonce)
		buf.Write(u64[:])
	}
	return crypto.Sum(buf.Bytes())
}

// Apply replays a single already-committed transaction's nonce effect
// against the state, used to rebuild State from storage at startup. It
// does not re-validate; the transaction is assumed to have been valid when
// originally executed.
func (s *State) Apply(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[tx.Sender]
	acc.Sender = tx.Sender
	if tx.Nonce > acc.Nonce {
		acc.Nonce = tx.Nonce
	}
	s.accounts[tx.Sender] = acc
}

// ApplyPayout credits a winning game result's payout to sender's balance,
// both when the bet executes and when startup replay rebuilds the state.
func (s *State) ApplyPayout(sender string, payout float64) {
	s.Credit(sender, payout)
}
