package chain

import (
	"log"
	"sync"
)

// PoolConfig bounds the Pool's memory and per-transaction size.
type PoolConfig struct {
	MaxPoolSize   int
	MaxTxDataSize int
}

// DefaultPoolConfig mirrors the defaults enumerated in spec §9.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxPoolSize: 50_000, MaxTxDataSize: 1024}
}

// Pool is a bounded, strict-FIFO pending-transaction queue. It is the sole
// writer of its own deque; size queries are best-effort under contention
// rather than blocking.
type Pool struct {
	cfg PoolConfig

	mu     sync.Mutex
	queue  []*Transaction
	nextID uint64

	nowMS func() int64
}

// NewPool creates an empty Pool. nowMS supplies the millisecond clock used
// to stamp submitted transactions; pass nil to use the wall clock.
func NewPool(cfg PoolConfig, nowMS func() int64) *Pool {
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = DefaultPoolConfig().MaxPoolSize
	}
	if cfg.MaxTxDataSize <= 0 {
		cfg.MaxTxDataSize = DefaultPoolConfig().MaxTxDataSize
	}
	if nowMS == nil {
		nowMS = nowMillis
	}
	return &Pool{cfg: cfg, nowMS: nowMS, nextID: 1}
}

// Submit validates data size and pool capacity, assigns an ID and
// timestamp, and enqueues the transaction at the tail. Returns the
// assigned ID.
func (p *Pool) Submit(sender string, data []byte, nonce uint64, typ TxType) (uint64, error) {
	if len(data) > p.cfg.MaxTxDataSize {
		return 0, ErrDataTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) >= p.cfg.MaxPoolSize {
		return 0, ErrPoolFull
	}
	if warnThreshold := (p.cfg.MaxPoolSize * 9) / 10; len(p.queue) >= warnThreshold {
		log.Printf("[pool] at %d/%d capacity (>=90%%)", len(p.queue), p.cfg.MaxPoolSize)
	}

	id := p.nextID
	p.nextID++
	tx := &Transaction{
		ID:        id,
		Sender:    sender,
		Data:      data,
		Timestamp: p.nowMS(),
		Nonce:     nonce,
		Type:      typ,
	}
	p.queue = append(p.queue, tx)
	return id, nil
}

// Drain removes up to max transactions from the head, in insertion order.
func (p *Pool) Drain(max int) []*Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if max <= 0 || len(p.queue) == 0 {
		return nil
	}
	n := max
	if n > len(p.queue) {
		n = len(p.queue)
	}
	drained := p.queue[:n]
	p.queue = p.queue[n:]
	return drained
}

// Size returns the current pending count. It falls back to 0 rather than
// blocking when the lock is contended, matching the "best-effort size
// query" allowance in spec §4.3.
func (p *Pool) Size() int {
	if !p.mu.TryLock() {
		return 0
	}
	defer p.mu.Unlock()
	return len(p.queue)
}

// Clear empties the pool.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}
