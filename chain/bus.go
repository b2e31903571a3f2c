package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/atomiq/atomiq/crypto"
)

// BlockCommittedEvent is published once per committed block, after the
// storage batch has returned success.
type BlockCommittedEvent struct {
	Height       uint64
	BlockHash    crypto.Hash
	Transactions []*Transaction
	Timestamp    int64
}

// ContainsTx reports whether txID is among the event's transactions.
func (e BlockCommittedEvent) ContainsTx(txID uint64) bool {
	for _, tx := range e.Transactions {
		if tx.ID == txID {
			return true
		}
	}
	return false
}

// defaultBusBacklog bounds the per-subscriber backlog; beyond this the
// oldest buffered event is dropped to make room for the newest one, so a
// slow subscriber can never block the producer (spec §9 open question 2).
const defaultBusBacklog = 64

// Bus is a multi-consumer broadcast of BlockCommittedEvent. It generalizes
// the teacher's events.Emitter (subscribe-before-publish, synchronous
// fan-out, panic-isolated delivery) onto bounded channels so that a
// handler can wait on a specific transaction id with a deadline instead of
// registering a named callback.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	backlog int
	closed  bool
}

// NewBus creates a Bus with the given per-subscriber backlog. A backlog <=
// 0 uses defaultBusBacklog.
func NewBus(backlog int) *Bus {
	if backlog <= 0 {
		backlog = defaultBusBacklog
	}
	return &Bus{subs: make(map[*Subscription]struct{}), backlog: backlog}
}

// Subscription is a single consumer's view of the Bus. Subscribe before
// submitting the transaction you intend to wait on, then call WaitForTx —
// this ordering is what prevents the lost-wakeup race spec §4.5 calls out.
type Subscription struct {
	bus    *Bus
	ch     chan BlockCommittedEvent
	closed chan struct{}
	once   sync.Once
}

// Subscribe registers a new Subscription. Call Unsubscribe when done.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ch:     make(chan BlockCommittedEvent, b.backlog),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.closed)
		return sub
	}
	sub.bus = b
	b.subs[sub] = struct{}{}
	return sub
}

// Publish fans ev out to every live subscriber without blocking. A
// subscriber whose buffer is full has its oldest queued event dropped to
// make room; Publish itself never blocks regardless of subscriber speed.
func (b *Bus) Publish(ev BlockCommittedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Close shuts the bus down: every live subscriber observes its closed
// channel close, and WaitForTx returns ErrEventChannelClosed to anyone
// still waiting.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.closed)
	}
	b.subs = make(map[*Subscription]struct{})
}

// Unsubscribe removes sub from the bus and closes it, so a pending Recv or
// WaitForTx returns. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.bus == nil {
			return
		}
		s.bus.mu.Lock()
		if _, live := s.bus.subs[s]; live {
			delete(s.bus.subs, s)
			close(s.closed)
		}
		s.bus.mu.Unlock()
	})
}

// Recv blocks until the next BlockCommittedEvent arrives or the bus is
// closed (ok=false). Consumers that need every event, such as the
// indexer, use this instead of WaitForTx's per-tx filter.
func (s *Subscription) Recv() (ev BlockCommittedEvent, ok bool) {
	select {
	case ev, ok = <-s.ch:
		return ev, ok
	case <-s.closed:
		return BlockCommittedEvent{}, false
	}
}

// WaitForTx blocks until a BlockCommittedEvent naming txID arrives, the
// deadline elapses (ErrTimeout), or the bus is closed (ErrEventChannelClosed).
func (s *Subscription) WaitForTx(txID uint64, timeout time.Duration) (BlockCommittedEvent, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return BlockCommittedEvent{}, ErrEventChannelClosed
			}
			if ev.ContainsTx(txID) {
				return ev, nil
			}
		case <-s.closed:
			return BlockCommittedEvent{}, ErrEventChannelClosed
		case <-deadline.C:
			return BlockCommittedEvent{}, fmt.Errorf("%w: tx %d not finalized within %s", ErrTimeout, txID, timeout)
		}
	}
}

// FinalizationWaiter is the HTTP-handler-facing entry point spec §4.5
// names: subscribe once at the top of the request, submit the
// transaction, then wait.
type FinalizationWaiter struct {
	bus *Bus
}

// NewFinalizationWaiter wraps bus for handler use.
func NewFinalizationWaiter(bus *Bus) *FinalizationWaiter {
	return &FinalizationWaiter{bus: bus}
}

// Subscribe must be called before the caller's transaction is submitted to
// the Pool, to guarantee the commit event cannot be missed.
func (w *FinalizationWaiter) Subscribe() *Subscription {
	return w.bus.Subscribe()
}
