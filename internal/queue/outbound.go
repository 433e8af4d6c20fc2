package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/gamelink/internal/protocol"
)

// DefaultCapacity is used when Outbound is created with a capacity < 1.
const DefaultCapacity = 100

// ErrOverflow is passed to OnRejected when an entry is evicted to make room
// for a newer command.
var ErrOverflow = errors.New("outbound queue overflow: oldest command evicted")

// Callbacks are notified once an entry leaves the queue.
type Callbacks struct {
	OnAccepted func()
	OnRejected func(err error)
}

// Entry is a command waiting for the channel to become ready.
type Entry struct {
	ID         uuid.UUID
	Command    protocol.Command
	EnqueuedAt time.Time
	Attempts   int
	Callbacks
}

// Accept reports successful transmission.
func (e *Entry) Accept() {
	if e.OnAccepted != nil {
		e.OnAccepted()
	}
}

// Reject reports that the entry will never be transmitted.
func (e *Entry) Reject(err error) {
	if e.OnRejected != nil {
		e.OnRejected(err)
	}
}

// Stats contains lifetime queue counters.
type Stats struct {
	Len      int
	Capacity int
	Enqueued int64
	Flushed  int64
	Evicted  int64
	Cleared  int64
}

// Outbound is a bounded FIFO of unsent commands with oldest-first eviction.
// Callbacks run after the internal lock is released.
type Outbound struct {
	mu   sync.Mutex
	ring *Ring[Entry]
	now  func() time.Time

	enqueued int64
	flushed  int64
	evicted  int64
	cleared  int64
}

// NewOutbound creates a queue bounded to capacity entries.
func NewOutbound(capacity int) *Outbound {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Outbound{
		ring: NewRing[Entry](capacity),
		now:  time.Now,
	}
}

// Enqueue appends cmd. At capacity the oldest entry is evicted and rejected
// with ErrOverflow before the new entry is added.
func (q *Outbound) Enqueue(cmd protocol.Command, cb Callbacks) Entry {
	entry := Entry{
		ID:         uuid.New(),
		Command:    cmd,
		EnqueuedAt: q.now(),
		Callbacks:  cb,
	}

	q.mu.Lock()
	old, evicted := q.ring.Push(entry)
	q.enqueued++
	if evicted {
		q.evicted++
	}
	q.mu.Unlock()

	if evicted {
		old.Reject(ErrOverflow)
	}
	return entry
}

// Requeue puts back entries removed by Flush that could not be transmitted,
// keeping their order and IDs. Eviction applies as in Enqueue.
func (q *Outbound) Requeue(entries []Entry) {
	var rejected []Entry

	q.mu.Lock()
	for _, e := range entries {
		if old, evicted := q.ring.Push(e); evicted {
			q.evicted++
			rejected = append(rejected, old)
		}
	}
	q.flushed -= int64(len(entries))
	q.mu.Unlock()

	for i := range rejected {
		rejected[i].Reject(ErrOverflow)
	}
}

// Flush atomically empties the queue and returns its entries in enqueue order.
func (q *Outbound) Flush() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.ring.Drain()
	q.flushed += int64(len(entries))
	return entries
}

// Clear empties the queue without transmitting. With notifyRejected every
// discarded entry's OnRejected receives reason.
func (q *Outbound) Clear(notifyRejected bool, reason error) int {
	q.mu.Lock()
	entries := q.ring.Drain()
	q.cleared += int64(len(entries))
	q.mu.Unlock()

	if notifyRejected {
		for i := range entries {
			entries[i].Reject(reason)
		}
	}
	return len(entries)
}

// Len returns the number of queued entries.
func (q *Outbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Len()
}

// Cap returns the queue capacity.
func (q *Outbound) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Cap()
}

// Stats returns queue statistics.
func (q *Outbound) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.ring.Len(),
		Capacity: q.ring.Cap(),
		Enqueued: q.enqueued,
		Flushed:  q.flushed,
		Evicted:  q.evicted,
		Cleared:  q.cleared,
	}
}
