package connection

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/gamelink/internal/protocol"
)

// EventKind identifies an event variant.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventError
	EventReconnectAttempt
	EventStateChange
	EventMessageSent
	EventAuthChange
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventReconnectAttempt:
		return "reconnect_attempt"
	case EventStateChange:
		return "state_change"
	case EventMessageSent:
		return "message_sent"
	case EventAuthChange:
		return "auth_change"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is implemented by every event type below.
type Event interface {
	Kind() EventKind
}

// ConnectedEvent is raised when the transport opens.
type ConnectedEvent struct {
	Endpoint string
}

// DisconnectedEvent is raised when an open transport is lost or closed.
type DisconnectedEvent struct {
	Reason DisconnectReason
	Err    error // nil for a caller-initiated disconnect
}

// MessageEvent carries a decoded application message.
type MessageEvent struct {
	Message    protocol.Message
	ReceivedAt time.Time
}

// ErrorEvent reports a recovered error.
type ErrorEvent struct {
	Err error
}

// ReconnectAttemptEvent is raised before the backoff wait begins.
// MaxAttempts is negative when attempts are unlimited.
type ReconnectAttemptEvent struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// StateChangeEvent is raised on every state transition.
type StateChangeEvent struct {
	From State
	To   State
}

// MessageSentEvent is raised after a command is written to the transport.
type MessageSentEvent struct {
	Command protocol.Command
}

// AuthChangeEvent is raised when the session gains or loses authentication.
type AuthChangeEvent struct {
	Authenticated bool
}

func (ConnectedEvent) Kind() EventKind        { return EventConnected }
func (DisconnectedEvent) Kind() EventKind     { return EventDisconnected }
func (MessageEvent) Kind() EventKind          { return EventMessage }
func (ErrorEvent) Kind() EventKind            { return EventError }
func (ReconnectAttemptEvent) Kind() EventKind { return EventReconnectAttempt }
func (StateChangeEvent) Kind() EventKind      { return EventStateChange }
func (MessageSentEvent) Kind() EventKind      { return EventMessageSent }
func (AuthChangeEvent) Kind() EventKind       { return EventAuthChange }

// Listener receives events of the kind it subscribed to.
type Listener func(Event)

// Subscription is the handle returned by Bus.Subscribe.
type Subscription struct {
	id   uint64
	kind EventKind
}

// Kind returns the event kind the subscription listens to.
func (s *Subscription) Kind() EventKind { return s.kind }

type subscriber struct {
	id       uint64
	listener Listener
}

// Bus is a typed publish/subscribe fan-out. Listeners for a kind run in
// subscription order. A panicking listener is recovered and reported as an
// ErrorEvent; delivery to the remaining listeners continues.
type Bus struct {
	logger *slog.Logger

	// OnPanic is called for every recovered listener panic.
	OnPanic func(err error)

	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscriber
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[EventKind][]subscriber),
	}
}

// Subscribe registers listener for kind.
func (b *Bus) Subscribe(kind EventKind, listener Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[kind] = append(b.subs[kind], subscriber{id: b.nextID, listener: listener})
	return &Subscription{id: b.nextID, kind: kind}
}

// Unsubscribe removes a subscription. It reports false if sub was already
// removed.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.kind]
	for i, s := range list {
		if s.id == sub.id {
			// Copy so in-flight Publish snapshots stay intact.
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			b.subs[sub.kind] = next
			return true
		}
	}
	return false
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[EventKind][]subscriber)
	b.mu.Unlock()
}

// Len returns the number of listeners for kind.
func (b *Bus) Len(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Publish delivers ev to the listeners subscribed when Publish was called.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	list := b.subs[ev.Kind()]
	b.mu.RUnlock()

	for _, s := range list {
		if err := b.deliver(s.listener, ev); err != nil {
			b.logger.Error("event listener panicked", "event", ev.Kind().String(), "error", err)
			if b.OnPanic != nil {
				b.OnPanic(err)
			}
			// A panicking error listener is only logged.
			if ev.Kind() != EventError {
				b.Publish(ErrorEvent{Err: err})
			}
		}
	}
}

func (b *Bus) deliver(listener Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s listener: %v", ErrListenerPanic, ev.Kind(), r)
		}
	}()
	listener(ev)
	return nil
}

// dispatcher runs posted tasks in order, one drainer at a time. Tasks are
// posted while the core lock is held and drained after it is released, so a
// task may call back into the core.
type dispatcher struct {
	mu      sync.Mutex
	pending []func()

	draining sync.Mutex
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()
}

func (d *dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil, false
	}
	fn := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return fn, true
}

func (d *dispatcher) empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) == 0
}

// run drains pending tasks unless another goroutine already is. Emptiness is
// rechecked after releasing the drain lock so a task posted in between is
// not stranded.
func (d *dispatcher) run() {
	for {
		if !d.draining.TryLock() {
			return
		}
		for {
			fn, ok := d.next()
			if !ok {
				break
			}
			fn()
		}
		d.draining.Unlock()

		if d.empty() {
			return
		}
	}
}
