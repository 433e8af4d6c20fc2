package connection

import (
	"log/slog"
	"sync"
	"time"
)

// Heartbeat sends periodic pings and reports a missing pong.
//
// Every interval it calls sendPing with a new sequence number and arms a
// timeout. A matching Pong cancels the timeout and schedules the next ping.
// If the timeout fires first, onTimeout runs once and the heartbeat stops
// until Start is called again. Callbacks run without the heartbeat's lock
// held.
type Heartbeat struct {
	interval  time.Duration
	timeout   time.Duration
	sendPing  func(seq uint64) error
	onTimeout func()
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	epoch    uint64 // bumped by Start/Stop; stale timer fires compare against it
	seq      uint64
	pending  uint64 // seq awaiting a pong, 0 if none
	sentAt   time.Time
	tick     *time.Timer
	deadline *time.Timer
}

// NewHeartbeat creates a stopped heartbeat.
func NewHeartbeat(interval, timeout time.Duration, sendPing func(seq uint64) error, onTimeout func(), logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		interval:  interval,
		timeout:   timeout,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the first ping one interval from now. It is a no-op if
// already running.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	h.running = true
	h.epoch++
	h.pending = 0
	h.armTickLocked(h.epoch)
}

// Stop cancels the interval and timeout timers. A timer that already fired
// becomes a no-op.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	h.epoch++
	h.pending = 0
	h.stopTimersLocked()
}

// Running reports whether pings are being scheduled.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Pong records a reply. It returns the round-trip time and true when seq
// matches the outstanding ping; seq 0 matches any outstanding ping. Late or
// unexpected pongs are ignored.
func (h *Heartbeat) Pong(seq uint64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running || h.pending == 0 {
		return 0, false
	}
	if seq != 0 && seq != h.pending {
		return 0, false
	}

	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
	rtt := h.now().Sub(h.sentAt)
	h.pending = 0
	h.armTickLocked(h.epoch)
	return rtt, true
}

func (h *Heartbeat) armTickLocked(epoch uint64) {
	h.tick = time.AfterFunc(h.interval, func() { h.ping(epoch) })
}

func (h *Heartbeat) ping(epoch uint64) {
	h.mu.Lock()
	if !h.running || epoch != h.epoch {
		h.mu.Unlock()
		return
	}

	h.seq++
	seq := h.seq
	h.pending = seq
	h.sentAt = h.now()
	h.tick = nil
	h.deadline = time.AfterFunc(h.timeout, func() { h.expire(epoch, seq) })
	h.mu.Unlock()

	// A failed write is left to the timeout.
	if err := h.sendPing(seq); err != nil {
		h.logger.Debug("failed to send ping", "seq", seq, "error", err)
	}
}

func (h *Heartbeat) expire(epoch, seq uint64) {
	h.mu.Lock()
	if !h.running || epoch != h.epoch || h.pending != seq {
		h.mu.Unlock()
		return
	}

	h.running = false
	h.epoch++
	h.pending = 0
	h.deadline = nil
	h.mu.Unlock()

	h.logger.Warn("no pong received, connection stale", "seq", seq, "timeout", h.timeout)
	h.onTimeout()
}

func (h *Heartbeat) stopTimersLocked() {
	if h.tick != nil {
		h.tick.Stop()
		h.tick = nil
	}
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
}
