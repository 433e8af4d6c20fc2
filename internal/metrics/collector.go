package metrics

import (
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of latency samples averaged.
const DefaultLatencyWindow = 10

// Snapshot is a point-in-time view of a Collector.
type Snapshot struct {
	ConnectedAt           time.Time
	DisconnectedAt        time.Time
	MessagesSent          int64
	MessagesReceived      int64
	ReconnectAttempts     int64
	ReconnectSuccesses    int64
	Errors                int64
	CurrentReconnectDelay time.Duration
	QueueSize             int
	AverageLatency        time.Duration
	LastLatency           time.Duration
	LatencySamples        int
	Uptime                time.Duration
}

// Connected reports whether the last recorded transition was a connect.
func (s Snapshot) Connected() bool {
	return !s.ConnectedAt.IsZero() && s.ConnectedAt.After(s.DisconnectedAt)
}

// Collector accumulates counters. All methods are safe for concurrent use
// and never fail.
type Collector struct {
	mu  sync.Mutex
	now func() time.Time

	connectedAt    time.Time
	disconnectedAt time.Time

	sent           int64
	received       int64
	attempts       int64
	successes      int64
	errors         int64
	reconnectDelay time.Duration
	queueSize      int

	window  []time.Duration
	next    int
	samples int
	last    time.Duration
}

// NewCollector creates a collector averaging over the last window latency
// samples. window < 1 uses DefaultLatencyWindow.
func NewCollector(window int) *Collector {
	if window < 1 {
		window = DefaultLatencyWindow
	}
	return &Collector{
		now:    time.Now,
		window: make([]time.Duration, window),
	}
}

func (c *Collector) RecordConnected() {
	c.mu.Lock()
	c.connectedAt = c.now()
	c.mu.Unlock()
}

func (c *Collector) RecordDisconnected() {
	c.mu.Lock()
	c.disconnectedAt = c.now()
	c.mu.Unlock()
}

func (c *Collector) RecordMessageSent() {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
}

func (c *Collector) RecordMessageReceived() {
	c.mu.Lock()
	c.received++
	c.mu.Unlock()
}

// RecordReconnectAttempt counts an attempt and remembers the delay before it.
func (c *Collector) RecordReconnectAttempt(delay time.Duration) {
	c.mu.Lock()
	c.attempts++
	c.reconnectDelay = delay
	c.mu.Unlock()
}

// RecordReconnectSuccess counts a session that reached ready after retrying.
func (c *Collector) RecordReconnectSuccess() {
	c.mu.Lock()
	c.successes++
	c.reconnectDelay = 0
	c.mu.Unlock()
}

func (c *Collector) RecordError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// RecordLatency adds a round-trip sample. Negative samples are ignored.
func (c *Collector) RecordLatency(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.window[c.next] = d
	c.next = (c.next + 1) % len(c.window)
	if c.samples < len(c.window) {
		c.samples++
	}
	c.last = d
	c.mu.Unlock()
}

func (c *Collector) SetQueueSize(n int) {
	c.mu.Lock()
	c.queueSize = n
	c.mu.Unlock()
}

// Snapshot returns the current values. AverageLatency is the mean of the
// samples currently in the window.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ConnectedAt:           c.connectedAt,
		DisconnectedAt:        c.disconnectedAt,
		MessagesSent:          c.sent,
		MessagesReceived:      c.received,
		ReconnectAttempts:     c.attempts,
		ReconnectSuccesses:    c.successes,
		Errors:                c.errors,
		CurrentReconnectDelay: c.reconnectDelay,
		QueueSize:             c.queueSize,
		LastLatency:           c.last,
		LatencySamples:        c.samples,
	}

	if c.samples > 0 {
		var sum time.Duration
		for i := 0; i < c.samples; i++ {
			sum += c.window[i]
		}
		s.AverageLatency = sum / time.Duration(c.samples)
	}

	if s.Connected() {
		s.Uptime = c.now().Sub(c.connectedAt)
	}
	return s
}
