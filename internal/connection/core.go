package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/gamelink/internal/metrics"
	"github.com/rickgao/gamelink/internal/protocol"
	"github.com/rickgao/gamelink/internal/queue"
)

// Outcome resolves when an asynchronous Connect or Login settles: nil once
// the session is ready (or waiting for Login), the terminal error once it
// is closed.
type Outcome struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

func (o *Outcome) resolve(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Done is closed once the outcome is known.
func (o *Outcome) Done() <-chan struct{} { return o.done }

// Err returns the result. It is nil until Done is closed.
func (o *Outcome) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is known or ctx ends.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithCodec sets the wire codec (default JSON).
func WithCodec(codec protocol.Codec) Option {
	return func(c *Core) { c.codec = codec }
}

// WithDirectory sets the endpoint resolver used when Config.URL is empty.
func WithDirectory(dir Directory) Option {
	return func(c *Core) { c.dir = dir }
}

// WithDialer replaces the websocket transport constructor.
func WithDialer(dial func(ClientConfig, *slog.Logger) Client) Option {
	return func(c *Core) { c.newClient = dial }
}

// WithMetrics shares an existing collector, e.g. one registered with an
// exporter.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Core) { c.metrics = m }
}

// SendOption configures a single Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	queueIfOffline bool
	callbacks      queue.Callbacks
}

// WithQueueIfOffline controls whether Send queues when not ready (default true).
func WithQueueIfOffline(enabled bool) SendOption {
	return func(o *sendOptions) { o.queueIfOffline = enabled }
}

// WithCallbacks sets per-command delivery callbacks. onAccepted runs once the
// command is written; onRejected runs if it is evicted or discarded.
func WithCallbacks(onAccepted func(), onRejected func(error)) SendOption {
	return func(o *sendOptions) {
		o.callbacks = queue.Callbacks{OnAccepted: onAccepted, OnRejected: onRejected}
	}
}

// Core owns one game-server session: the transport, the connection and
// authentication state machine, the offline queue, the heartbeat and the
// reconnect scheduler.
//
// A single mutex guards state, the queue, the transport handle and the
// generation counter. Every timer and transport goroutine captures the
// generation when it starts and does nothing if it changed. Events and user
// callbacks are queued while the lock is held and delivered after it is
// released, so listeners may call back into the Core.
type Core struct {
	cfg       Config
	logger    *slog.Logger
	codec     protocol.Codec
	dir       Directory
	newClient func(ClientConfig, *slog.Logger) Client

	metrics   *metrics.Collector
	queue     *queue.Outbound
	scheduler *Scheduler
	bus       *Bus
	dispatch  dispatcher

	mu            sync.Mutex
	state         State
	gen           uint64
	transport     Client
	stopPump      chan struct{}
	endpoint      string
	token         string
	sessionID     string
	authenticated bool
	heartbeat     *Heartbeat
	connectTimer  *time.Timer
	authTimer     *time.Timer
	cancelDial    context.CancelFunc
	outcomes      []*Outcome
}

// New creates a Core in the idle state.
func New(cfg Config, opts ...Option) (*Core, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:       cfg,
		newClient: NewClient,
		token:     cfg.AuthToken,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.codec == nil {
		c.codec = protocol.JSONCodec{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NewCollector(cfg.LatencyWindow)
	}
	if cfg.URL == "" && c.dir == nil {
		return nil, ErrNoEndpoint
	}

	c.queue = queue.NewOutbound(cfg.MaxQueueSize)
	c.scheduler = NewScheduler(cfg.InitialReconnectDelay, cfg.MaxReconnectDelay,
		cfg.ReconnectDelayMultiplier, cfg.MaxReconnectAttempts)
	c.bus = NewBus(c.logger)
	c.bus.OnPanic = func(error) { c.metrics.RecordError() }

	return c, nil
}

// unlock releases the core lock and delivers queued events.
func (c *Core) unlock() {
	c.mu.Unlock()
	c.dispatch.run()
}

// Connect starts connecting. It fails fast unless the core is idle, closed
// or waiting to reconnect; from reconnecting it skips the remaining backoff
// wait but keeps the backoff state.
func (c *Core) Connect() (*Outcome, error) {
	c.mu.Lock()
	defer c.unlock()

	switch c.state {
	case StateConnecting, StateConnected, StateAuthenticating:
		return nil, ErrAlreadyConnecting
	case StateReady:
		return nil, ErrAlreadyReady
	case StateReconnecting:
		c.scheduler.Cancel()
	default:
		c.scheduler.Reset()
	}

	out := newOutcome()
	c.outcomes = append(c.outcomes, out)
	c.beginConnectLocked()
	return out, nil
}

// Login authenticates an open, unauthenticated session.
func (c *Core) Login(token string) (*Outcome, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	c.mu.Lock()
	defer c.unlock()

	switch c.state {
	case StateConnected:
	case StateAuthenticating, StateReady:
		return nil, fmt.Errorf("%w: login in state %s", ErrInvalidState, c.state)
	default:
		return nil, ErrNotConnected
	}

	c.token = token
	out := newOutcome()
	c.outcomes = append(c.outcomes, out)
	c.authenticateLocked()
	return out, nil
}

// Send transmits cmd immediately when ready. Otherwise the command is queued
// and flushed on the next ready transition, or rejected when
// WithQueueIfOffline(false) is given. Transport failures are never returned:
// a failed write queues the command and drops the connection, so the
// reconnect flushes it ahead of anything sent later.
//
// The write happens under the core lock and may hold it for up to
// Config.WriteTimeout.
func (c *Core) Send(cmd protocol.Command, opts ...SendOption) (SendResult, error) {
	o := sendOptions{queueIfOffline: true}
	for _, opt := range opts {
		opt(&o)
	}

	if err := protocol.Validate(cmd); err != nil {
		return SendRejected, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if protocol.IsControl(cmd) {
		return SendRejected, fmt.Errorf("%w: %s is reserved for the connection", protocol.ErrInvalidCommand, cmd.CommandType())
	}

	c.mu.Lock()
	defer c.unlock()

	var writeErr error
	if c.state == StateReady {
		data, err := c.codec.Encode(cmd)
		if err != nil {
			return SendRejected, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		err = c.transport.Send(data)
		if err == nil {
			if o.callbacks.OnAccepted != nil {
				c.postCallback(o.callbacks.OnAccepted)
			}
			c.sentLocked(cmd)
			return SendSent, nil
		}
		c.logger.Warn("write failed", "type", cmd.CommandType(), "error", err)
		writeErr = fmt.Errorf("write: %w", err)
	}

	if !o.queueIfOffline {
		if writeErr != nil {
			c.dropLocked(ReasonError, writeErr)
		}
		return SendRejected, ErrNotConnected
	}

	c.queue.Enqueue(cmd, c.deferred(o.callbacks))
	c.metrics.SetQueueSize(c.queue.Len())
	if c.cfg.DebugLogging {
		c.logger.Debug("command queued", "type", cmd.CommandType(), "state", c.state.String(), "queued", c.queue.Len())
	}
	if writeErr != nil {
		c.dropLocked(ReasonError, writeErr)
	}
	return SendQueued, nil
}

// Disconnect closes the session and cancels every pending timer. It never
// triggers a reconnect. Calling it again is a no-op.
func (c *Core) Disconnect() {
	c.mu.Lock()
	defer c.unlock()

	if c.state == StateClosed {
		return
	}

	c.logger.Info("disconnecting", "state", c.state.String())

	c.gen++
	c.scheduler.Cancel()
	wasOpen := c.teardownLocked()
	if wasOpen {
		c.emitLocked(DisconnectedEvent{Reason: ReasonNormal})
	}
	c.setStateLocked(StateClosed)
	c.resolveLocked(ErrClosed)
}

// Close disconnects and drops every subscription.
func (c *Core) Close() error {
	c.Disconnect()
	c.bus.Clear()
	return nil
}

// On subscribes listener to kind.
func (c *Core) On(kind EventKind, listener Listener) *Subscription {
	return c.bus.Subscribe(kind, listener)
}

// Off removes a subscription.
func (c *Core) Off(sub *Subscription) bool {
	return c.bus.Unsubscribe(sub)
}

func (c *Core) OnConnected(fn func(ConnectedEvent)) *Subscription {
	return c.On(EventConnected, func(ev Event) { fn(ev.(ConnectedEvent)) })
}

func (c *Core) OnDisconnected(fn func(DisconnectedEvent)) *Subscription {
	return c.On(EventDisconnected, func(ev Event) { fn(ev.(DisconnectedEvent)) })
}

func (c *Core) OnMessage(fn func(MessageEvent)) *Subscription {
	return c.On(EventMessage, func(ev Event) { fn(ev.(MessageEvent)) })
}

func (c *Core) OnError(fn func(ErrorEvent)) *Subscription {
	return c.On(EventError, func(ev Event) { fn(ev.(ErrorEvent)) })
}

func (c *Core) OnReconnectAttempt(fn func(ReconnectAttemptEvent)) *Subscription {
	return c.On(EventReconnectAttempt, func(ev Event) { fn(ev.(ReconnectAttemptEvent)) })
}

func (c *Core) OnStateChange(fn func(StateChangeEvent)) *Subscription {
	return c.On(EventStateChange, func(ev Event) { fn(ev.(StateChangeEvent)) })
}

func (c *Core) OnMessageSent(fn func(MessageSentEvent)) *Subscription {
	return c.On(EventMessageSent, func(ev Event) { fn(ev.(MessageSentEvent)) })
}

func (c *Core) OnAuthChange(fn func(AuthChangeEvent)) *Subscription {
	return c.On(EventAuthChange, func(ev Event) { fn(ev.(AuthChangeEvent)) })
}

// State returns the current state.
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is open.
func (c *Core) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnected, StateAuthenticating, StateReady:
		return true
	}
	return false
}

// IsAuthenticated reports whether the server acknowledged a login on the
// current session.
func (c *Core) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// SessionID returns the id from the last auth ack.
func (c *Core) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Endpoint returns the URL of the current or last transport.
func (c *Core) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Metrics returns a metrics snapshot.
func (c *Core) Metrics() metrics.Snapshot {
	s := c.metrics.Snapshot()
	s.QueueSize = c.queue.Len()
	return s
}

// Reconnection returns the reconnect scheduler state.
func (c *Core) Reconnection() ReconnectionState {
	return c.scheduler.State()
}

// QueueStats returns offline queue counters.
func (c *Core) QueueStats() queue.Stats {
	return c.queue.Stats()
}

// beginConnectLocked enters connecting and dials in the background.
func (c *Core) beginConnectLocked() {
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.connectTimer = time.AfterFunc(c.cfg.ConnectionTimeout, func() { c.onConnectTimeout(gen) })

	go c.dial(ctx, gen)
}

func (c *Core) dial(ctx context.Context, gen uint64) {
	endpoint, err := c.resolve(ctx)
	var transport Client
	if err == nil {
		transport = c.newClient(c.cfg.clientConfig(endpoint, c.codec.Frame()), c.logger.With("endpoint", endpoint))
		err = transport.Connect(ctx)
	}

	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateConnecting {
		// Timed out or disconnected while dialing.
		if err == nil {
			transport.Close()
		}
		return
	}

	c.stopTimer(&c.connectTimer)
	c.cancelDial()
	c.cancelDial = nil

	if err != nil {
		c.logger.Warn("connect failed", "endpoint", endpoint, "error", err)
		c.failLocked(ReasonError, fmt.Errorf("connect: %w", err))
		return
	}

	c.logger.Info("connected", "endpoint", endpoint)

	c.transport = transport
	c.endpoint = endpoint
	c.stopPump = make(chan struct{})
	go c.pump(transport, gen, c.stopPump)

	c.metrics.RecordConnected()
	c.emitLocked(ConnectedEvent{Endpoint: endpoint})
	c.setStateLocked(StateConnected)

	switch {
	case c.token != "":
		c.authenticateLocked()
	case c.cfg.authRequired():
		c.logger.Info("waiting for login")
		c.resolveLocked(nil)
	default:
		c.readyLocked()
	}
}

func (c *Core) resolve(ctx context.Context) (string, error) {
	if c.cfg.URL != "" {
		return c.cfg.URL, nil
	}
	endpoint, err := c.dir.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint: %w", err)
	}
	return endpoint, nil
}

func (c *Core) onConnectTimeout(gen uint64) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateConnecting {
		return
	}

	c.logger.Warn("connection timeout", "timeout", c.cfg.ConnectionTimeout)
	c.failLocked(ReasonTimeout, ErrConnectTimeout)
}

// authenticateLocked sends the auth command and arms the auth timeout.
func (c *Core) authenticateLocked() {
	c.setStateLocked(StateAuthenticating)

	data, err := c.codec.Encode(protocol.Auth{Token: c.token})
	if err == nil {
		err = c.transport.Send(data)
	}
	if err != nil {
		c.logger.Warn("auth send failed", "error", err)
		c.dropLocked(ReasonError, fmt.Errorf("send auth: %w", err))
		return
	}

	gen := c.gen
	c.authTimer = time.AfterFunc(c.cfg.AuthTimeout, func() { c.onAuthTimeout(gen) })
}

func (c *Core) onAuthTimeout(gen uint64) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateAuthenticating {
		return
	}
	c.authFailedLocked(ErrAuthTimeout)
}

// authFailedLocked closes the session without retry; the same credential
// cannot succeed later. Queued commands are kept for the next Connect.
func (c *Core) authFailedLocked(err error) {
	c.logger.Warn("authentication failed", "error", err)

	c.gen++
	c.teardownLocked()
	c.metrics.RecordError()
	c.emitLocked(AuthChangeEvent{Authenticated: false})
	c.emitLocked(ErrorEvent{Err: err})
	c.emitLocked(DisconnectedEvent{Reason: ReasonError, Err: err})
	c.setStateLocked(StateClosed)
	c.resolveLocked(err)
}

// readyLocked enters the ready state: heartbeat started, queue flushed,
// backoff reset. A flush that fails to write takes the disconnect path with
// the backoff intact, so a link that accepts the handshake but not writes
// still exhausts the budget.
func (c *Core) readyLocked() {
	c.setStateLocked(StateReady)
	c.startHeartbeatLocked()
	if err := c.flushLocked(); err != nil {
		c.dropLocked(ReasonError, err)
		return
	}

	if c.scheduler.State().Attempts > 0 {
		c.metrics.RecordReconnectSuccess()
	}
	c.scheduler.Reset()
	c.resolveLocked(nil)
}

// flushLocked transmits queued commands in order. On a write failure the
// unsent remainder goes back to the front of the queue and the error is
// returned.
func (c *Core) flushLocked() error {
	entries := c.queue.Flush()
	if len(entries) == 0 {
		return nil
	}

	c.logger.Info("flushing queued commands", "count", len(entries))

	for i := range entries {
		e := &entries[i]
		e.Attempts++

		data, err := c.codec.Encode(e.Command)
		if err != nil {
			e.Reject(fmt.Errorf("%w: %w", ErrEncode, err))
			continue
		}
		if err := c.transport.Send(data); err != nil {
			c.logger.Warn("flush interrupted", "remaining", len(entries)-i, "error", err)
			c.queue.Requeue(entries[i:])
			c.metrics.SetQueueSize(c.queue.Len())
			return fmt.Errorf("write: %w", err)
		}
		e.Accept()
		c.sentLocked(e.Command)
	}

	c.metrics.SetQueueSize(c.queue.Len())
	return nil
}

func (c *Core) sentLocked(cmd protocol.Command) {
	c.metrics.RecordMessageSent()
	if c.cfg.DebugLogging {
		c.logger.Debug("command sent", "type", cmd.CommandType())
	}
	c.emitLocked(MessageSentEvent{Command: cmd})
}

func (c *Core) startHeartbeatLocked() {
	if c.cfg.HeartbeatInterval < 0 {
		return
	}
	gen := c.gen
	c.heartbeat = NewHeartbeat(c.cfg.HeartbeatInterval, c.cfg.HeartbeatTimeout,
		func(seq uint64) error { return c.sendPing(gen, seq) },
		func() { c.onHeartbeatTimeout(gen) },
		c.logger,
	)
	c.heartbeat.Start()
}

func (c *Core) sendPing(gen, seq uint64) error {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateReady {
		return ErrNotConnected
	}

	data, err := c.codec.Encode(protocol.Ping{Seq: seq, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if c.cfg.DebugLogging {
		c.logger.Debug("ping", "seq", seq)
	}
	return c.transport.Send(data)
}

func (c *Core) onHeartbeatTimeout(gen uint64) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateReady {
		return
	}
	c.dropLocked(ReasonTimeout, ErrHeartbeatTimeout)
}

// pump forwards transport frames and errors into the core until stop is
// closed.
func (c *Core) pump(transport Client, gen uint64, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-transport.Messages():
			c.handleFrame(gen, msg)
		case err := <-transport.Errors():
			// Deliver frames that arrived before the failure.
			for {
				select {
				case msg := <-transport.Messages():
					c.handleFrame(gen, msg)
					continue
				default:
				}
				break
			}
			c.handleTransportError(gen, err)
			return
		}
	}
}

func (c *Core) handleFrame(gen uint64, frame TimestampedMessage) {
	msg, decodeErr := c.codec.Decode(frame.Data)

	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen {
		return
	}

	c.metrics.RecordMessageReceived()

	if decodeErr != nil {
		c.logger.Warn("dropping undecodable frame", "size", len(frame.Data), "error", decodeErr)
		c.metrics.RecordError()
		c.emitLocked(ErrorEvent{Err: fmt.Errorf("decode frame: %w", decodeErr)})
		return
	}

	if c.cfg.DebugLogging {
		c.logger.Debug("frame received", "type", msg.MessageType(), "size", len(frame.Data))
	}

	switch m := msg.(type) {
	case protocol.Pong:
		if c.heartbeat == nil {
			return
		}
		if rtt, ok := c.heartbeat.Pong(m.Seq); ok {
			c.metrics.RecordLatency(rtt)
		}

	case protocol.AuthAck:
		if c.state != StateAuthenticating {
			c.logger.Debug("ignoring auth ack", "state", c.state.String())
			return
		}
		c.stopTimer(&c.authTimer)
		c.sessionID = m.SessionID
		c.authenticated = true
		c.logger.Info("authenticated", "session_id", m.SessionID, "player_id", m.PlayerID)
		c.emitLocked(AuthChangeEvent{Authenticated: true})
		c.readyLocked()

	case protocol.AuthReject:
		if c.state != StateAuthenticating {
			c.logger.Debug("ignoring auth reject", "state", c.state.String())
			return
		}
		c.token = ""
		c.authFailedLocked(fmt.Errorf("%w: %s", ErrAuthRejected, m.Reason))

	default:
		c.emitLocked(MessageEvent{Message: msg, ReceivedAt: frame.ReceivedAt})
	}
}

func (c *Core) handleTransportError(gen uint64, err error) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen {
		return
	}

	reason := ReasonError
	var terr *TransportError
	if errors.As(err, &terr) && terr.Normal() {
		reason = ReasonNormal
	}

	c.logger.Warn("connection lost", "state", c.state.String(), "reason", string(reason), "error", err)
	c.dropLocked(reason, err)
}

// failLocked handles a connect attempt that never opened the transport.
func (c *Core) failLocked(reason DisconnectReason, err error) {
	c.metrics.RecordError()
	c.emitLocked(ErrorEvent{Err: err})
	c.lostLocked(reason, err)
}

// dropLocked handles loss of an open transport: unexpected close, heartbeat
// timeout or write failure.
func (c *Core) dropLocked(reason DisconnectReason, err error) {
	if reason != ReasonNormal {
		c.metrics.RecordError()
	}
	c.emitLocked(DisconnectedEvent{Reason: reason, Err: err})
	c.lostLocked(reason, err)
}

// lostLocked is the shared path after any unexpected loss. It schedules a
// reconnect while the budget lasts and closes otherwise.
func (c *Core) lostLocked(reason DisconnectReason, err error) {
	c.gen++
	c.teardownLocked()

	if !c.cfg.autoReconnect() {
		c.giveUpLocked(fmt.Errorf("%w: %w", ErrNotConnected, err))
		return
	}

	exhausted := false
	onAttempt := func(attempt, max int, delay time.Duration) {
		c.metrics.RecordReconnectAttempt(delay)
		c.logger.Info("reconnecting", "attempt", attempt, "max_attempts", max, "delay", delay, "reason", string(reason))
		c.emitLocked(ReconnectAttemptEvent{Attempt: attempt, MaxAttempts: max, Delay: delay})
	}

	if c.scheduler.Exhausted() {
		exhausted = true
	} else {
		c.setStateLocked(StateReconnecting)
		gen := c.gen
		c.scheduler.Schedule(func() { c.retry(gen) }, onAttempt, func() { exhausted = true })
	}

	if exhausted {
		c.logger.Error("giving up", "attempts", c.scheduler.State().Attempts)
		c.emitLocked(ErrorEvent{Err: ErrReconnectExhausted})
		c.giveUpLocked(ErrReconnectExhausted)
	}
}

func (c *Core) retry(gen uint64) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.gen || c.state != StateReconnecting {
		return
	}
	c.beginConnectLocked()
}

// giveUpLocked closes the session and rejects everything still queued.
func (c *Core) giveUpLocked(reason error) {
	if n := c.queue.Clear(true, reason); n > 0 {
		c.logger.Warn("discarded queued commands", "count", n)
	}
	c.metrics.SetQueueSize(0)
	c.setStateLocked(StateClosed)
	c.resolveLocked(reason)
}

// teardownLocked stops every timer and closes the transport. It reports
// whether a transport was open.
func (c *Core) teardownLocked() bool {
	c.stopTimer(&c.connectTimer)
	c.stopTimer(&c.authTimer)
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}

	if c.authenticated {
		c.authenticated = false
		c.emitLocked(AuthChangeEvent{Authenticated: false})
	}

	if c.transport == nil {
		return false
	}

	close(c.stopPump)
	c.stopPump = nil
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
	c.transport = nil
	c.metrics.RecordDisconnected()
	return true
}

func (c *Core) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Core) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Debug("state change", "from", from.String(), "to", to.String())
	c.emitLocked(StateChangeEvent{From: from, To: to})
}

func (c *Core) resolveLocked(err error) {
	for _, o := range c.outcomes {
		o.resolve(err)
	}
	c.outcomes = nil
}

func (c *Core) emitLocked(ev Event) {
	c.dispatch.post(func() { c.bus.Publish(ev) })
}

// postCallback defers a user callback to the dispatcher. A panic is
// recovered and reported like a listener panic.
func (c *Core) postCallback(fn func()) {
	c.dispatch.post(func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: send callback: %v", ErrListenerPanic, r)
				c.logger.Error("send callback panicked", "error", err)
				c.metrics.RecordError()
				c.bus.Publish(ErrorEvent{Err: err})
			}
		}()
		fn()
	})
}

// deferred wraps queue callbacks so they run through the dispatcher rather
// than under the core lock.
func (c *Core) deferred(cb queue.Callbacks) queue.Callbacks {
	var out queue.Callbacks
	if cb.OnAccepted != nil {
		out.OnAccepted = func() { c.postCallback(cb.OnAccepted) }
	}
	if cb.OnRejected != nil {
		out.OnRejected = func(err error) { c.postCallback(func() { cb.OnRejected(err) }) }
	}
	return out
}
