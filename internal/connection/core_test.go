package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/gamelink/internal/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

// envelope is a frame as seen by the fake server.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// fakeServer hands out fakeClients and scripts their behaviour.
type fakeServer struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	hang      bool
	gate      chan struct{}
	authReply string // "ok", "reject" or "" for silence
	pongs     bool
	sendErr   error
	frames    []envelope
	clients   []*fakeClient
}

func (s *fakeServer) dialer(cfg ClientConfig, _ *slog.Logger) Client {
	c := &fakeClient{
		srv:  s,
		url:  cfg.URL,
		msgs: make(chan TimestampedMessage, 64),
		errs: make(chan error, 1),
	}
	s.mu.Lock()
	s.clients = append(s.clients, c)
	s.mu.Unlock()
	return c
}

func (s *fakeServer) set(fn func(s *fakeServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) lastClient() *fakeClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[len(s.clients)-1]
}

// appFrames returns received frame types, excluding heartbeat pings.
func (s *fakeServer) appFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		if f.Type != protocol.TypePing {
			out = append(out, f.Type)
		}
	}
	return out
}

func (s *fakeServer) countType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

// moves returns the DX of every move_by frame in arrival order.
func (s *fakeServer) moves() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, f := range s.frames {
		if f.Type != protocol.TypeMoveBy {
			continue
		}
		var m protocol.MoveBy
		json.Unmarshal(f.Data, &m)
		out = append(out, m.DX)
	}
	return out
}

type fakeClient struct {
	srv  *fakeServer
	url  string
	msgs chan TimestampedMessage
	errs chan error

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (c *fakeClient) Connect(ctx context.Context) error {
	s := c.srv
	s.mu.Lock()
	s.dials++
	err, hang, gate := s.dialErr, s.hang, s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	ok := c.connected
	c.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	s := c.srv
	s.mu.Lock()
	sendErr, reply, pongs := s.sendErr, s.authReply, s.pongs
	if sendErr == nil {
		s.frames = append(s.frames, env)
	}
	s.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}

	switch env.Type {
	case protocol.TypeAuth:
		switch reply {
		case "ok":
			c.push(`{"type":"auth_ok","data":{"session_id":"s-1","player_id":"p-1"}}`)
		case "reject":
			c.push(`{"type":"auth_error","data":{"reason":"bad token"}}`)
		}
	case protocol.TypePing:
		if pongs {
			var p protocol.Ping
			json.Unmarshal(env.Data, &p)
			c.push(fmt.Sprintf(`{"type":"pong","data":{"seq":%d}}`, p.Seq))
		}
	}
	return nil
}

func (c *fakeClient) Messages() <-chan TimestampedMessage { return c.msgs }
func (c *fakeClient) Errors() <-chan error                { return c.errs }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) push(frame string) {
	c.msgs <- TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}
}

// drop simulates the socket dying.
func (c *fakeClient) drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.errs <- err
}

type fakeDirectory struct {
	url string
	err error
}

func (d fakeDirectory) Resolve(context.Context) (string, error) { return d.url, d.err }

// recorder captures every event in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(core *Core) *recorder {
	r := &recorder{}
	for kind := EventConnected; kind <= EventAuthChange; kind++ {
		core.On(kind, func(ev Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) ofKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) states() []State {
	var out []State
	for _, ev := range r.ofKind(EventStateChange) {
		out = append(out, ev.(StateChangeEvent).To)
	}
	return out
}

func (r *recorder) errs() []error {
	var out []error
	for _, ev := range r.ofKind(EventError) {
		out = append(out, ev.(ErrorEvent).Err)
	}
	return out
}

func newTestCore(t *testing.T, srv *fakeServer, cfg Config, opts ...Option) *Core {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://game.test/play"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = -1
	}
	core, err := New(cfg, append([]Option{WithDialer(srv.dialer)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })
	return core
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

func connectReady(t *testing.T, core *Core) {
	t.Helper()
	out, err := core.Connect()
	require.NoError(t, err)
	require.NoError(t, out.Wait(waitCtx(t)))
	require.Equal(t, StateReady, core.State())
}

func eventuallyState(t *testing.T, core *Core, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return core.State() == want }, waitFor, tick,
		"state = %s, want %s", core.State(), want)
}

func TestCore_ConnectWithoutAuth(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})
	rec := record(core)

	assert.Equal(t, StateIdle, core.State())
	connectReady(t, core)

	assert.True(t, core.IsConnected())
	assert.False(t, core.IsAuthenticated())
	assert.Equal(t, "ws://game.test/play", core.Endpoint())

	require.Eventually(t, func() bool { return len(rec.states()) == 3 }, waitFor, tick)
	assert.Equal(t, []State{StateConnecting, StateConnected, StateReady}, rec.states())
	require.Len(t, rec.ofKind(EventConnected), 1)
	assert.Equal(t, "ws://game.test/play", rec.ofKind(EventConnected)[0].(ConnectedEvent).Endpoint)
	assert.Empty(t, srv.appFrames(), "no auth frame without a token")
	assert.False(t, core.Metrics().ConnectedAt.IsZero())
}

func TestCore_ConnectWithAuth(t *testing.T) {
	srv := &fakeServer{authReply: "ok"}
	core := newTestCore(t, srv, Config{AuthToken: "secret"})
	rec := record(core)

	connectReady(t, core)

	assert.True(t, core.IsAuthenticated())
	assert.Equal(t, "s-1", core.SessionID())
	assert.Equal(t, []string{protocol.TypeAuth}, srv.appFrames())

	require.Eventually(t, func() bool { return len(rec.states()) == 4 }, waitFor, tick)
	assert.Equal(t, []State{StateConnecting, StateConnected, StateAuthenticating, StateReady}, rec.states())
	require.Len(t, rec.ofKind(EventAuthChange), 1)
	assert.True(t, rec.ofKind(EventAuthChange)[0].(AuthChangeEvent).Authenticated)
}

func TestCore_AuthRejectCloses(t *testing.T) {
	srv := &fakeServer{authReply: "reject"}
	core := newTestCore(t, srv, Config{AuthToken: "wrong", InitialReconnectDelay: 5 * time.Millisecond})
	rec := record(core)

	out, err := core.Connect()
	require.NoError(t, err)

	err = out.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Contains(t, err.Error(), "bad token")
	assert.Equal(t, StateClosed, core.State())
	assert.False(t, core.IsAuthenticated())

	require.Eventually(t, func() bool { return len(rec.ofKind(EventAuthChange)) == 1 }, waitFor, tick)
	assert.False(t, rec.ofKind(EventAuthChange)[0].(AuthChangeEvent).Authenticated)
	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, tick)
	assert.ErrorIs(t, rec.errs()[0], ErrAuthRejected)

	// No automatic retry.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, srv.dialCount())
	assert.True(t, srv.lastClient().isClosed())
}

func TestCore_AuthTimeoutCloses(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{AuthToken: "tok", AuthTimeout: 20 * time.Millisecond})

	out, err := core.Connect()
	require.NoError(t, err)

	assert.ErrorIs(t, out.Wait(waitCtx(t)), ErrAuthTimeout)
	assert.Equal(t, StateClosed, core.State())
	assert.Equal(t, 1, srv.dialCount())
}

func TestCore_Login(t *testing.T) {
	srv := &fakeServer{authReply: "ok"}
	core := newTestCore(t, srv, Config{RequireAuth: true})

	_, err := core.Login("tok")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = core.Login("")
	assert.ErrorIs(t, err, ErrEmptyToken)

	out, err := core.Connect()
	require.NoError(t, err)
	require.NoError(t, out.Wait(waitCtx(t)))
	assert.Equal(t, StateConnected, core.State())
	assert.True(t, core.IsConnected())

	// Commands wait for the login.
	res, err := core.Send(protocol.MoveBy{DX: 1})
	require.NoError(t, err)
	assert.Equal(t, SendQueued, res)

	login, err := core.Login("tok")
	require.NoError(t, err)
	require.NoError(t, login.Wait(waitCtx(t)))
	assert.Equal(t, StateReady, core.State())
	assert.True(t, core.IsAuthenticated())
	assert.Equal(t, []string{protocol.TypeAuth, protocol.TypeMoveBy}, srv.appFrames())

	_, err = core.Login("tok")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCore_QueuedWhileConnectingFlushedOnce(t *testing.T) {
	gate := make(chan struct{})
	srv := &fakeServer{gate: gate}
	core := newTestCore(t, srv, Config{})

	_, err := core.Connect()
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, core.State())

	var accepted atomic.Int32
	for i := 1; i <= 3; i++ {
		res, err := core.Send(protocol.MoveBy{DX: i}, WithCallbacks(func() { accepted.Add(1) }, nil))
		require.NoError(t, err)
		assert.Equal(t, SendQueued, res)
	}
	assert.Equal(t, 3, core.Metrics().QueueSize)

	close(gate)
	eventuallyState(t, core, StateReady)

	require.Eventually(t, func() bool { return accepted.Load() == 3 }, waitFor, tick)
	assert.Equal(t, []int{1, 2, 3}, srv.moves())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, srv.moves(), "each command transmitted exactly once")
	assert.Equal(t, 0, core.Metrics().QueueSize)
	assert.Equal(t, int64(3), core.Metrics().MessagesSent)
}

func TestCore_SendRejections(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})

	res, err := core.Send(protocol.MoveBy{DX: 1}, WithQueueIfOffline(false))
	assert.Equal(t, SendRejected, res)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, int64(0), core.QueueStats().Enqueued)

	res, err = core.Send(protocol.MoveBy{})
	assert.Equal(t, SendRejected, res)
	assert.ErrorIs(t, err, ErrEncode)
	assert.ErrorIs(t, err, protocol.ErrInvalidCommand)

	res, err = core.Send(nil)
	assert.Equal(t, SendRejected, res)
	assert.ErrorIs(t, err, ErrEncode)

	res, err = core.Send(protocol.Ping{Seq: 1})
	assert.Equal(t, SendRejected, res)
	assert.ErrorIs(t, err, protocol.ErrInvalidCommand)

	assert.Equal(t, 0, core.Metrics().QueueSize)
}

func TestCore_SendWhenReady(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})
	rec := record(core)
	connectReady(t, core)

	res, err := core.Send(protocol.UseItem{ItemID: "potion"})
	require.NoError(t, err)
	assert.Equal(t, SendSent, res)

	assert.Equal(t, []string{protocol.TypeUseItem}, srv.appFrames())
	assert.Equal(t, int64(1), core.Metrics().MessagesSent)
	require.Eventually(t, func() bool { return len(rec.ofKind(EventMessageSent)) == 1 }, waitFor, tick)
	assert.Equal(t, protocol.UseItem{ItemID: "potion"}, rec.ofKind(EventMessageSent)[0].(MessageSentEvent).Command)
}

func TestCore_SendFailureQueuesAndReconnects(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: 20 * time.Millisecond})
	rec := record(core)
	connectReady(t, core)
	first := srv.lastClient()

	srv.set(func(s *fakeServer) { s.sendErr = errors.New("broken pipe") })

	res, err := core.Send(protocol.MoveBy{DX: 1})
	require.NoError(t, err, "transport errors are not returned")
	assert.Equal(t, SendQueued, res)
	assert.Equal(t, StateReconnecting, core.State(), "a failed write drops the connection")
	assert.True(t, first.isClosed())

	srv.set(func(s *fakeServer) { s.sendErr = nil })

	res, err = core.Send(protocol.MoveBy{DX: 2})
	require.NoError(t, err)
	assert.Equal(t, SendQueued, res, "later commands wait behind the failed one")

	require.Eventually(t, func() bool {
		return core.State() == StateReady && len(srv.moves()) == 2
	}, waitFor, tick)
	assert.Equal(t, []int{1, 2}, srv.moves())
	assert.Equal(t, 2, srv.dialCount())
	assert.Equal(t, 0, core.Metrics().QueueSize)

	require.Eventually(t, func() bool { return len(rec.ofKind(EventDisconnected)) == 1 }, waitFor, tick)
	ev := rec.ofKind(EventDisconnected)[0].(DisconnectedEvent)
	assert.Equal(t, ReasonError, ev.Reason)
	assert.ErrorContains(t, ev.Err, "broken pipe")
}

func TestCore_SendFailureWithoutQueueing(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: time.Minute, MaxReconnectDelay: time.Minute})
	connectReady(t, core)

	srv.set(func(s *fakeServer) { s.sendErr = errors.New("broken pipe") })

	res, err := core.Send(protocol.UseItem{ItemID: "potion"}, WithQueueIfOffline(false))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, SendRejected, res)
	assert.Equal(t, StateReconnecting, core.State())
	assert.Equal(t, 0, core.Metrics().QueueSize)
}

func TestCore_PersistentWriteFailureExhausts(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{
		MaxReconnectAttempts:  2,
		InitialReconnectDelay: 20 * time.Millisecond,
	})
	connectReady(t, core)

	// Handshakes succeed but every write fails.
	srv.set(func(s *fakeServer) { s.sendErr = errors.New("broken pipe") })

	var mu sync.Mutex
	var rejected []error
	for i := 1; i <= 3; i++ {
		res, err := core.Send(protocol.MoveBy{DX: i}, WithCallbacks(nil, func(err error) {
			mu.Lock()
			rejected = append(rejected, err)
			mu.Unlock()
		}))
		require.NoError(t, err)
		require.Equal(t, SendQueued, res)
	}

	eventuallyState(t, core, StateClosed)
	assert.Equal(t, 3, srv.dialCount(), "initial dial plus two attempts")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rejected) == 3
	}, waitFor, tick)
	for _, err := range rejected {
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	}
	assert.Empty(t, srv.moves())
	assert.Equal(t, int64(0), core.Metrics().ReconnectSuccesses, "ready without a flush is not a recovery")
}

func TestCore_MessageEvents(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})
	rec := record(core)
	connectReady(t, core)

	client := srv.lastClient()
	client.push(`{"type":"world_update","data":{"tick":"7"}}`)
	client.push(`not json`)

	require.Eventually(t, func() bool { return len(rec.ofKind(EventMessage)) == 1 }, waitFor, tick)
	msg := rec.ofKind(EventMessage)[0].(MessageEvent)
	assert.Equal(t, protocol.ServerEvent{Type: "world_update", Payload: map[string]any{"tick": "7"}}, msg.Message)
	assert.False(t, msg.ReceivedAt.IsZero())

	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, tick)
	assert.Contains(t, rec.errs()[0].Error(), "decode frame")

	m := core.Metrics()
	assert.Equal(t, int64(2), m.MessagesReceived)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, StateReady, core.State(), "bad frames do not affect the session")
}

func TestCore_DropReconnects(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: 10 * time.Millisecond})
	rec := record(core)
	connectReady(t, core)

	first := srv.lastClient()
	first.drop(&TransportError{Code: websocket.CloseAbnormalClosure, Err: io.ErrUnexpectedEOF})

	require.Eventually(t, func() bool { return srv.dialCount() == 2 && core.State() == StateReady }, waitFor, tick)
	assert.True(t, first.isClosed())

	require.Eventually(t, func() bool { return len(rec.ofKind(EventReconnectAttempt)) == 1 }, waitFor, tick)
	attempt := rec.ofKind(EventReconnectAttempt)[0].(ReconnectAttemptEvent)
	assert.Equal(t, ReconnectAttemptEvent{Attempt: 1, MaxAttempts: DefaultMaxReconnectAttempts, Delay: 10 * time.Millisecond}, attempt)

	require.Len(t, rec.ofKind(EventDisconnected), 1)
	assert.Equal(t, ReasonError, rec.ofKind(EventDisconnected)[0].(DisconnectedEvent).Reason)

	require.Eventually(t, func() bool { return len(rec.states()) == 7 }, waitFor, tick)
	assert.Equal(t, []State{
		StateConnecting, StateConnected, StateReady,
		StateReconnecting, StateConnecting, StateConnected, StateReady,
	}, rec.states())

	m := core.Metrics()
	assert.Equal(t, int64(1), m.ReconnectAttempts)
	assert.Equal(t, int64(1), m.ReconnectSuccesses)
	assert.Equal(t, 0, core.Reconnection().Attempts, "backoff reset on ready")
}

func TestCore_NormalCloseStillReconnects(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: 5 * time.Millisecond})
	rec := record(core)
	connectReady(t, core)

	srv.lastClient().drop(&TransportError{Code: websocket.CloseNormalClosure, Err: errors.New("bye")})

	require.Eventually(t, func() bool { return len(rec.ofKind(EventDisconnected)) == 1 }, waitFor, tick)
	assert.Equal(t, ReasonNormal, rec.ofKind(EventDisconnected)[0].(DisconnectedEvent).Reason)
	require.Eventually(t, func() bool { return srv.dialCount() == 2 }, waitFor, tick)
}

func TestCore_ExhaustedRejectsQueue(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{
		MaxReconnectAttempts:  2,
		InitialReconnectDelay: 5 * time.Millisecond,
	})
	rec := record(core)
	connectReady(t, core)

	// The first failed write drops the connection; both land in the queue.
	srv.set(func(s *fakeServer) {
		s.sendErr = errors.New("broken pipe")
		s.dialErr = errors.New("connection refused")
	})

	var mu sync.Mutex
	var rejected []error
	for i := 1; i <= 2; i++ {
		res, err := core.Send(protocol.MoveBy{DX: i}, WithCallbacks(nil, func(err error) {
			mu.Lock()
			rejected = append(rejected, err)
			mu.Unlock()
		}))
		require.NoError(t, err)
		require.Equal(t, SendQueued, res)
	}

	eventuallyState(t, core, StateClosed)
	assert.Equal(t, 3, srv.dialCount(), "initial dial plus two attempts")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rejected) == 2
	}, waitFor, tick)
	for _, err := range rejected {
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	}
	assert.Equal(t, 0, core.Metrics().QueueSize)

	require.Eventually(t, func() bool {
		for _, err := range rec.errs() {
			if errors.Is(err, ErrReconnectExhausted) {
				return true
			}
		}
		return false
	}, waitFor, tick)

	// Diagnostics survive the terminal transition.
	assert.Equal(t, int64(2), core.Metrics().ReconnectAttempts)
	assert.False(t, core.Reconnection().IsScheduled)
}

func TestCore_NoAutoReconnect(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{AutoReconnect: Bool(false)})
	connectReady(t, core)

	srv.set(func(s *fakeServer) { s.sendErr = errors.New("broken pipe") })
	rejected := make(chan error, 1)
	_, err := core.Send(protocol.DropItem{ItemID: "rock"}, WithCallbacks(nil, func(err error) { rejected <- err }))
	require.NoError(t, err)

	eventuallyState(t, core, StateClosed)
	select {
	case err := <-rejected:
		assert.ErrorIs(t, err, ErrNotConnected)
	case <-time.After(waitFor):
		t.Fatal("queued command was not rejected")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, srv.dialCount())
}

func TestCore_DisconnectDuringReconnectCancelsRetry(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: 50 * time.Millisecond})
	connectReady(t, core)

	srv.lastClient().drop(&TransportError{Err: io.EOF})
	eventuallyState(t, core, StateReconnecting)
	assert.True(t, core.Reconnection().IsScheduled)

	core.Disconnect()
	assert.Equal(t, StateClosed, core.State())
	assert.False(t, core.Reconnection().IsScheduled)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, srv.dialCount(), "no connect attempt after disconnect")
	assert.Equal(t, StateClosed, core.State())
}

func TestCore_DisconnectIdempotent(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})
	rec := record(core)
	connectReady(t, core)

	core.Disconnect()
	core.Disconnect()

	assert.Equal(t, StateClosed, core.State())
	assert.True(t, srv.lastClient().isClosed())
	require.Eventually(t, func() bool { return len(rec.ofKind(EventDisconnected)) == 1 }, waitFor, tick)
	ev := rec.ofKind(EventDisconnected)[0].(DisconnectedEvent)
	assert.Equal(t, ReasonNormal, ev.Reason)
	assert.NoError(t, ev.Err)

	// Closed restarts only through Connect.
	connectReady(t, core)
	assert.Equal(t, 2, srv.dialCount())
}

func TestCore_DisconnectWhileConnecting(t *testing.T) {
	srv := &fakeServer{hang: true}
	core := newTestCore(t, srv, Config{})

	out, err := core.Connect()
	require.NoError(t, err)
	core.Disconnect()

	assert.ErrorIs(t, out.Wait(waitCtx(t)), ErrClosed)
	assert.Equal(t, StateClosed, core.State())
}

func TestCore_ConnectTimeout(t *testing.T) {
	srv := &fakeServer{hang: true}
	core := newTestCore(t, srv, Config{
		ConnectionTimeout: 20 * time.Millisecond,
		AutoReconnect:     Bool(false),
	})
	rec := record(core)

	out, err := core.Connect()
	require.NoError(t, err)

	err = out.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Equal(t, StateClosed, core.State())

	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, tick)
	assert.ErrorIs(t, rec.errs()[0], ErrConnectTimeout)
	assert.Empty(t, rec.ofKind(EventDisconnected), "transport never opened")
}

func TestCore_ConnectGuards(t *testing.T) {
	gate := make(chan struct{})
	srv := &fakeServer{gate: gate}
	core := newTestCore(t, srv, Config{})

	_, err := core.Connect()
	require.NoError(t, err)
	_, err = core.Connect()
	assert.ErrorIs(t, err, ErrAlreadyConnecting)

	close(gate)
	eventuallyState(t, core, StateReady)

	_, err = core.Connect()
	assert.ErrorIs(t, err, ErrAlreadyReady)
}

func TestCore_ConnectFromReconnecting(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{InitialReconnectDelay: time.Hour, MaxReconnectDelay: time.Hour})
	connectReady(t, core)

	srv.lastClient().drop(&TransportError{Err: io.EOF})
	eventuallyState(t, core, StateReconnecting)

	connectReady(t, core)
	assert.Equal(t, 2, srv.dialCount())
	assert.Equal(t, int64(1), core.Metrics().ReconnectSuccesses)
}

func TestCore_HeartbeatTimeoutReconnects(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{
		HeartbeatInterval:     10 * time.Millisecond,
		HeartbeatTimeout:      20 * time.Millisecond,
		InitialReconnectDelay: 10 * time.Millisecond,
	})
	rec := record(core)
	connectReady(t, core)

	require.Eventually(t, func() bool { return len(rec.ofKind(EventDisconnected)) >= 1 }, waitFor, tick)
	ev := rec.ofKind(EventDisconnected)[0].(DisconnectedEvent)
	assert.Equal(t, ReasonTimeout, ev.Reason)
	assert.ErrorIs(t, ev.Err, ErrHeartbeatTimeout)

	require.Eventually(t, func() bool { return srv.dialCount() >= 2 }, waitFor, tick)
}

func TestCore_HeartbeatRecordsLatency(t *testing.T) {
	srv := &fakeServer{pongs: true}
	core := newTestCore(t, srv, Config{
		HeartbeatInterval: 5 * time.Millisecond,
		HeartbeatTimeout:  time.Second,
	})
	connectReady(t, core)

	require.Eventually(t, func() bool { return core.Metrics().LatencySamples >= 3 }, waitFor, tick)
	assert.GreaterOrEqual(t, srv.countType(protocol.TypePing), 3)
	assert.Equal(t, StateReady, core.State())
	assert.Empty(t, srv.appFrames(), "pings are not application frames")
}

func TestCore_ListenerPanicIsolated(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})

	var mu sync.Mutex
	var seen []State
	var errs []error
	core.OnStateChange(func(StateChangeEvent) { panic("listener bug") })
	core.OnStateChange(func(ev StateChangeEvent) {
		mu.Lock()
		seen = append(seen, ev.To)
		mu.Unlock()
	})
	core.OnError(func(ev ErrorEvent) {
		mu.Lock()
		errs = append(errs, ev.Err)
		mu.Unlock()
	})

	connectReady(t, core)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3 && len(errs) == 3
	}, waitFor, tick)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrListenerPanic)
	}
	assert.Equal(t, StateReady, core.State())
	assert.Equal(t, int64(3), core.Metrics().Errors)
}

func TestCore_ListenerMayCallCore(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})

	var result atomic.Int32
	result.Store(-1)
	core.OnStateChange(func(ev StateChangeEvent) {
		if ev.To == StateReady {
			res, _ := core.Send(protocol.Act{TargetID: "door-1", Action: "open"})
			result.Store(int32(res))
		}
	})

	connectReady(t, core)

	require.Eventually(t, func() bool { return result.Load() == int32(SendSent) }, waitFor, tick)
	assert.Equal(t, []string{protocol.TypeAct}, srv.appFrames())
}

func TestCore_Unsubscribe(t *testing.T) {
	srv := &fakeServer{}
	core := newTestCore(t, srv, Config{})

	var calls atomic.Int32
	sub := core.OnConnected(func(ConnectedEvent) { calls.Add(1) })
	assert.True(t, core.Off(sub))

	connectReady(t, core)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCore_Directory(t *testing.T) {
	srv := &fakeServer{}

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	core, err := New(Config{HeartbeatInterval: -1},
		WithDialer(srv.dialer),
		WithDirectory(fakeDirectory{url: "ws://eu-1.game.test/play"}))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	connectReady(t, core)
	assert.Equal(t, "ws://eu-1.game.test/play", core.Endpoint())
	assert.Equal(t, "ws://eu-1.game.test/play", srv.lastClient().url)
}

func TestCore_DirectoryFailure(t *testing.T) {
	srv := &fakeServer{}
	core, err := New(Config{HeartbeatInterval: -1, AutoReconnect: Bool(false)},
		WithDialer(srv.dialer),
		WithDirectory(fakeDirectory{err: errors.New("no reachable servers")}))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	out, err := core.Connect()
	require.NoError(t, err)

	err = out.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reachable servers")
	assert.Equal(t, 0, srv.dialCount())
}

func TestCore_CBORCodec(t *testing.T) {
	srv := &fakeServer{}
	var frames []ClientConfig
	dial := func(cfg ClientConfig, logger *slog.Logger) Client {
		frames = append(frames, cfg)
		return srv.dialer(cfg, logger)
	}
	core, err := New(Config{URL: "ws://game.test/play", HeartbeatInterval: -1},
		WithDialer(dial), WithCodec(protocol.CBORCodec{}))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	connectReady(t, core)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.FrameBinary, frames[0].Frame)
}

func TestCore_WebSocketEndToEnd(t *testing.T) {
	codec := protocol.JSONCodec{}
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return
			}

			var reply string
			switch env.Type {
			case protocol.TypeAuth:
				reply = `{"type":"auth_ok","data":{"session_id":"ws-session"}}`
			case protocol.TypePing:
				var p protocol.Ping
				json.Unmarshal(env.Data, &p)
				reply = fmt.Sprintf(`{"type":"pong","data":{"seq":%d}}`, p.Seq)
			case protocol.TypeMoveBy:
				reply = `{"type":"position","data":{"x":"1","y":"0"}}`
			}
			if reply != "" {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	})
	defer server.Close()

	core, err := New(Config{
		URL:               wsURL(server),
		AuthToken:         "tok",
		HeartbeatInterval: 10 * time.Millisecond,
	}, WithCodec(codec))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	messages := make(chan protocol.Message, 4)
	core.OnMessage(func(ev MessageEvent) { messages <- ev.Message })

	connectReady(t, core)
	assert.Equal(t, "ws-session", core.SessionID())

	res, err := core.Send(protocol.MoveBy{DX: 1})
	require.NoError(t, err)
	assert.Equal(t, SendSent, res)

	select {
	case msg := <-messages:
		assert.Equal(t, "position", msg.MessageType())
	case <-time.After(waitFor):
		t.Fatal("no message event")
	}

	require.Eventually(t, func() bool { return core.Metrics().LatencySamples > 0 }, waitFor, tick)

	core.Disconnect()
	assert.Equal(t, StateClosed, core.State())
}
