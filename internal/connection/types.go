package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/gamelink/internal/protocol"
)

// Errors
var (
	ErrAlreadyConnecting  = errors.New("connection attempt already in progress")
	ErrAlreadyReady       = errors.New("already connected and ready")
	ErrNotConnected       = errors.New("not connected")
	ErrInvalidState       = errors.New("operation not valid in current state")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrAuthTimeout        = errors.New("authentication timeout")
	ErrEmptyToken         = errors.New("empty auth token")
	ErrEncode             = errors.New("encode command")
	ErrListenerPanic      = errors.New("event listener panicked")
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout (no pong)")
	ErrConnectTimeout     = errors.New("connection timeout")
	ErrClosed             = errors.New("connection closed")
	ErrNoEndpoint         = errors.New("no endpoint configured")
	ErrAlreadyClosed      = errors.New("already closed")
)

// TransportError describes why the transport stopped delivering frames.
type TransportError struct {
	Code int // websocket close code, 0 when the socket failed without one
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport closed (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Normal reports whether the peer closed the socket cleanly.
func (e *TransportError) Normal() bool {
	return e.Code == websocket.CloseNormalClosure || e.Code == websocket.CloseGoingAway
}

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected // transport open, not authenticated
	StateAuthenticating
	StateReady
	StateReconnecting // backoff timer armed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DisconnectReason classifies a transport loss.
type DisconnectReason string

const (
	ReasonNormal  DisconnectReason = "normal"
	ReasonError   DisconnectReason = "error"
	ReasonTimeout DisconnectReason = "timeout"
)

// SendResult is the synchronous outcome of Core.Send.
type SendResult int

const (
	SendSent SendResult = iota
	SendQueued
	SendRejected
)

func (r SendResult) String() string {
	switch r {
	case SendSent:
		return "sent"
	case SendQueued:
		return "queued"
	case SendRejected:
		return "rejected"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Directory resolves the endpoint URL to dial when Config.URL is empty.
type Directory interface {
	Resolve(ctx context.Context) (string, error)
}

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the websocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Config configures a Core. Zero values resolve to the defaults below.
type Config struct {
	URL                      string            // Endpoint URL; empty = ask the Directory
	AutoReconnect            *bool             // Reconnect after unexpected loss (default true)
	MaxReconnectAttempts     int               // Attempts before giving up (default 10, negative = unlimited)
	InitialReconnectDelay    time.Duration     // First backoff delay (default 1s)
	MaxReconnectDelay        time.Duration     // Backoff ceiling (default 30s)
	ReconnectDelayMultiplier float64           // Backoff growth factor (default 1.5)
	ConnectionTimeout        time.Duration     // Dial + handshake budget (default 10s)
	HeartbeatInterval        time.Duration     // Ping period in ready state (default 30s, negative disables)
	HeartbeatTimeout         time.Duration     // Max wait for a pong (default 10s)
	MaxQueueSize             int               // Offline queue capacity (default 100)
	DebugLogging             bool              // Log every frame at debug level
	AuthToken                string            // Token sent automatically on open
	RequireAuth              bool              // Wait in connected state for Login when no token is known
	AuthTimeout              time.Duration     // Max wait for auth ack (default 10s)
	LatencyWindow            int               // Latency samples averaged (default 10)
	WriteTimeout             time.Duration     // Write deadline per frame (default 5s)
	HandshakeTimeout         time.Duration     // Websocket handshake timeout (default ConnectionTimeout)
	BufferSize               int               // Inbound frame buffer (default 256)
	Headers                  map[string]string // Extra handshake headers
}

// Defaults
const (
	DefaultMaxReconnectAttempts     = 10
	DefaultInitialReconnectDelay    = time.Second
	DefaultMaxReconnectDelay        = 30 * time.Second
	DefaultReconnectDelayMultiplier = 1.5
	DefaultConnectionTimeout        = 10 * time.Second
	DefaultHeartbeatInterval        = 30 * time.Second
	DefaultHeartbeatTimeout         = 10 * time.Second
	DefaultMaxQueueSize             = 100
	DefaultAuthTimeout              = 10 * time.Second
	DefaultLatencyWindow            = 10
	DefaultWriteTimeout             = 5 * time.Second
	DefaultBufferSize               = 256
)

// Bool returns a pointer to v, for Config.AutoReconnect.
func Bool(v bool) *bool { return &v }

// DefaultConfig returns a configuration with every option at its default.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.AutoReconnect == nil {
		c.AutoReconnect = Bool(true)
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = DefaultInitialReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.ReconnectDelayMultiplier == 0 {
		c.ReconnectDelayMultiplier = DefaultReconnectDelayMultiplier
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = DefaultLatencyWindow
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = c.ConnectionTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Validate checks option ranges. It expects defaults to be applied.
func (c Config) Validate() error {
	if c.ReconnectDelayMultiplier < 1 {
		return fmt.Errorf("reconnect delay multiplier must be >= 1, got %v", c.ReconnectDelayMultiplier)
	}
	if c.MaxReconnectDelay < c.InitialReconnectDelay {
		return fmt.Errorf("max reconnect delay (%v) is below initial delay (%v)", c.MaxReconnectDelay, c.InitialReconnectDelay)
	}
	return nil
}

func (c Config) autoReconnect() bool {
	return c.AutoReconnect == nil || *c.AutoReconnect
}

func (c Config) authRequired() bool {
	return c.RequireAuth || c.AuthToken != ""
}

// ClientConfig configures a websocket transport.
type ClientConfig struct {
	URL              string             // Websocket URL (e.g., wss://eu-1.example.net/play)
	Header           http.Header        // Extra handshake headers
	Frame            protocol.FrameKind // Frame type used by Send
	HandshakeTimeout time.Duration      // Websocket handshake timeout
	WriteTimeout     time.Duration      // Write deadline for sends
	BufferSize       int                // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Frame:            protocol.FrameText,
		HandshakeTimeout: DefaultConnectionTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		BufferSize:       DefaultBufferSize,
	}
}

func (c Config) clientConfig(url string, frame protocol.FrameKind) ClientConfig {
	header := http.Header{}
	for k, v := range c.Headers {
		header.Set(k, v)
	}
	return ClientConfig{
		URL:              url,
		Header:           header,
		Frame:            frame,
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		BufferSize:       c.BufferSize,
	}
}
