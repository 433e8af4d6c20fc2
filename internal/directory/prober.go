package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/gamelink/internal/version"
)

// Prober measures how long an endpoint takes to accept a connection.
type Prober interface {
	Probe(ctx context.Context, e Endpoint) (time.Duration, error)
}

// ProberFunc is a function adapter for Prober.
type ProberFunc func(ctx context.Context, e Endpoint) (time.Duration, error)

func (f ProberFunc) Probe(ctx context.Context, e Endpoint) (time.Duration, error) {
	return f(ctx, e)
}

// WebSocketProber times a full websocket handshake and closes the socket
// straight away.
type WebSocketProber struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebSocketProber creates a prober with the given handshake timeout.
func NewWebSocketProber(timeout time.Duration) *WebSocketProber {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	return &WebSocketProber{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		header: header,
	}
}

func (p *WebSocketProber) Probe(ctx context.Context, e Endpoint) (time.Duration, error) {
	start := time.Now()
	conn, resp, err := p.dialer.DialContext(ctx, e.URL, p.header)
	rtt := time.Since(start)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return 0, fmt.Errorf("probe %s: handshake status %d: %w", e.URL, resp.StatusCode, err)
		}
		return 0, fmt.Errorf("probe %s: %w", e.URL, err)
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()

	return rtt, nil
}
