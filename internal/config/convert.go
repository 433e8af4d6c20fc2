package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/gamelink/internal/connection"
)

// ToConnection maps the client section onto a connection.Config. The token
// is resolved separately and passed in.
func (cl ClientConfig) ToConnection(token string) connection.Config {
	return connection.Config{
		URL:                      cl.URL,
		AutoReconnect:            cl.AutoReconnect,
		MaxReconnectAttempts:     cl.MaxReconnectAttempts,
		InitialReconnectDelay:    cl.InitialReconnectDelay,
		MaxReconnectDelay:        cl.MaxReconnectDelay,
		ReconnectDelayMultiplier: cl.ReconnectDelayMultiplier,
		ConnectionTimeout:        cl.ConnectionTimeout,
		HeartbeatInterval:        cl.HeartbeatInterval,
		HeartbeatTimeout:         cl.HeartbeatTimeout,
		MaxQueueSize:             cl.MaxQueueSize,
		DebugLogging:             cl.Debug,
		AuthToken:                token,
		RequireAuth:              cl.RequireAuth,
		AuthTimeout:              cl.AuthTimeout,
		LatencyWindow:            cl.LatencyWindow,
		WriteTimeout:             cl.WriteTimeout,
		BufferSize:               cl.BufferSize,
		Headers:                  cl.Headers,
	}
}

// SlogLevel parses the configured level, falling back to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the text or JSON handler the config asks for.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
