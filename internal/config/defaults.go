package config

import (
	"time"

	"github.com/rickgao/gamelink/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultCodec            = "json"
	DefaultBackend          = BackendMemory
	DefaultRemoteTimeout    = 10 * time.Second
	DefaultRemoteRetries    = 3
	DefaultRemoteBackoff    = 500 * time.Millisecond
	DefaultProbeTimeout     = 3 * time.Second
	DefaultProbeConcurrency = 8
	DefaultMDNSService      = "_gamelink._tcp"
	DefaultMDNSDomain       = "local."
	DefaultMDNSTimeout      = 2 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

// Directory backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

func (c *Config) applyDefaults() {
	// Client defaults mirror the connection package so a loaded config and
	// connection.DefaultConfig agree.
	cl := &c.Client
	if cl.Codec == "" {
		cl.Codec = DefaultCodec
	}
	if cl.AutoReconnect == nil {
		cl.AutoReconnect = connection.Bool(true)
	}
	if cl.MaxReconnectAttempts == 0 {
		cl.MaxReconnectAttempts = connection.DefaultMaxReconnectAttempts
	}
	if cl.InitialReconnectDelay == 0 {
		cl.InitialReconnectDelay = connection.DefaultInitialReconnectDelay
	}
	if cl.MaxReconnectDelay == 0 {
		cl.MaxReconnectDelay = connection.DefaultMaxReconnectDelay
	}
	if cl.ReconnectDelayMultiplier == 0 {
		cl.ReconnectDelayMultiplier = connection.DefaultReconnectDelayMultiplier
	}
	if cl.ConnectionTimeout == 0 {
		cl.ConnectionTimeout = connection.DefaultConnectionTimeout
	}
	if cl.HeartbeatInterval == 0 {
		cl.HeartbeatInterval = connection.DefaultHeartbeatInterval
	}
	if cl.HeartbeatTimeout == 0 {
		cl.HeartbeatTimeout = connection.DefaultHeartbeatTimeout
	}
	if cl.MaxQueueSize == 0 {
		cl.MaxQueueSize = connection.DefaultMaxQueueSize
	}
	if cl.AuthTimeout == 0 {
		cl.AuthTimeout = connection.DefaultAuthTimeout
	}
	if cl.LatencyWindow == 0 {
		cl.LatencyWindow = connection.DefaultLatencyWindow
	}
	if cl.WriteTimeout == 0 {
		cl.WriteTimeout = connection.DefaultWriteTimeout
	}
	if cl.BufferSize == 0 {
		cl.BufferSize = connection.DefaultBufferSize
	}

	// Directory defaults
	d := &c.Directory
	if d.Backend == "" {
		d.Backend = DefaultBackend
	}
	if d.RemoteTimeout == 0 {
		d.RemoteTimeout = DefaultRemoteTimeout
	}
	if d.RemoteRetries == 0 {
		d.RemoteRetries = DefaultRemoteRetries
	}
	if d.ProbeTimeout == 0 {
		d.ProbeTimeout = DefaultProbeTimeout
	}
	if d.ProbeConcurrency == 0 {
		d.ProbeConcurrency = DefaultProbeConcurrency
	}
	if d.MDNS.Service == "" {
		d.MDNS.Service = DefaultMDNSService
	}
	if d.MDNS.Domain == "" {
		d.MDNS.Domain = DefaultMDNSDomain
	}
	if d.MDNS.Timeout == 0 {
		d.MDNS.Timeout = DefaultMDNSTimeout
	}

	applyDBDefaults(&c.Database)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
