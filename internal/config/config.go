package config

import "time"

// Config is the root configuration shared by gameclient and serverctl.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Auth      AuthConfig      `yaml:"auth"`
	Directory DirectoryConfig `yaml:"directory"`
	Database  DBConfig        `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ClientConfig holds connection core settings.
type ClientConfig struct {
	URL                      string            `yaml:"url"`   // Empty = pick from directory
	Codec                    string            `yaml:"codec"` // json or cbor
	AutoReconnect            *bool             `yaml:"auto_reconnect"`
	MaxReconnectAttempts     int               `yaml:"max_reconnect_attempts"` // Negative = unlimited
	InitialReconnectDelay    time.Duration     `yaml:"initial_reconnect_delay"`
	MaxReconnectDelay        time.Duration     `yaml:"max_reconnect_delay"`
	ReconnectDelayMultiplier float64           `yaml:"reconnect_delay_multiplier"`
	ConnectionTimeout        time.Duration     `yaml:"connection_timeout"`
	HeartbeatInterval        time.Duration     `yaml:"heartbeat_interval"` // Negative disables
	HeartbeatTimeout         time.Duration     `yaml:"heartbeat_timeout"`
	MaxQueueSize             int               `yaml:"max_queue_size"`
	RequireAuth              bool              `yaml:"require_auth"`
	AuthTimeout              time.Duration     `yaml:"auth_timeout"`
	LatencyWindow            int               `yaml:"latency_window"`
	WriteTimeout             time.Duration     `yaml:"write_timeout"`
	BufferSize               int               `yaml:"buffer_size"`
	Debug                    bool              `yaml:"debug"`
	Headers                  map[string]string `yaml:"headers"`
}

// AuthConfig says where the session token comes from. The first non-empty
// source wins, in field order.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

// DirectoryConfig selects and tunes the game-server directory.
type DirectoryConfig struct {
	Backend          string         `yaml:"backend"` // memory, postgres or remote
	Servers          []ServerConfig `yaml:"servers"` // Seed entries
	RemoteURL        string         `yaml:"remote_url"`
	RemoteToken      string         `yaml:"remote_token"`
	RemoteTimeout    time.Duration  `yaml:"remote_timeout"`
	RemoteRetries    int            `yaml:"remote_retries"`
	ProbeTimeout     time.Duration  `yaml:"probe_timeout"`
	ProbeConcurrency int            `yaml:"probe_concurrency"`
	RefreshInterval  time.Duration  `yaml:"refresh_interval"` // 0 disables background probing
	MDNS             MDNSConfig     `yaml:"mdns"`
}

// ServerConfig is a statically configured game server.
type ServerConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Region   string   `yaml:"region"`
	Tags     []string `yaml:"tags"`
	Priority int      `yaml:"priority"`
}

// MDNSConfig controls LAN server discovery.
type MDNSConfig struct {
	Enabled bool          `yaml:"enabled"`
	Service string        `yaml:"service"`
	Domain  string        `yaml:"domain"`
	Timeout time.Duration `yaml:"timeout"`
}

// DBConfig holds the directory database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
