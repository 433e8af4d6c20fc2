package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Client.validate("client"); err != nil {
		return err
	}

	d := c.Directory
	switch d.Backend {
	case BackendMemory:
		if c.Client.URL == "" && len(d.Servers) == 0 && !d.MDNS.Enabled {
			return errors.New("client.url is required when the directory has no servers")
		}
	case BackendPostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case BackendRemote:
		if d.RemoteURL == "" {
			return errors.New("directory.remote_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("directory.backend must be memory, postgres or remote, got %q", d.Backend)
	}
	for i, s := range d.Servers {
		if s.URL == "" {
			return fmt.Errorf("directory.servers[%d].url is required", i)
		}
		if err := validateWSURL(s.URL); err != nil {
			return fmt.Errorf("directory.servers[%d].url: %w", i, err)
		}
	}
	if d.ProbeConcurrency < 1 {
		return errors.New("directory.probe_concurrency must be >= 1")
	}
	if d.RefreshInterval < 0 {
		return errors.New("directory.refresh_interval must be >= 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (cl *ClientConfig) validate(prefix string) error {
	if cl.URL != "" {
		if err := validateWSURL(cl.URL); err != nil {
			return fmt.Errorf("%s.url: %w", prefix, err)
		}
	}
	if cl.Codec != "json" && cl.Codec != "cbor" {
		return fmt.Errorf("%s.codec must be json or cbor, got %q", prefix, cl.Codec)
	}
	if cl.ReconnectDelayMultiplier < 1 {
		return fmt.Errorf("%s.reconnect_delay_multiplier must be >= 1", prefix)
	}
	if cl.MaxReconnectDelay < cl.InitialReconnectDelay {
		return fmt.Errorf("%s.max_reconnect_delay (%v) cannot be less than initial_reconnect_delay (%v)",
			prefix, cl.MaxReconnectDelay, cl.InitialReconnectDelay)
	}
	if cl.MaxQueueSize < 1 {
		return fmt.Errorf("%s.max_queue_size must be >= 1", prefix)
	}
	if cl.ConnectionTimeout <= 0 {
		return fmt.Errorf("%s.connection_timeout must be > 0", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
