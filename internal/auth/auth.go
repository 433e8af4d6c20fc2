// Package auth loads the session token the connection core presents to the
// game server.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rickgao/gamelink/internal/config"
)

// ErrNoToken is returned when a required token has no configured source.
var ErrNoToken = errors.New("no auth token configured")

// Credential sources.
const (
	SourceNone   = "none"
	SourceConfig = "config"
	SourceEnv    = "env"
	SourceFile   = "file"
)

// Credentials holds a resolved token and where it came from.
type Credentials struct {
	Token  string
	Source string
}

// Load resolves a token from the auth config. Sources are tried in order:
// literal token, environment variable, token file. An empty result is not an
// error; the caller decides whether auth is mandatory.
func Load(cfg config.AuthConfig) (*Credentials, error) {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return &Credentials{Token: t, Source: SourceConfig}, nil
	}

	if cfg.TokenEnv != "" {
		if t := strings.TrimSpace(os.Getenv(cfg.TokenEnv)); t != "" {
			return &Credentials{Token: t, Source: SourceEnv}, nil
		}
	}

	if cfg.TokenFile != "" {
		t, err := LoadTokenFile(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		return &Credentials{Token: t, Source: SourceFile}, nil
	}

	return &Credentials{Source: SourceNone}, nil
}

// MustHave returns ErrNoToken when no token was resolved.
func (c *Credentials) MustHave() error {
	if c == nil || c.Token == "" {
		return ErrNoToken
	}
	return nil
}

// LoadTokenFile reads a token from the first non-empty line of path.
func LoadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
			return t, nil
		}
	}
	return "", fmt.Errorf("token file %s: %w", path, ErrNoToken)
}

// Redacted returns the token with all but the last four characters masked,
// for logs.
func (c *Credentials) Redacted() string {
	if c == nil || c.Token == "" {
		return ""
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}
