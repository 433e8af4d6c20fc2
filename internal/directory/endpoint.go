package directory

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/rickgao/gamelink/internal/api"
	"github.com/rickgao/gamelink/internal/config"
)

var (
	ErrNotFound        = errors.New("endpoint not found")
	ErrNoEndpoints     = errors.New("no endpoints registered")
	ErrNoReachable     = errors.New("no reachable endpoint")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Endpoint is a game server the client can dial.
type Endpoint struct {
	ID        string
	Name      string
	URL       string
	Region    string
	Tags      []string
	Priority  int // Higher wins latency ties
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the endpoint has a dialable websocket URL.
func (e Endpoint) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidEndpoint)
	}
	return nil
}

// HasTag reports whether tag is one of the endpoint's tags.
func (e Endpoint) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// Label is the name when set, otherwise the URL.
func (e Endpoint) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.URL
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Region string
	Tag    string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Endpoint) bool {
	if f.Region != "" && e.Region != f.Region {
		return false
	}
	if f.Tag != "" && !e.HasTag(f.Tag) {
		return false
	}
	return true
}

// FromConfig converts a configured server entry.
func FromConfig(s config.ServerConfig) Endpoint {
	return Endpoint{
		ID:       s.ID,
		Name:     s.Name,
		URL:      s.URL,
		Region:   s.Region,
		Tags:     slices.Clone(s.Tags),
		Priority: s.Priority,
	}
}

func fromAPI(s api.Server) Endpoint {
	return Endpoint{
		ID:        s.ID,
		Name:      s.Name,
		URL:       s.URL,
		Region:    s.Region,
		Tags:      s.Tags,
		Priority:  s.Priority,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toAPI(e Endpoint) api.Server {
	return api.Server{
		ID:        e.ID,
		Name:      e.Name,
		URL:       e.URL,
		Region:    e.Region,
		Tags:      e.Tags,
		Priority:  e.Priority,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// sortEndpoints orders by priority (high first), then name, then id.
func sortEndpoints(eps []Endpoint) {
	slices.SortFunc(eps, func(a, b Endpoint) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
