package directory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Defaults for Service options.
const (
	DefaultProbeTimeout     = 3 * time.Second
	DefaultProbeConcurrency = 8
	DefaultTieTolerance     = 5 * time.Millisecond
)

// ProbeResult is one endpoint's probe outcome.
type ProbeResult struct {
	Endpoint Endpoint
	Latency  time.Duration
	Err      error
	ProbedAt time.Time
}

// Reachable reports whether the probe succeeded.
func (r ProbeResult) Reachable() bool { return r.Err == nil }

// Service lists, probes and ranks endpoints.
type Service struct {
	store        Store
	prober       Prober
	logger       *slog.Logger
	filter       Filter
	timeout      time.Duration
	concurrency  int
	tolerance    time.Duration
	cacheTTL     time.Duration
	now          func() time.Time
	mu           sync.Mutex
	last         []ProbeResult
	lastRankedAt time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithFilter limits every listing to matching endpoints.
func WithFilter(f Filter) ServiceOption {
	return func(s *Service) { s.filter = f }
}

// WithProbeTimeout bounds each individual probe.
func WithProbeTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithConcurrency caps simultaneous probes.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) { s.concurrency = n }
}

// WithTieTolerance sets the latency bucket inside which priority decides.
func WithTieTolerance(d time.Duration) ServiceOption {
	return func(s *Service) { s.tolerance = d }
}

// WithCacheTTL lets Resolve reuse a ranking younger than d. Zero always
// re-probes.
func WithCacheTTL(d time.Duration) ServiceOption {
	return func(s *Service) { s.cacheTTL = d }
}

// NewService creates a Service over store. A nil prober uses a
// WebSocketProber with the probe timeout.
func NewService(store Store, prober Prober, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		logger:      slog.Default(),
		timeout:     DefaultProbeTimeout,
		concurrency: DefaultProbeConcurrency,
		tolerance:   DefaultTieTolerance,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if prober == nil {
		prober = NewWebSocketProber(s.timeout)
	}
	s.prober = prober
	s.logger = s.logger.With("component", "directory")
	return s
}

// Store returns the backing store.
func (s *Service) Store() Store { return s.store }

// ListEndpoints returns stored endpoints passing the service filter.
func (s *Service) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	return s.store.List(ctx, s.filter)
}

// Probe measures a single endpoint.
func (s *Service) Probe(ctx context.Context, e Endpoint) ProbeResult {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	probedAt := s.now()
	lat, err := s.prober.Probe(pctx, e)
	return ProbeResult{Endpoint: e, Latency: lat, Err: err, ProbedAt: probedAt}
}

// Rank probes every endpoint and returns results best first: reachable
// before unreachable, lower latency first, and within one tie bucket the
// higher priority first.
func (s *Service) Rank(ctx context.Context) ([]ProbeResult, error) {
	eps, err := s.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}

	results := make([]ProbeResult, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, e := range eps {
		g.Go(func() error {
			results[i] = s.Probe(gctx, e)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.sortResults(results)

	s.mu.Lock()
	s.last = results
	s.lastRankedAt = s.now()
	s.mu.Unlock()

	reachable := 0
	for _, r := range results {
		if r.Reachable() {
			reachable++
		} else {
			s.logger.Debug("endpoint unreachable", "endpoint", r.Endpoint.Label(), "error", r.Err)
		}
	}
	s.logger.Debug("ranked endpoints", "total", len(results), "reachable", reachable)

	return slices.Clone(results), nil
}

// Best returns the top reachable endpoint.
func (s *Service) Best(ctx context.Context) (ProbeResult, error) {
	results, err := s.Rank(ctx)
	if err != nil {
		return ProbeResult{}, err
	}
	return pickBest(results)
}

// Latest returns the most recent ranking and when it was taken.
func (s *Service) Latest() ([]ProbeResult, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.last), s.lastRankedAt
}

// Resolve returns the URL of the best endpoint. It answers from the last
// ranking when that is younger than the cache TTL.
func (s *Service) Resolve(ctx context.Context) (string, error) {
	if s.cacheTTL > 0 {
		last, at := s.Latest()
		if len(last) > 0 && s.now().Sub(at) < s.cacheTTL {
			if best, err := pickBest(last); err == nil {
				s.logger.Debug("resolved from cache", "endpoint", best.Endpoint.Label(), "latency", best.Latency)
				return best.Endpoint.URL, nil
			}
		}
	}

	best, err := s.Best(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Info("resolved endpoint",
		"endpoint", best.Endpoint.Label(),
		"url", best.Endpoint.URL,
		"latency", best.Latency,
	)
	return best.Endpoint.URL, nil
}

func (s *Service) sortResults(results []ProbeResult) {
	tol := s.tolerance
	if tol <= 0 {
		tol = 1
	}
	slices.SortStableFunc(results, func(a, b ProbeResult) int {
		if a.Reachable() != b.Reachable() {
			if a.Reachable() {
				return -1
			}
			return 1
		}
		if a.Reachable() {
			if ba, bb := a.Latency/tol, b.Latency/tol; ba != bb {
				if ba < bb {
					return -1
				}
				return 1
			}
		}
		if a.Endpoint.Priority != b.Endpoint.Priority {
			return b.Endpoint.Priority - a.Endpoint.Priority
		}
		if a.Latency < b.Latency {
			return -1
		}
		if a.Latency > b.Latency {
			return 1
		}
		return 0
	})
}

func pickBest(results []ProbeResult) (ProbeResult, error) {
	if len(results) == 0 {
		return ProbeResult{}, ErrNoEndpoints
	}
	if !results[0].Reachable() {
		return ProbeResult{}, fmt.Errorf("%w: %d probed, last error: %w", ErrNoReachable, len(results), results[len(results)-1].Err)
	}
	return results[0], nil
}
