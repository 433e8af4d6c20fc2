package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ResultsHandler receives each completed ranking.
type ResultsHandler interface {
	HandleResults(results []ProbeResult)
}

// ResultsHandlerFunc is a function adapter for ResultsHandler.
type ResultsHandlerFunc func([]ProbeResult)

func (f ResultsHandlerFunc) HandleResults(r []ProbeResult) {
	f(r)
}

// RefresherConfig holds refresher configuration.
type RefresherConfig struct {
	Interval time.Duration // Time between rankings (default: 30s)
	Timeout  time.Duration // Budget for one ranking (default: 10s)
}

// DefaultRefresherConfig returns sensible defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Refresher periodically re-ranks the directory so Service.Resolve can
// answer from cache.
type Refresher struct {
	cfg     RefresherConfig
	svc     *Service
	handler ResultsHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a Refresher. handler may be nil.
func NewRefresher(cfg RefresherConfig, svc *Service, handler ResultsHandler, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultRefresherConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Refresher{
		cfg:     cfg,
		svc:     svc,
		handler: handler,
		logger:  logger.With("component", "refresher"),
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("directory refresher started", "interval", r.cfg.Interval)
	return nil
}

// Stop shuts down the loop, waiting for an in-flight ranking.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("directory refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Rank immediately on start.
	r.refresh()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	results, err := r.svc.Rank(ctx)
	if err != nil {
		if errors.Is(err, ErrNoEndpoints) {
			r.logger.Debug("no endpoints to probe")
		} else if r.ctx.Err() == nil {
			r.logger.Warn("refresh failed", "error", err)
		}
		return
	}

	reachable := 0
	for _, res := range results {
		if res.Reachable() {
			reachable++
		}
	}

	r.logger.Info("refresh cycle complete",
		"endpoints", len(results),
		"reachable", reachable,
		"duration", time.Since(start),
	)

	if r.handler != nil {
		r.handler.HandleResults(results)
	}
}
