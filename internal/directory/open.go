package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/gamelink/internal/api"
	"github.com/rickgao/gamelink/internal/config"
	"github.com/rickgao/gamelink/internal/database"
)

// OpenStore builds the store selected by directory.backend and seeds it with
// directory.servers. The returned close func releases backend resources.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() {}

	var (
		store   Store
		closeFn = noop
	)
	switch cfg.Directory.Backend {
	case config.BackendMemory, "":
		store = NewMemoryStore()

	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("connect directory database: %w", err)
		}
		pg := NewPostgresStore(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		store, closeFn = pg, pool.Close

	case config.BackendRemote:
		client := api.NewClient(
			cfg.Directory.RemoteURL,
			cfg.Directory.RemoteToken,
			api.WithLogger(logger),
			api.WithTimeout(cfg.Directory.RemoteTimeout),
			api.WithRetries(cfg.Directory.RemoteRetries, config.DefaultRemoteBackoff),
		)
		store = NewRemoteStore(client)

	default:
		return nil, noop, fmt.Errorf("unknown directory backend %q", cfg.Directory.Backend)
	}

	if len(cfg.Directory.Servers) > 0 {
		eps := make([]Endpoint, 0, len(cfg.Directory.Servers))
		for _, s := range cfg.Directory.Servers {
			eps = append(eps, FromConfig(s))
		}
		n, err := Seed(ctx, store, eps)
		if err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("seed directory: %w", err)
		}
		logger.Info("seeded directory", "backend", cfg.Directory.Backend, "count", n)
	}

	return store, closeFn, nil
}

// NewServiceFromConfig builds a Service tuned by the directory section. When
// a refresh interval is set, Resolve may answer from a ranking up to two
// intervals old. Extra options are applied last.
func NewServiceFromConfig(store Store, cfg config.DirectoryConfig, logger *slog.Logger, extra ...ServiceOption) *Service {
	var opts []ServiceOption
	if cfg.ProbeTimeout > 0 {
		opts = append(opts, WithProbeTimeout(cfg.ProbeTimeout))
	}
	if cfg.ProbeConcurrency > 0 {
		opts = append(opts, WithConcurrency(cfg.ProbeConcurrency))
	}
	if logger != nil {
		opts = append(opts, WithServiceLogger(logger))
	}
	if cfg.RefreshInterval > 0 {
		opts = append(opts, WithCacheTTL(2*cfg.RefreshInterval))
	}
	return NewService(store, nil, append(opts, extra...)...)
}
