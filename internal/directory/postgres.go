package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS game_servers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL,
		region     TEXT NOT NULL DEFAULT '',
		tags       TEXT[] NOT NULL DEFAULT '{}',
		priority   INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS game_servers_region_idx ON game_servers (region)`,
}

const (
	selectColumns = `id, name, url, region, tags, priority, created_at, updated_at`

	listSQL = `SELECT ` + selectColumns + ` FROM game_servers
		WHERE ($1 = '' OR region = $1) AND ($2 = '' OR $2 = ANY(tags))
		ORDER BY priority DESC, name, id`

	getSQL = `SELECT ` + selectColumns + ` FROM game_servers WHERE id = $1`

	upsertSQL = `INSERT INTO game_servers (id, name, url, region, tags, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			region = EXCLUDED.region,
			tags = EXCLUDED.tags,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`

	deleteSQL = `DELETE FROM game_servers WHERE id = $1`
)

// PostgresStore keeps endpoints in the game_servers table.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore wraps an open pool. Call EnsureSchema before first use
// against a fresh database.
func NewPostgresStore(db *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger.With("store", "postgres"),
		now:    time.Now,
	}
}

// EnsureSchema creates the game_servers table and its index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Endpoint, error) {
	rows, err := s.db.Query(ctx, listSQL, f.Region, f.Tag)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	eps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Endpoint, error) {
		return scanEndpoint(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return eps, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Endpoint, error) {
	e, err := scanEndpoint(s.db.QueryRow(ctx, getSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("get endpoint %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) Put(ctx context.Context, e Endpoint) (Endpoint, error) {
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	e = s.prepare(e)

	err := s.db.QueryRow(ctx, upsertSQL, upsertArgs(e)...).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Endpoint{}, fmt.Errorf("put endpoint %s: %w", e.ID, err)
	}
	return e, nil
}

// PutMany upserts eps in one batch and returns how many rows were written.
func (s *PostgresStore) PutMany(ctx context.Context, eps []Endpoint) (int, error) {
	if len(eps) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range eps {
		batch.Queue(upsertSQL, upsertArgs(s.prepare(e))...)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	n := 0
	for range eps {
		var created, updated time.Time
		if err := results.QueryRow().Scan(&created, &updated); err != nil {
			return n, fmt.Errorf("batch upsert: %w", err)
		}
		n++
	}

	s.logger.Debug("seeded endpoints", "count", n)
	return n, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the pool is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) prepare(e Endpoint) Endpoint {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	e.UpdatedAt = s.now().UTC()
	return e
}

func upsertArgs(e Endpoint) []any {
	return []any{e.ID, e.Name, e.URL, e.Region, e.Tags, e.Priority, e.UpdatedAt}
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var e Endpoint
	err := row.Scan(&e.ID, &e.Name, &e.URL, &e.Region, &e.Tags, &e.Priority, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
