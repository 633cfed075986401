package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPostgresConfig returns pool settings suited to a request-path workload.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// PostgresStore implements bandit.BeliefStore and the processed-event ledger
// on PostgreSQL. Every mutation is a single statement.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ bandit.BeliefStore = (*PostgresStore)(nil)

// NewPostgresStore connects, pings and bootstraps the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bandit_arms (
  arm        TEXT PRIMARY KEY,
  alpha      DOUBLE PRECISION NOT NULL DEFAULT 1.0,
  beta       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
  event_id     TEXT PRIMARY KEY,
  arm          TEXT NOT NULL,
  event_type   TEXT NOT NULL,
  reward       DOUBLE PRECISION NOT NULL,
  processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap postgres: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, arm string) (bandit.Record, bool, error) {
	var rec bandit.Record
	err := s.pool.QueryRow(ctx,
		`SELECT arm, alpha, beta, updated_at FROM bandit_arms WHERE arm = $1`, arm,
	).Scan(&rec.Arm, &rec.Alpha, &rec.Beta, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return bandit.Record{}, false, nil
	}
	if err != nil {
		return bandit.Record{}, false, fmt.Errorf("read belief: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]bandit.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT arm, alpha, beta, updated_at FROM bandit_arms ORDER BY arm`)
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	defer rows.Close()

	var out []bandit.Record
	for rows.Next() {
		var rec bandit.Record
		if err := rows.Scan(&rec.Arm, &rec.Alpha, &rec.Beta, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan belief: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) EnsureArms(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO bandit_arms (arm, alpha, beta)
SELECT name, $2, $3 FROM unnest($1::text[]) AS name
ON CONFLICT (arm) DO NOTHING`, arms, bandit.PriorAlpha, bandit.PriorBeta)
	if err != nil {
		return 0, fmt.Errorf("insert priors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Increment(ctx context.Context, arm string, dAlpha, dBeta float64) (bandit.Record, error) {
	var rec bandit.Record
	err := s.pool.QueryRow(ctx, `
INSERT INTO bandit_arms (arm, alpha, beta)
VALUES ($1, $2, $3)
ON CONFLICT (arm) DO UPDATE SET
  alpha = bandit_arms.alpha + $4,
  beta = bandit_arms.beta + $5,
  updated_at = now()
RETURNING arm, alpha, beta, updated_at`,
		arm, bandit.PriorAlpha+dAlpha, bandit.PriorBeta+dBeta, dAlpha, dBeta,
	).Scan(&rec.Arm, &rec.Alpha, &rec.Beta, &rec.UpdatedAt)
	if err != nil {
		return bandit.Record{}, fmt.Errorf("increment belief: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM bandit_arms WHERE arm = ANY($1)`, arms)
	if err != nil {
		return 0, fmt.Errorf("delete beliefs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkProcessed records eventID; first is false if it was already recorded.
func (s *PostgresStore) MarkProcessed(ctx context.Context, ev ProcessedEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO processed_events (event_id, arm, event_type, reward)
VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id) DO NOTHING`, ev.ID, ev.Arm, ev.Type, ev.Reward)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Forget removes eventID so a failed delivery can be retried.
func (s *PostgresStore) Forget(ctx context.Context, eventID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// Purge drops ledger rows older than cutoff.
func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge ledger: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
