package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/storage"
)

// Store drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Ledger remembers which reward-bearing events have already been applied.
type Ledger interface {
	MarkProcessed(ctx context.Context, ev ProcessedEvent) (first bool, err error)
	Forget(ctx context.Context, eventID string) error
}

// Purger is implemented by ledgers that need explicit expiry.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Path      string
	DSN       string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
	EventTTL  time.Duration
}

// OptionsFromConfig maps the store section of a loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Driver:    cfg.Store.Driver,
		Path:      cfg.Store.Path,
		DSN:       cfg.Store.DSN,
		RedisAddr: cfg.Store.RedisAddr,
		RedisDB:   cfg.Store.RedisDB,
		KeyPrefix: cfg.Store.KeyPrefix,
		EventTTL:  cfg.Service.DedupeTTL,
	}
}

// Backend bundles the belief store and ledger sharing one connection.
type Backend struct {
	Driver  string
	Beliefs bandit.BeliefStore
	Ledger  Ledger
	closeFn func() error
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	if b == nil || b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// Purge expires ledger entries older than cutoff when the ledger supports it.
func (b *Backend) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	p, ok := b.Ledger.(Purger)
	if !ok {
		return 0, nil
	}
	return p.Purge(ctx, cutoff)
}

// Open connects the backend named by opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		db, err := storage.OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:  DriverSQLite,
			Beliefs: NewSQLiteStore(db),
			Ledger:  NewSQLiteLedger(db),
			closeFn: db.Close,
		}, nil

	case DriverMemory:
		return &Backend{
			Driver:  DriverMemory,
			Beliefs: NewMemoryStore(),
			Ledger:  NewMemoryLedger(),
		}, nil

	case DriverPostgres:
		cfg := DefaultPostgresConfig()
		cfg.DSN = opts.DSN
		pg, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Backend{Driver: DriverPostgres, Beliefs: pg, Ledger: pg, closeFn: pg.Close}, nil

	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, DB: opts.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis at %s: %w", opts.RedisAddr, err)
		}
		rs, err := NewRedisStore(client, RedisConfig{KeyPrefix: opts.KeyPrefix, EventTTL: opts.EventTTL})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Driver: DriverRedis, Beliefs: rs, Ledger: rs, closeFn: rs.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
