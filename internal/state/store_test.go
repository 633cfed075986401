package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/storage"
)

type storeFactory func(t *testing.T) bandit.BeliefStore

func newSQLiteStore(t *testing.T) bandit.BeliefStore {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "beliefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db)
}

func newMemoryStore(t *testing.T) bandit.BeliefStore {
	t.Helper()
	return NewMemoryStore()
}

func newPostgresStore(t *testing.T) bandit.BeliefStore {
	t.Helper()
	dsn := os.Getenv("ARMSD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARMSD_TEST_POSTGRES_DSN not set")
	}
	cfg := DefaultPostgresConfig()
	cfg.DSN = dsn
	s, err := NewPostgresStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	_, err = s.pool.Exec(context.Background(), "TRUNCATE bandit_arms, processed_events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRedisStore(t *testing.T) bandit.BeliefStore {
	t.Helper()
	s, err := NewRedisStore(newRedisTestClient(t), RedisConfig{KeyPrefix: "{armsd-test}:"})
	require.NoError(t, err)
	return s
}

var backends = map[string]storeFactory{
	"sqlite":   newSQLiteStore,
	"memory":   newMemoryStore,
	"postgres": newPostgresStore,
	"redis":    newRedisStore,
}

func TestBeliefStoreConformance(t *testing.T) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
			t.Run("EnsureArmsIsIdempotent", func(t *testing.T) { testEnsureIdempotent(t, factory(t)) })
			t.Run("IncrementAppliesDelta", func(t *testing.T) { testIncrement(t, factory(t)) })
			t.Run("IncrementCreatesFromPrior", func(t *testing.T) { testIncrementCreates(t, factory(t)) })
			t.Run("ConcurrentIncrementsAreNotLost", func(t *testing.T) { testConcurrentIncrements(t, factory(t)) })
			t.Run("DeleteRemovesOnlyNamed", func(t *testing.T) { testDelete(t, factory(t)) })
			t.Run("ListIsSortedByArm", func(t *testing.T) { testListSorted(t, factory(t)) })
		})
	}
}

func testGetMissing(t *testing.T, s bandit.BeliefStore) {
	_, ok, err := s.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testEnsureIdempotent(t *testing.T, s bandit.BeliefStore) {
	ctx := context.Background()

	created, err := s.EnsureArms(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	_, err = s.Increment(ctx, "a", 1, 0)
	require.NoError(t, err)

	created, err = s.EnsureArms(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	rec, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.Alpha, "ensure must not reset an existing record")
	assert.Equal(t, 1.0, rec.Beta)

	rec, ok, err = s.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bandit.PriorAlpha, rec.Alpha)
	assert.Equal(t, bandit.PriorBeta, rec.Beta)
}

func testIncrement(t *testing.T, s bandit.BeliefStore) {
	ctx := context.Background()
	_, err := s.EnsureArms(ctx, []string{"a"})
	require.NoError(t, err)

	rec, err := s.Increment(ctx, "a", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Arm)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 1.0, rec.Beta)

	rec, err = s.Increment(ctx, "a", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 2.0, rec.Beta)

	got, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Alpha, got.Alpha)
	assert.Equal(t, rec.Beta, got.Beta)
	assert.False(t, got.UpdatedAt.IsZero())
}

func testIncrementCreates(t *testing.T, s bandit.BeliefStore) {
	rec, err := s.Increment(context.Background(), "fresh", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Alpha)
	assert.Equal(t, 2.0, rec.Beta)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Arm)
}

func testConcurrentIncrements(t *testing.T, s bandit.BeliefStore) {
	ctx := context.Background()
	_, err := s.EnsureArms(ctx, []string{"hot"})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Increment(ctx, "hot", 1, 0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, ok, err := s.Get(ctx, "hot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0+writers, rec.Alpha)
	assert.Equal(t, 1.0, rec.Beta)
}

func testDelete(t *testing.T, s bandit.BeliefStore) {
	ctx := context.Background()
	_, err := s.EnsureArms(ctx, []string{"keep", "drop", "also-drop"})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, []string{"drop", "also-drop", "never-existed"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].Arm)
}

func testListSorted(t *testing.T, s bandit.BeliefStore) {
	ctx := context.Background()
	_, err := s.EnsureArms(ctx, []string{"zeta", "alpha", "mid"})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, r := range list {
		names = append(names, r.Arm)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "beliefs.db")

	db, err := storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	s := NewSQLiteStore(db)
	_, err = s.EnsureArms(ctx, []string{"a"})
	require.NoError(t, err)
	_, err = s.Increment(ctx, "a", 1, 0)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rec, ok, err := NewSQLiteStore(db).Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 1.0, rec.Beta)
}

func TestSQLiteStoreRoundTripsExactValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "beliefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx,
		"INSERT INTO bandit_arms(arm, alpha, beta, updated_at) VALUES(?, ?, ?, ?)",
		"imported", 0.1+0.2, 1e-9, time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)

	rec, ok, err := NewSQLiteStore(db).Get(ctx, "imported")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.1+0.2, rec.Alpha)
	assert.Equal(t, 1e-9, rec.Beta)
}

func TestSQLiteStoreReturnsMalformedParamsUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "beliefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx,
		"INSERT INTO bandit_arms(arm, alpha, beta, updated_at) VALUES('broken', 0, -2.5, 'not-a-time')")
	require.NoError(t, err)

	rec, ok, err := NewSQLiteStore(db).Get(ctx, "broken")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, rec.Alpha)
	assert.Equal(t, -2.5, rec.Beta)
	assert.True(t, rec.UpdatedAt.IsZero())
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	b, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, b.Beliefs)
	assert.IsType(t, &MemoryLedger{}, b.Ledger)
	require.NoError(t, b.Close())

	b, err = Open(ctx, Options{Path: filepath.Join(t.TempDir(), "beliefs.db")})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, b.Driver)
	assert.IsType(t, &SQLiteStore{}, b.Beliefs)
	require.NoError(t, b.Close())

	_, err = Open(ctx, Options{Driver: "cassandra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "cassandra"`)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Store.Driver = DriverRedis
	cfg.Store.RedisDB = 3
	cfg.Service.DedupeTTL = 48 * time.Hour

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, DriverRedis, opts.Driver)
	assert.Equal(t, "localhost:6379", opts.RedisAddr)
	assert.Equal(t, 3, opts.RedisDB)
	assert.Equal(t, "{armsd}:", opts.KeyPrefix)
	assert.Equal(t, 48*time.Hour, opts.EventTTL)
}
