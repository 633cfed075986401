package bandit_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/bandit/mocks"
	"github.com/mattjoyce/armsd/internal/log"
	"github.com/mattjoyce/armsd/internal/state"
)

func arms(names ...string) []bandit.Arm {
	out := make([]bandit.Arm, len(names))
	for i, n := range names {
		out[i] = bandit.Arm{Name: n}
	}
	return out
}

func newEngine(t *testing.T, store bandit.BeliefStore, opts bandit.Options) *bandit.Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	e, err := bandit.New(store, opts)
	require.NoError(t, err)
	return e
}

type recordingMetrics struct {
	mu         sync.Mutex
	selections map[string]int
	successes  map[string]int
	failures   map[string]int
	storeErrs  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		selections: map[string]int{},
		successes:  map[string]int{},
		failures:   map[string]int{},
		storeErrs:  map[string]int{},
	}
}

func (m *recordingMetrics) RecordSelection(arm string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[arm]++
}

func (m *recordingMetrics) RecordReward(arm string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.successes[arm]++
	} else {
		m.failures[arm]++
	}
}

func (m *recordingMetrics) RecordStoreOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.storeErrs[op]++
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := bandit.New(nil, bandit.Options{})
	require.Error(t, err)

	nan := math.NaN()
	_, err = bandit.New(state.NewMemoryStore(), bandit.Options{SuccessThreshold: &nan})
	require.Error(t, err)

	_, err = bandit.New(state.NewMemoryStore(), bandit.Options{Epsilon: -1})
	require.Error(t, err)

	_, err = bandit.New(state.NewMemoryStore(), bandit.Options{Orphans: "forget"})
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})
	assert.Equal(t, bandit.DefaultSuccessThreshold, e.Threshold())
	assert.Equal(t, bandit.OrphansRetain, e.OrphanPolicy())

	zero := 0.0
	e = newEngine(t, state.NewMemoryStore(), bandit.Options{SuccessThreshold: &zero, Orphans: bandit.OrphansPrune})
	assert.Equal(t, 0.0, e.Threshold())
	assert.Equal(t, bandit.OrphansPrune, e.OrphanPolicy())
}

func TestEnsurePriorsIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	e := newEngine(t, store, bandit.Options{})

	created, err := e.EnsurePriors(ctx, arms("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	before, err := e.Beliefs(ctx)
	require.NoError(t, err)

	created, err = e.EnsurePriors(ctx, arms("a", "b"))
	require.NoError(t, err)
	assert.Zero(t, created)

	after, err := e.Beliefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	for _, r := range after {
		assert.Equal(t, 1.0, r.Alpha)
		assert.Equal(t, 1.0, r.Beta)
	}
}

func TestEnsurePriorsKeepsLearnedValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	store.Put(bandit.Record{Arm: "a", Alpha: 7, Beta: 3})
	e := newEngine(t, store, bandit.Options{})

	created, err := e.EnsurePriors(ctx, arms("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	rec, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7.0, rec.Alpha)
	assert.Equal(t, 3.0, rec.Beta)
}

func TestCatalogValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})

	tests := []struct {
		name    string
		catalog []bandit.Arm
		want    error
	}{
		{name: "empty", catalog: nil, want: bandit.ErrEmptyCatalog},
		{name: "blank name", catalog: arms("a", "  "), want: bandit.ErrUnnamedArm},
		{name: "duplicate", catalog: arms("a", "b", "a"), want: bandit.ErrDuplicateArm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SampleArm(ctx, tt.catalog)
			require.Error(t, err)
			assert.True(t, bandit.IsConfiguration(err), "want ConfigurationError, got %T", err)
			assert.ErrorIs(t, err, tt.want)

			_, err = e.EnsurePriors(ctx, tt.catalog)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateRewardIncrementsOneParameter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	metrics := newRecordingMetrics()
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{Metrics: metrics})
	_, err := e.EnsurePriors(ctx, arms("a"))
	require.NoError(t, err)

	rec, err := e.UpdateReward(ctx, "a", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 1.0, rec.Beta)

	rec, err = e.UpdateReward(ctx, "a", 0.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 2.0, rec.Beta)

	assert.Equal(t, 1, metrics.successes["a"])
	assert.Equal(t, 1, metrics.failures["a"])
}

func TestUpdateRewardThresholdBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})

	tests := []struct {
		reward    float64
		wantAlpha float64
		wantBeta  float64
	}{
		{reward: 0.5, wantAlpha: 2, wantBeta: 1},
		{reward: 0.4999, wantAlpha: 1, wantBeta: 2},
		{reward: 0.6, wantAlpha: 2, wantBeta: 1},
		{reward: 0.3, wantAlpha: 1, wantBeta: 2},
		{reward: -4, wantAlpha: 1, wantBeta: 2},
		{reward: 12, wantAlpha: 2, wantBeta: 1},
		{reward: math.Inf(1), wantAlpha: 2, wantBeta: 1},
	}
	for i, tt := range tests {
		arm := string(rune('a' + i))
		rec, err := e.UpdateReward(ctx, arm, tt.reward)
		require.NoError(t, err)
		assert.Equal(t, tt.wantAlpha, rec.Alpha, "reward %v alpha", tt.reward)
		assert.Equal(t, tt.wantBeta, rec.Beta, "reward %v beta", tt.reward)
	}
}

func TestUpdateRewardCustomThreshold(t *testing.T) {
	t.Parallel()

	threshold := 0.8
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{SuccessThreshold: &threshold})

	rec, err := e.UpdateReward(context.Background(), "a", 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Alpha)
	assert.Equal(t, 2.0, rec.Beta)
}

func TestUpdateRewardRejectsBadInput(t *testing.T) {
	t.Parallel()

	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})

	_, err := e.UpdateReward(context.Background(), "", 1)
	assert.True(t, bandit.IsConfiguration(err))
	assert.ErrorIs(t, err, bandit.ErrUnnamedArm)

	_, err = e.UpdateReward(context.Background(), "a", math.NaN())
	assert.True(t, bandit.IsConfiguration(err))
	assert.ErrorIs(t, err, bandit.ErrInvalidReward)
}

func TestUpdateRewardUnknownArmStartsFromPrior(t *testing.T) {
	t.Parallel()

	rec, err := newEngine(t, state.NewMemoryStore(), bandit.Options{}).UpdateReward(context.Background(), "new", 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Alpha)
	assert.Equal(t, 1.0, rec.Beta)
}

func TestConcurrentSuccessUpdatesAreNotLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})
	_, err := e.EnsurePriors(ctx, arms("a"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.UpdateReward(ctx, "a", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	beliefs, err := e.Beliefs(ctx)
	require.NoError(t, err)
	require.Len(t, beliefs, 1)
	assert.Equal(t, 3.0, beliefs[0].Alpha)
	assert.Equal(t, 1.0, beliefs[0].Beta)
}

func TestSampleArmReturnsCatalogArmWithMeta(t *testing.T) {
	t.Parallel()

	catalog := []bandit.Arm{
		{Name: "hero-a", Meta: map[string]any{"headline": "Save time", "price": 19}},
		{Name: "hero-b", Meta: map[string]any{"headline": "Ship faster"}},
	}
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{})

	for range 50 {
		got, err := e.SampleArm(context.Background(), catalog)
		require.NoError(t, err)
		switch got.Name {
		case "hero-a":
			assert.Equal(t, catalog[0].Meta, got.Meta)
		case "hero-b":
			assert.Equal(t, catalog[1].Meta, got.Meta)
		default:
			t.Fatalf("SampleArm returned %q, not in catalog", got.Name)
		}
	}
}

func TestSampleArmFavoursStrongBelief(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	store.Put(bandit.Record{Arm: "strong", Alpha: 100, Beta: 1})
	store.Put(bandit.Record{Arm: "weak", Alpha: 1, Beta: 100})
	e := newEngine(t, store, bandit.Options{})

	const draws = 10000
	wins := 0
	catalog := arms("weak", "strong")
	for range draws {
		got, err := e.SampleArm(ctx, catalog)
		require.NoError(t, err)
		if got.Name == "strong" {
			wins++
		}
	}
	assert.Greater(t, float64(wins)/draws, 0.8)
}

func TestSampleArmEnsuresPriors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	e := newEngine(t, store, bandit.Options{})

	_, err := e.SampleArm(ctx, arms("x", "y"))
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSampleArmTiesGoToFirstListed(t *testing.T) {
	t.Parallel()

	constant := bandit.SamplerFunc(func(float64, float64) float64 { return 0.5 })
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{Sampler: constant})

	got, err := e.SampleArm(context.Background(), arms("second", "first", "third"))
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
}

func TestSampleArmClampsMalformedBeliefs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	store.Put(bandit.Record{Arm: "zero", Alpha: 0, Beta: -3})
	store.Put(bandit.Record{Arm: "nan", Alpha: math.NaN(), Beta: math.Inf(1)})

	var mu sync.Mutex
	var seen [][2]float64
	sampler := bandit.SamplerFunc(func(a, b float64) float64 {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]float64{a, b})
		return math.NaN()
	})
	e := newEngine(t, store, bandit.Options{Sampler: sampler, Epsilon: 0.01})

	got, err := e.SampleArm(ctx, arms("zero", "nan"))
	require.NoError(t, err)
	assert.Equal(t, "zero", got.Name, "NaN draws count as zero and tie to the first arm")

	require.Len(t, seen, 2)
	for _, params := range seen {
		assert.Equal(t, 0.01, params[0])
		assert.Equal(t, 0.01, params[1])
	}

	rec, _, err := store.Get(ctx, "zero")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.Alpha, "clamped values are never written back")
	assert.Equal(t, -3.0, rec.Beta)
}

func TestSampleArmPersistenceErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("ensure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockBeliefStore(ctrl)
		store.EXPECT().EnsureArms(gomock.Any(), []string{"a"}).Return(0, boom)

		metrics := newRecordingMetrics()
		_, err := newEngine(t, store, bandit.Options{Metrics: metrics}).SampleArm(ctx, arms("a"))
		require.Error(t, err)
		assert.True(t, bandit.IsPersistence(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, metrics.storeErrs["ensure_arms"])
	})

	t.Run("list", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockBeliefStore(ctrl)
		gomock.InOrder(
			store.EXPECT().EnsureArms(gomock.Any(), []string{"a"}).Return(0, nil),
			store.EXPECT().List(gomock.Any()).Return(nil, boom),
		)

		_, err := newEngine(t, store, bandit.Options{}).SampleArm(ctx, arms("a"))
		assert.True(t, bandit.IsPersistence(err))
	})

	t.Run("missing belief after ensure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockBeliefStore(ctrl)
		store.EXPECT().EnsureArms(gomock.Any(), []string{"a", "b"}).Return(0, nil)
		store.EXPECT().List(gomock.Any()).Return([]bandit.Record{{Arm: "a", Alpha: 1, Beta: 1}}, nil)

		_, err := newEngine(t, store, bandit.Options{}).SampleArm(ctx, arms("a", "b"))
		assert.True(t, bandit.IsConfiguration(err))
		assert.ErrorIs(t, err, bandit.ErrMissingBelief)
	})
}

func TestUpdateRewardPersistenceError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockBeliefStore(ctrl)
	boom := errors.New("database is locked")
	store.EXPECT().Increment(gomock.Any(), "a", 1.0, 0.0).Return(bandit.Record{}, boom)

	metrics := newRecordingMetrics()
	_, err := newEngine(t, store, bandit.Options{Metrics: metrics}).UpdateReward(context.Background(), "a", 0.9)
	require.Error(t, err)
	assert.True(t, bandit.IsPersistence(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `arm "a"`)
	assert.Zero(t, metrics.successes["a"], "failed updates are not counted")
}

func TestOrphansAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	store.Put(bandit.Record{Arm: "retired", Alpha: 4, Beta: 9})

	retain := newEngine(t, store, bandit.Options{})
	orphans, err := retain.Orphans(ctx, arms("live"))
	require.NoError(t, err)
	assert.Equal(t, []string{"retired"}, orphans)

	_, err = retain.PruneOrphans(ctx, arms("live"))
	assert.ErrorIs(t, err, bandit.ErrPruningDisabled)
	_, ok, _ := store.Get(ctx, "retired")
	assert.True(t, ok, "retain policy must keep the record")

	prune := newEngine(t, store, bandit.Options{Orphans: bandit.OrphansPrune})
	_, err = prune.EnsurePriors(ctx, arms("live"))
	require.NoError(t, err)
	pruned, err := prune.PruneOrphans(ctx, arms("live"))
	require.NoError(t, err)
	assert.Equal(t, []string{"retired"}, pruned)

	beliefs, err := prune.Beliefs(ctx)
	require.NoError(t, err)
	require.Len(t, beliefs, 1)
	assert.Equal(t, "live", beliefs[0].Arm)
}

func TestSampleArmIgnoresOrphans(t *testing.T) {
	t.Parallel()

	store := state.NewMemoryStore()
	store.Put(bandit.Record{Arm: "retired", Alpha: 1000, Beta: 1})
	e := newEngine(t, store, bandit.Options{})

	for range 20 {
		got, err := e.SampleArm(context.Background(), arms("a", "b"))
		require.NoError(t, err)
		assert.NotEqual(t, "retired", got.Name)
	}
}

func TestSelectReturnsDecision(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newEngine(t, state.NewMemoryStore(), bandit.Options{
		Sampler: bandit.SamplerFunc(func(a, _ float64) float64 { return a / 10 }),
		Now:     func() time.Time { return fixed },
	})

	d, err := e.Select(context.Background(), arms("a", "b"), "blake3:abc")
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "a", d.Arm.Name)
	assert.Equal(t, 0.1, d.Draw)
	assert.Equal(t, "blake3:abc", d.Catalog)
	assert.Equal(t, fixed, d.At)

	d2, err := e.Select(context.Background(), arms("a", "b"), "")
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, d2.ID)
}
