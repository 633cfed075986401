// Package bandit implements Thompson-sampling arm selection over Beta beliefs
// kept in a BeliefStore.
//
// Each arm carries a Beta(alpha, beta) belief over its success probability.
// SampleArm draws once from every catalog arm's belief and returns the arm
// with the largest draw; UpdateReward reduces an observed reward to a single
// Bernoulli outcome and bumps alpha (success) or beta (failure) by one.
//
// The engine holds no goroutines and no global state. Atomicity of updates is
// the store's job: Increment must apply its delta in one step so concurrent
// reward reports for the same arm never lose an update.
package bandit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mattjoyce/armsd/internal/log"
)

// DefaultSuccessThreshold is the reward at or above which an observation counts as a success.
const DefaultSuccessThreshold = 0.5

// OrphanPolicy controls what happens to records for arms removed from the catalog.
type OrphanPolicy string

const (
	OrphansRetain OrphanPolicy = "retain"
	OrphansPrune  OrphanPolicy = "prune"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	SuccessThreshold *float64
	Epsilon          float64
	Orphans          OrphanPolicy
	Sampler          Sampler
	Metrics          Metrics
	Logger           *slog.Logger
	Now              func() time.Time
}

// Engine selects arms and records rewards against a BeliefStore.
type Engine struct {
	store     BeliefStore
	threshold float64
	epsilon   float64
	orphans   OrphanPolicy
	sampler   Sampler
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an Engine. store is required.
func New(store BeliefStore, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("belief store is nil")
	}

	e := &Engine{
		store:     store,
		threshold: DefaultSuccessThreshold,
		epsilon:   DefaultEpsilon,
		orphans:   OrphansRetain,
		sampler:   opts.Sampler,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if opts.SuccessThreshold != nil {
		if math.IsNaN(*opts.SuccessThreshold) || math.IsInf(*opts.SuccessThreshold, 0) {
			return nil, fmt.Errorf("success threshold must be finite")
		}
		e.threshold = *opts.SuccessThreshold
	}
	if opts.Epsilon != 0 {
		if !(opts.Epsilon > 0) || math.IsInf(opts.Epsilon, 0) {
			return nil, fmt.Errorf("epsilon must be a positive finite number, got %v", opts.Epsilon)
		}
		e.epsilon = opts.Epsilon
	}
	switch opts.Orphans {
	case "":
	case OrphansRetain, OrphansPrune:
		e.orphans = opts.Orphans
	default:
		return nil, fmt.Errorf("unknown orphan policy %q", opts.Orphans)
	}
	if e.sampler == nil {
		e.sampler = DefaultSampler()
	}
	if e.metrics == nil {
		e.metrics = NoopMetrics{}
	}
	if e.logger == nil {
		e.logger = log.WithComponent("bandit")
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Threshold returns the configured success threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// OrphanPolicy returns the configured orphan policy.
func (e *Engine) OrphanPolicy() OrphanPolicy { return e.orphans }

// EnsurePriors creates a Beta(1, 1) record for every catalog arm that has none.
// Calling it repeatedly is safe; the steady state creates nothing.
func (e *Engine) EnsurePriors(ctx context.Context, arms []Arm) (int, error) {
	if err := validateCatalog("ensure_priors", arms); err != nil {
		return 0, err
	}

	start := time.Now()
	created, err := e.store.EnsureArms(ctx, Names(arms))
	e.metrics.RecordStoreOperation("ensure_arms", time.Since(start), err)
	if err != nil {
		return 0, persistErr("ensure_priors", "", err)
	}
	if created > 0 {
		e.logger.Info("initialized arm priors", "created", created, "catalog_size", len(arms))
	}
	return created, nil
}

// SampleArm returns the catalog arm whose Beta draw is largest.
// Priors are ensured first. Ties go to the arm listed first.
func (e *Engine) SampleArm(ctx context.Context, arms []Arm) (Arm, error) {
	arm, _, err := e.sample(ctx, arms)
	return arm, err
}

func (e *Engine) sample(ctx context.Context, arms []Arm) (Arm, float64, error) {
	if _, err := e.EnsurePriors(ctx, arms); err != nil {
		return Arm{}, 0, err
	}

	start := time.Now()
	records, err := e.store.List(ctx)
	e.metrics.RecordStoreOperation("list", time.Since(start), err)
	if err != nil {
		return Arm{}, 0, persistErr("sample_arm", "", err)
	}

	byName := make(map[string]Record, len(records))
	for _, r := range records {
		byName[r.Arm] = r
	}

	best := -1
	bestDraw := math.Inf(-1)
	for i, a := range arms {
		rec, ok := byName[a.Name]
		if !ok {
			return Arm{}, 0, configErr("sample_arm", a.Name, ErrMissingBelief)
		}
		draw := e.sampler.Beta(clampParam(rec.Alpha, e.epsilon), clampParam(rec.Beta, e.epsilon))
		if math.IsNaN(draw) {
			draw = 0
		}
		if best < 0 || draw > bestDraw {
			best = i
			bestDraw = draw
		}
	}

	chosen := arms[best]
	e.metrics.RecordSelection(chosen.Name)
	log.WithArm(e.logger, chosen.Name).Debug("arm sampled", "draw", bestDraw, "candidates", len(arms))
	return chosen, bestDraw, nil
}

// UpdateReward folds one observed reward into the arm's belief: a reward at
// or above the threshold adds one to alpha, anything below adds one to beta.
// The record is created from the prior when the arm has never been seen.
func (e *Engine) UpdateReward(ctx context.Context, arm string, reward float64) (Record, error) {
	if arm == "" {
		return Record{}, configErr("update_reward", "", ErrUnnamedArm)
	}
	if math.IsNaN(reward) {
		return Record{}, configErr("update_reward", arm, ErrInvalidReward)
	}

	success := reward >= e.threshold
	dAlpha, dBeta := 0.0, 1.0
	if success {
		dAlpha, dBeta = 1.0, 0.0
	}

	start := time.Now()
	rec, err := e.store.Increment(ctx, arm, dAlpha, dBeta)
	e.metrics.RecordStoreOperation("increment", time.Since(start), err)
	if err != nil {
		return Record{}, persistErr("update_reward", arm, err)
	}

	e.metrics.RecordReward(arm, success)
	log.WithArm(e.logger, arm).Info("reward recorded",
		"reward", reward,
		"success", success,
		"alpha", rec.Alpha,
		"beta", rec.Beta,
	)
	return rec, nil
}

// Beliefs returns every stored record sorted by arm name.
func (e *Engine) Beliefs(ctx context.Context) ([]Record, error) {
	start := time.Now()
	records, err := e.store.List(ctx)
	e.metrics.RecordStoreOperation("list", time.Since(start), err)
	if err != nil {
		return nil, persistErr("beliefs", "", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Arm < records[j].Arm })
	return records, nil
}

// Orphans returns the names of stored records whose arm is not in the catalog.
func (e *Engine) Orphans(ctx context.Context, arms []Arm) ([]string, error) {
	if err := validateCatalog("orphans", arms); err != nil {
		return nil, err
	}
	records, err := e.Beliefs(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(arms))
	for _, a := range arms {
		known[a.Name] = struct{}{}
	}
	var orphans []string
	for _, r := range records {
		if _, ok := known[r.Arm]; !ok {
			orphans = append(orphans, r.Arm)
		}
	}
	return orphans, nil
}

// PruneOrphans deletes records for arms missing from the catalog. It refuses
// to run unless the orphan policy is prune.
func (e *Engine) PruneOrphans(ctx context.Context, arms []Arm) ([]string, error) {
	if e.orphans != OrphansPrune {
		return nil, configErr("prune_orphans", "", ErrPruningDisabled)
	}
	orphans, err := e.Orphans(ctx, arms)
	if err != nil {
		return nil, err
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	start := time.Now()
	_, err = e.store.Delete(ctx, orphans)
	e.metrics.RecordStoreOperation("delete", time.Since(start), err)
	if err != nil {
		return nil, persistErr("prune_orphans", "", err)
	}
	e.logger.Info("pruned orphaned beliefs", "count", len(orphans), "arms", orphans)
	return orphans, nil
}
