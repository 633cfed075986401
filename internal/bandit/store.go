package bandit

import (
	"context"
	"time"
)

// Uniform Beta(1, 1) prior given to every arm on first reference.
const (
	PriorAlpha = 1.0
	PriorBeta  = 1.0
)

// Record is the persisted Beta belief for one arm.
type Record struct {
	Arm       string    `json:"arm"`
	Alpha     float64   `json:"alpha"`
	Beta      float64   `json:"beta"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Mean returns the posterior mean alpha/(alpha+beta).
func (r Record) Mean() float64 {
	if r.Alpha+r.Beta <= 0 {
		return 0
	}
	return r.Alpha / (r.Alpha + r.Beta)
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/armsd/internal/bandit BeliefStore

// BeliefStore persists belief records keyed by arm name.
// Implementations must be safe for concurrent use by several goroutines and,
// for durable backends, several processes.
type BeliefStore interface {
	// Get returns the record for arm. ok is false when no record exists.
	Get(ctx context.Context, arm string) (rec Record, ok bool, err error)

	// List returns every record, including arms no longer in any catalog.
	List(ctx context.Context) ([]Record, error)

	// EnsureArms inserts a prior record for each arm that has none.
	// Existing records are untouched. Returns how many were created.
	EnsureArms(ctx context.Context, arms []string) (created int, err error)

	// Increment atomically adds dAlpha/dBeta to the arm's record, creating it
	// from the prior first if absent, and returns the stored result.
	Increment(ctx context.Context, arm string, dAlpha, dBeta float64) (Record, error)

	// Delete removes the named records. Missing names are ignored.
	Delete(ctx context.Context, arms []string) (deleted int, err error)
}
