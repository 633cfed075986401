package bandit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/armsd/internal/log"
)

// Decision is one SampleArm outcome with an id callers can attach rewards to.
type Decision struct {
	ID      string    `json:"decision_id"`
	Arm     Arm       `json:"arm"`
	Draw    float64   `json:"draw"`
	Catalog string    `json:"catalog,omitempty"`
	At      time.Time `json:"at"`
}

// Select samples an arm and wraps it in a Decision. catalogHash identifies
// the catalog version the arms came from and may be empty.
func (e *Engine) Select(ctx context.Context, arms []Arm, catalogHash string) (Decision, error) {
	arm, draw, err := e.sample(ctx, arms)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		ID:      uuid.NewString(),
		Arm:     arm,
		Draw:    draw,
		Catalog: catalogHash,
		At:      e.now().UTC(),
	}
	log.WithDecision(log.WithArm(e.logger, arm.Name), d.ID).Info("arm selected",
		"draw", draw,
		"catalog", catalogHash,
	)
	return d, nil
}
