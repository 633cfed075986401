// Package feedback turns reward-bearing events (purchases, email opens,
// clicks, explicit API rewards) into bandit updates. Events that carry an id
// are applied at most once.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/log"
	"github.com/mattjoyce/armsd/internal/state"
)

var (
	// ErrUnknownEventType is returned when an event has no explicit reward
	// and its type is missing from the reward table.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrDuplicateEvent is returned when an event id was already applied.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrMissingArm is returned when an event does not name an arm.
	ErrMissingArm = errors.New("event has no arm")
)

// Event is one reward-bearing observation.
type Event struct {
	// ID deduplicates deliveries. Empty ids are never deduplicated.
	ID   string
	Type string
	Arm  string

	// Reward overrides the reward table when set.
	Reward *float64

	// Source names the intake path, e.g. "stripe", "hmac" or "api".
	Source string
}

// Outcome describes what Record applied.
type Outcome struct {
	Arm     string        `json:"arm"`
	Reward  float64       `json:"reward"`
	Success bool          `json:"success"`
	Belief  bandit.Record `json:"belief"`
}

// Rewarder is the part of the engine the recorder drives.
type Rewarder interface {
	UpdateReward(ctx context.Context, arm string, reward float64) (bandit.Record, error)
	Threshold() float64
}

// Recorder applies events to a Rewarder.
type Recorder struct {
	engine    Rewarder
	ledger    state.Ledger
	rewards   map[string]float64
	publisher events.Publisher
	logger    *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLedger enables deduplication by event id.
func WithLedger(l state.Ledger) Option {
	return func(r *Recorder) { r.ledger = l }
}

// WithPublisher publishes reward.recorded after every applied event.
func WithPublisher(p events.Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder builds a Recorder. rewards maps event types to reward values.
func NewRecorder(engine Rewarder, rewards map[string]float64, opts ...Option) *Recorder {
	table := make(map[string]float64, len(rewards))
	for k, v := range rewards {
		table[k] = v
	}
	r := &Recorder{engine: engine, rewards: table}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.WithComponent("feedback")
	}
	return r
}

// RewardFor resolves the reward for an event without applying it.
func (r *Recorder) RewardFor(ev Event) (float64, error) {
	if ev.Reward != nil {
		if math.IsNaN(*ev.Reward) {
			return 0, bandit.ErrInvalidReward
		}
		return *ev.Reward, nil
	}
	reward, ok := r.rewards[ev.Type]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	return reward, nil
}

// Record applies ev once. A repeated id returns ErrDuplicateEvent without
// touching the beliefs. If the belief update fails the id is released so a
// redelivery can try again.
func (r *Recorder) Record(ctx context.Context, ev Event) (Outcome, error) {
	ev.Arm = strings.TrimSpace(ev.Arm)
	if ev.Arm == "" {
		return Outcome{}, ErrMissingArm
	}
	reward, err := r.RewardFor(ev)
	if err != nil {
		return Outcome{}, err
	}

	logger := log.WithArm(r.logger, ev.Arm).With("event_type", ev.Type, "source", ev.Source)
	if ev.ID != "" {
		logger = logger.With("event_id", ev.ID)
	}

	dedupe := ev.ID != "" && r.ledger != nil
	if dedupe {
		first, err := r.ledger.MarkProcessed(ctx, state.ProcessedEvent{ID: ev.ID, Arm: ev.Arm, Type: ev.Type, Reward: reward})
		if err != nil {
			return Outcome{}, &bandit.PersistenceError{Op: "record_event", Arm: ev.Arm, Err: err}
		}
		if !first {
			logger.Info("duplicate event skipped")
			return Outcome{}, ErrDuplicateEvent
		}
	}

	rec, err := r.engine.UpdateReward(ctx, ev.Arm, reward)
	if err != nil {
		if dedupe {
			if ferr := r.ledger.Forget(ctx, ev.ID); ferr != nil {
				logger.Error("failed to release event after update failure", "error", ferr)
			}
		}
		return Outcome{}, err
	}

	out := Outcome{
		Arm:     ev.Arm,
		Reward:  reward,
		Success: reward >= r.engine.Threshold(),
		Belief:  rec,
	}
	if r.publisher != nil {
		r.publisher.Publish(events.TypeRewardRecorded, events.RewardRecorded{
			Arm:     ev.Arm,
			Reward:  reward,
			Success: out.Success,
			Alpha:   rec.Alpha,
			Beta:    rec.Beta,
			Source:  ev.Source,
			EventID: ev.ID,
		})
	}
	logger.Debug("event applied", "reward", reward, "success", out.Success)
	return out, nil
}
