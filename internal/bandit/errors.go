package bandit

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCatalog is returned when an operation receives no arms.
	ErrEmptyCatalog = errors.New("catalog is empty")

	// ErrUnnamedArm is returned when a catalog entry has a blank name.
	ErrUnnamedArm = errors.New("arm has no name")

	// ErrDuplicateArm is returned when two catalog entries share a name.
	ErrDuplicateArm = errors.New("duplicate arm name")

	// ErrUnknownArm is returned when a belief record cannot be resolved to a catalog arm.
	ErrUnknownArm = errors.New("arm not in catalog")

	// ErrMissingBelief is returned when a catalog arm has no belief record after priors were ensured.
	ErrMissingBelief = errors.New("belief record missing")

	// ErrInvalidReward is returned for NaN rewards.
	ErrInvalidReward = errors.New("invalid reward")

	// ErrPruningDisabled is returned by PruneOrphans when the orphan policy is retain.
	ErrPruningDisabled = errors.New("orphan pruning disabled by policy")
)

// ConfigurationError reports a catalog or caller inconsistency. It is never
// retried: the catalog or the call has to be fixed first.
type ConfigurationError struct {
	Op  string
	Arm string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Arm != "" {
		return fmt.Sprintf("bandit %s: arm %q: %v", e.Op, e.Arm, e.Err)
	}
	return fmt.Sprintf("bandit %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistenceError reports a belief store failure. Callers decide whether to
// retry; retried reward updates are counted again.
type PersistenceError struct {
	Op  string
	Arm string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Arm != "" {
		return fmt.Sprintf("bandit %s: arm %q: belief store: %v", e.Op, e.Arm, e.Err)
	}
	return fmt.Sprintf("bandit %s: belief store: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func configErr(op, arm string, err error) error {
	return &ConfigurationError{Op: op, Arm: arm, Err: err}
}

func persistErr(op, arm string, err error) error {
	return &PersistenceError{Op: op, Arm: arm, Err: err}
}
