package bandit

import (
	"fmt"
	"strings"
)

// Arm is a catalog-defined option. Meta is opaque to the engine and handed
// back unchanged by SampleArm.
type Arm struct {
	Name string         `json:"name"`
	Meta map[string]any `json:"meta,omitempty"`
}

// ValidateCatalog checks that arms is non-empty and every name is present
// and unique. It returns a *ConfigurationError on failure.
func ValidateCatalog(arms []Arm) error {
	return validateCatalog("validate", arms)
}

func validateCatalog(op string, arms []Arm) error {
	if len(arms) == 0 {
		return configErr(op, "", ErrEmptyCatalog)
	}
	seen := make(map[string]struct{}, len(arms))
	for i, a := range arms {
		if strings.TrimSpace(a.Name) == "" {
			return configErr(op, "", fmt.Errorf("arms[%d]: %w", i, ErrUnnamedArm))
		}
		if _, dup := seen[a.Name]; dup {
			return configErr(op, a.Name, ErrDuplicateArm)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// Names returns the arm names in catalog order.
func Names(arms []Arm) []string {
	out := make([]string, len(arms))
	for i, a := range arms {
		out[i] = a.Name
	}
	return out
}
