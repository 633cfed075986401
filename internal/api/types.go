package api

import (
	"time"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// ArmView is one catalog arm joined with its stored belief. Arms without a
// stored record report the prior and Initialized=false.
type ArmView struct {
	Name        string         `json:"name"`
	Meta        map[string]any `json:"meta,omitempty"`
	Alpha       float64        `json:"alpha"`
	Beta        float64        `json:"beta"`
	Mean        float64        `json:"mean"`
	Initialized bool           `json:"initialized"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// ArmsResponse is returned by GET /arms.
type ArmsResponse struct {
	Catalog      string    `json:"catalog"`
	OrphanPolicy string    `json:"orphan_policy"`
	Arms         []ArmView `json:"arms"`
	Orphans      []string  `json:"orphans"`
}

// SampleRequest is the optional JSON body for POST /arms/sample. An empty
// Arms list samples the whole catalog.
type SampleRequest struct {
	Arms []string `json:"arms,omitempty"`
}

// SampleResponse is returned by POST /arms/sample.
type SampleResponse = bandit.Decision

// RewardRequest is the JSON body for POST /arms/{arm}/reward. Either Reward
// or Type must be set; Reward wins when both are.
type RewardRequest struct {
	Reward  *float64 `json:"reward,omitempty"`
	Type    string   `json:"type,omitempty"`
	EventID string   `json:"event_id,omitempty"`
}

// RewardResponse is returned by POST /arms/{arm}/reward.
type RewardResponse struct {
	Status  string         `json:"status"`
	Arm     string         `json:"arm"`
	Reward  float64        `json:"reward,omitempty"`
	Success bool           `json:"success"`
	Belief  *bandit.Record `json:"belief,omitempty"`
}

// PruneResponse is returned by POST /arms/prune.
type PruneResponse struct {
	Pruned []string `json:"pruned"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Store         string `json:"store"`
	StoredArms    int    `json:"stored_arms"`
	Subscribers   int    `json:"subscribers"`
}
