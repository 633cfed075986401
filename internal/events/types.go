// Package events fans out engine activity to live subscribers, keeping a
// short backlog for clients that reconnect.
package events

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeArmSampled     = "arm.sampled"
	TypeRewardRecorded = "reward.recorded"
	TypeArmsPruned     = "arms.pruned"
)

// Event is one published occurrence. IDs increase by one per Publish.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// ArmSampled is the payload of an arm.sampled event.
type ArmSampled struct {
	DecisionID string  `json:"decision_id"`
	Arm        string  `json:"arm"`
	Draw       float64 `json:"draw"`
	Catalog    string  `json:"catalog,omitempty"`
}

// RewardRecorded is the payload of a reward.recorded event.
type RewardRecorded struct {
	Arm     string  `json:"arm"`
	Reward  float64 `json:"reward"`
	Success bool    `json:"success"`
	Alpha   float64 `json:"alpha"`
	Beta    float64 `json:"beta"`
	Source  string  `json:"source,omitempty"`
	EventID string  `json:"event_id,omitempty"`
}

// ArmsPruned is the payload of an arms.pruned event.
type ArmsPruned struct {
	Arms []string `json:"arms"`
}
