package bandit

import "time"

// Metrics receives engine instrumentation.
type Metrics interface {
	// RecordSelection counts an arm chosen by SampleArm.
	RecordSelection(arm string)

	// RecordReward counts a reward applied to arm.
	RecordReward(arm string, success bool)

	// RecordStoreOperation records the latency and outcome of a belief store call.
	RecordStoreOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordSelection(string)                             {}
func (NoopMetrics) RecordReward(string, bool)                          {}
func (NoopMetrics) RecordStoreOperation(string, time.Duration, error) {}
