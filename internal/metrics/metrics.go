// Package metrics exposes engine and intake counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// Webhook outcomes used as the result label.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Prometheus implements bandit.Metrics and records webhook outcomes.
type Prometheus struct {
	registry *prometheus.Registry

	selections    *prometheus.CounterVec
	rewards       *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

var _ bandit.Metrics = (*Prometheus)(nil)

// New registers the collectors on a fresh registry under namespace.
func New(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		selections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arm_selections_total",
			Help:      "Arms returned by Thompson sampling.",
		}, []string{"arm"}),
		rewards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arm_rewards_total",
			Help:      "Rewards applied to arm beliefs, by outcome.",
		}, []string{"arm", "outcome"}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by endpoint kind, event type and result.",
		}, []string{"kind", "type", "result"}),
		storeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "belief_store_operation_duration_seconds",
			Help:      "Latency of belief store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
}

func (p *Prometheus) RecordSelection(arm string) {
	p.selections.WithLabelValues(arm).Inc()
}

func (p *Prometheus) RecordReward(arm string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	p.rewards.WithLabelValues(arm, outcome).Inc()
}

func (p *Prometheus) RecordStoreOperation(operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.storeDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// RecordWebhookEvent counts one webhook delivery.
func (p *Prometheus) RecordWebhookEvent(kind, eventType, result string) {
	p.webhookEvents.WithLabelValues(kind, eventType, result).Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
