package webhook

import (
	"context"

	"github.com/mattjoyce/armsd/internal/feedback"
)

// Endpoint kinds.
const (
	KindStripe = "stripe"
	KindHMAC   = "hmac"
)

// Default values
const (
	DefaultMaxBodySize         = 1048576 // 1 MB
	DefaultHMACHeader          = "X-Armsd-Signature"
	DefaultStripeHeader        = "Stripe-Signature"
	DefaultArmMetadataKey      = "arm"
	purchaseEventType          = "purchase"
	stripeCheckoutCompleted    = "checkout.session.completed"
	stripePaymentIntentSuccess = "payment_intent.succeeded"
)

// Recorder applies reward events.
type Recorder interface {
	Record(ctx context.Context, ev feedback.Event) (feedback.Outcome, error)
}

// Metrics counts webhook deliveries.
type Metrics interface {
	RecordWebhookEvent(kind, eventType, result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWebhookEvent(string, string, string) {}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig

	// ArmMetadataKey is the Stripe metadata key naming the arm.
	ArmMetadataKey string
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	Path string
	Kind string

	// Secret is the HMAC key or the Stripe endpoint signing secret.
	Secret string

	// SignatureHeader defaults per kind.
	SignatureHeader string

	MaxBodySize int64
}

// Response is the JSON body returned for accepted deliveries.
type Response struct {
	Received bool    `json:"received"`
	Status   string  `json:"status"`
	Arm      string  `json:"arm,omitempty"`
	Reward   float64 `json:"reward,omitempty"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
