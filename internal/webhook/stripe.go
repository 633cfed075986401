package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mattjoyce/armsd/internal/feedback"
)

// stripeResult is a verified Stripe delivery reduced to what the recorder
// needs. ok is false for event types that carry no reward.
type stripeResult struct {
	eventType string
	event     feedback.Event
	ok        bool
}

// parseStripeEvent verifies the Stripe-Signature header and maps rewarded
// event types onto a purchase. Verification errors are returned as
// errVerification.
func parseStripeEvent(body []byte, signature, secret, armKey string) (stripeResult, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripeResult{}, errVerification
	}

	res := stripeResult{eventType: string(event.Type)}
	if event.Data == nil {
		return res, nil
	}

	var (
		metadata  map[string]string
		paymentID string
	)
	switch res.eventType {
	case stripeCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return res, fmt.Errorf("decode checkout session: %w", err)
		}
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return res, nil
		}
		metadata = cs.Metadata
		if cs.PaymentIntent != nil {
			paymentID = cs.PaymentIntent.ID
		}
	case stripePaymentIntentSuccess:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return res, fmt.Errorf("decode payment intent: %w", err)
		}
		metadata = pi.Metadata
		paymentID = pi.ID
	default:
		return res, nil
	}

	// A checkout session and its payment intent describe the same purchase,
	// so both dedupe on the payment intent id when there is one.
	id := "stripe:" + event.ID
	if paymentID != "" {
		id = "stripe:pi:" + paymentID
	}

	res.event = feedback.Event{
		ID:     id,
		Type:   purchaseEventType,
		Arm:    strings.TrimSpace(metadata[armKey]),
		Source: KindStripe,
	}
	res.ok = true
	return res, nil
}
