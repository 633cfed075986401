// Package webhook receives signed reward notifications and hands them to the
// feedback recorder.
//
// Two endpoint kinds are supported:
//
//   - stripe: the Stripe-Signature header is verified with stripe-go.
//     checkout.session.completed and payment_intent.succeeded become a
//     purchase event for the arm named in the object's metadata. Every other
//     event type is acknowledged and ignored.
//   - hmac: the body is a JSON object {"id", "type", "arm", "reward"} signed
//     with HMAC-SHA256 over the raw body. Used for engagement signals such as
//     email_open and email_click.
//
// Signature failures always get a generic 403. Duplicates and events without
// an arm get a 200 so senders stop retrying; store failures get a 503 so
// they retry later.
//
// # Configuration
//
//	webhooks:
//	  listen: "127.0.0.1:8091"
//	  endpoints:
//	    - path: /webhooks/stripe
//	      kind: stripe
//	      secret_ref: STRIPE_WEBHOOK_SECRET
//	    - path: /webhooks/engagement
//	      kind: hmac
//	      secret: ${ENGAGEMENT_SECRET}
//	      signature_header: X-Armsd-Signature
//	      max_body_size: 64KiB
package webhook
