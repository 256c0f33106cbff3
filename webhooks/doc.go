// Package webhooks pushes integration lifecycle events to external HTTP
// endpoints. The notifier registers as an outbox projector, so
// deliveries ride the outbox's at-least-once retry loop; receivers
// dedupe on the delivery id header and authenticate the POST body with
// the shared-secret signature.
package webhooks
