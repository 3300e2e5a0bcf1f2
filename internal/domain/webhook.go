package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// PaymentWebhook is a received provider callback. The (provider, signature)
// pair is the idempotency key: inside the replay window a duplicate delivery
// is acknowledged without re-executing side effects.
type PaymentWebhook struct {
	ID          uuid.UUID
	Provider    string
	Event       string
	Signature   string
	Payload     json.RawMessage
	Status      WebhookStatus
	Error       *string
	Attempts    int
	ProcessedAt *time.Time
	CreatedAt   time.Time
}
