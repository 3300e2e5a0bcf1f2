package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/money"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// PaymentRefund reverses part or all of a Payment. The sum of succeeded
// refunds never exceeds the payment amount.
type PaymentRefund struct {
	ID               uuid.UUID
	PaymentID        uuid.UUID
	Amount           int64
	Currency         money.Currency
	Status           RefundStatus
	Reason           *string
	Provider         string
	ProviderRefundID string
	CreatedAt        time.Time
}
