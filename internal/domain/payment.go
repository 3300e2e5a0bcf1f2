package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/money"
)

type PaymentStatus string

const (
	PaymentStatusCaptured          PaymentStatus = "captured"
	PaymentStatusSettled           PaymentStatus = "settled"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
)

// statusRank orders the forward-only status progression. A payment never
// moves backwards; refund states outrank settlement states.
var statusRank = map[PaymentStatus]int{
	PaymentStatusFailed:            0,
	PaymentStatusCaptured:          1,
	PaymentStatusSettled:           2,
	PaymentStatusPartiallyRefunded: 3,
	PaymentStatusRefunded:          4,
}

func (s PaymentStatus) CanProgressTo(next PaymentStatus) bool {
	return statusRank[next] > statusRank[s]
}

// Payment is a settled (or failed) charge. Rows are created once and mutated
// only to advance status or record refund linkage; never deleted.
type Payment struct {
	ID                  uuid.UUID
	IntentID            uuid.UUID
	PayableKind         SubjectKind
	PayableID           uuid.UUID
	PayerID             uuid.UUID
	PayeeID             *uuid.UUID
	Amount              int64
	Fee                 int64
	Net                 int64
	Currency            money.Currency
	Status              PaymentStatus
	Provider            string
	ProviderPaymentID   string
	StatementDescriptor *string
	Raw                 json.RawMessage
	CreatedAt           time.Time
	UpdatedAt           time.Time
	SettledAt           *time.Time
	DeletedAt           *time.Time
}

func (p *Payment) Payable() Subject {
	return Subject{Kind: p.PayableKind, ID: p.PayableID}
}

func (p *Payment) LedgerOwner() Subject {
	if p.PayeeID == nil {
		return PlatformSubject
	}
	return Subject{Kind: SubjectCreator, ID: *p.PayeeID}
}

// DeclineReason is the normalized, caller-safe reason for a failed capture.
// Raw provider codes are mapped into this set and never leaked upstream.
type DeclineReason string

const (
	DeclineReasonDeclined          DeclineReason = "declined"
	DeclineReasonInsufficientFunds DeclineReason = "insufficient_funds"
	DeclineReasonExpiredMethod     DeclineReason = "expired_method"
	DeclineReasonProcessingError   DeclineReason = "processing_error"
)
