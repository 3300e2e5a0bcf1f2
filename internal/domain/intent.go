package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/money"
)

type IntentType string

const (
	IntentTypeOneTime    IntentType = "one_time"
	IntentTypeRecurring  IntentType = "recurring"
	IntentTypeAdjustment IntentType = "adjustment"
)

type IntentStatus string

const (
	IntentStatusRequiresMethod       IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentStatusProcessing           IntentStatus = "processing"
	IntentStatusSucceeded            IntentStatus = "succeeded"
	IntentStatusCancelled            IntentStatus = "cancelled"
	IntentStatusExpired              IntentStatus = "expired"
)

func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusCancelled, IntentStatusExpired:
		return true
	}
	return false
}

// PaymentIntent is a promise to collect money before any funds move.
type PaymentIntent struct {
	ID               uuid.UUID
	PayableKind      SubjectKind
	PayableID        uuid.UUID
	Amount           int64
	Currency         money.Currency
	PayerID          uuid.UUID
	PayeeID          *uuid.UUID
	Type             IntentType
	Status           IntentStatus
	Provider         string
	ProviderIntentID *string
	ClientSecret     *string
	MethodHint       *string
	Metadata         json.RawMessage
	LastError        *string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExpiredAt reports whether the intent is past its expiry. Checked before
// every state-changing operation, not only by a background sweep.
func (i *PaymentIntent) ExpiredAt(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Capturable reports whether a capture may be attempted against the intent.
func (i *PaymentIntent) Capturable() bool {
	switch i.Status {
	case IntentStatusRequiresMethod, IntentStatusRequiresConfirmation, IntentStatusProcessing:
		return true
	}
	return false
}

func (i *PaymentIntent) Payable() Subject {
	return Subject{Kind: i.PayableKind, ID: i.PayableID}
}

// LedgerOwner is the subject credited on capture: the payee's creator ledger,
// or the platform's when the intent has no payee.
func (i *PaymentIntent) LedgerOwner() Subject {
	if i.PayeeID == nil {
		return PlatformSubject
	}
	return Subject{Kind: SubjectCreator, ID: *i.PayeeID}
}
