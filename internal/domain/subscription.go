package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/money"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusGrace     SubscriptionStatus = "grace"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// Recoverable reports whether the subscription can return to active through
// a resume. Cancelled and expired subscriptions require a fresh create.
func (s SubscriptionStatus) Recoverable() bool {
	return s == SubscriptionStatusPastDue || s == SubscriptionStatusGrace
}

type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// PaymentSubscription is a recurring billing relationship between a
// subscriber and a creator plan, settled through a gateway subscription.
type PaymentSubscription struct {
	ID                     uuid.UUID
	SubscriberID           uuid.UUID
	CreatorID              uuid.UUID
	PlanID                 string
	Amount                 int64
	Currency               money.Currency
	Interval               BillingInterval
	IntervalCount          int
	Status                 SubscriptionStatus
	Provider               string
	ProviderSubscriptionID *string
	AutoRenews             bool
	TrialEndsAt            *time.Time
	StartsAt               time.Time
	EndsAt                 *time.Time
	GraceEndsAt            *time.Time
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
