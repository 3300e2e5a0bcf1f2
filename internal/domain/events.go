package domain

// Event is a domain event published after the owning transaction commits.
// Each carries an immutable snapshot of the affected entity; listeners must
// be idempotent against redelivery.
type Event interface {
	Name() string
}

type PaymentInitiated struct{ Intent PaymentIntent }

func (PaymentInitiated) Name() string { return "payment.initiated" }

type PaymentCaptured struct{ Payment Payment }

func (PaymentCaptured) Name() string { return "payment.captured" }

type PaymentFailed struct {
	Intent PaymentIntent
	Reason DeclineReason
}

func (PaymentFailed) Name() string { return "payment.failed" }

type PaymentRefunded struct {
	Payment Payment
	Refund  PaymentRefund
}

func (PaymentRefunded) Name() string { return "payment.refunded" }

type SubscriptionStarted struct{ Subscription PaymentSubscription }

func (SubscriptionStarted) Name() string { return "subscription.started" }

type SubscriptionRenewed struct{ Subscription PaymentSubscription }

func (SubscriptionRenewed) Name() string { return "subscription.renewed" }

type SubscriptionCancelled struct{ Subscription PaymentSubscription }

func (SubscriptionCancelled) Name() string { return "subscription.cancelled" }

type SubscriptionEnteredGrace struct{ Subscription PaymentSubscription }

func (SubscriptionEnteredGrace) Name() string { return "subscription.entered_grace" }

type SubscriptionExpired struct{ Subscription PaymentSubscription }

func (SubscriptionExpired) Name() string { return "subscription.expired" }

type SubscriptionPaymentFailed struct{ Subscription PaymentSubscription }

func (SubscriptionPaymentFailed) Name() string { return "subscription.payment_failed" }
