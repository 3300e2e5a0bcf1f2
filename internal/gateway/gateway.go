package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
)

// IntentRequest asks a provider to open a pre-authorization.
type IntentRequest struct {
	Amount              int64
	Currency            money.Currency
	PayerRef            string
	Type                domain.IntentType
	MethodHint          string
	StatementDescriptor string
	Metadata            map[string]string
}

// IntentResponse is the normalized provider answer for intent operations.
// Raw carries the provider payload verbatim for audit; it is never surfaced
// to callers.
type IntentResponse struct {
	Provider         string
	ProviderIntentID string
	ClientSecret     string
	Status           string
	Raw              json.RawMessage
}

type CaptureRequest struct {
	ProviderIntentID    string
	Amount              int64
	Currency            money.Currency
	PaymentMethodID     string
	StatementDescriptor string
}

type CaptureResponse struct {
	Provider          string
	ProviderPaymentID string
	Status            string
	Amount            int64
	// Fee as reported by the provider; 0 when the provider does not report
	// one, in which case the platform fee schedule applies.
	Fee int64
	Raw json.RawMessage
}

type RefundRequest struct {
	ProviderPaymentID string
	Amount            int64
	Currency          money.Currency
	Reason            string
}

type RefundResponse struct {
	Provider         string
	ProviderRefundID string
	Status           string
	Raw              json.RawMessage
}

type SubscriptionRequest struct {
	PlanRef         string
	CustomerRef     string
	Amount          int64
	Currency        money.Currency
	Interval        domain.BillingInterval
	IntervalCount   int
	TrialDays       int
	PaymentMethodID string
}

type SubscriptionResponse struct {
	Provider               string
	ProviderSubscriptionID string
	Status                 string
	CurrentPeriodEnd       time.Time
	Raw                    json.RawMessage
}

// PaymentGateway is implemented once per external provider. Implementations
// are constructed once per process and must be safe for concurrent reuse.
type PaymentGateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*IntentResponse, error)
	ConfirmIntent(ctx context.Context, providerIntentID string) (*IntentResponse, error)
	CancelIntent(ctx context.Context, providerIntentID string) (*IntentResponse, error)
	CapturePayment(ctx context.Context, req CaptureRequest) (*CaptureResponse, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error)
}

type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResponse, error)
	SwapSubscription(ctx context.Context, providerSubscriptionID, newPlanRef string, amount int64) (*SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) (*SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, providerSubscriptionID, paymentMethodID string) (*SubscriptionResponse, error)
}

// DeclineError reports a capture the provider refused. It is a normal
// business outcome, not an infrastructure failure; callers translate it into
// a decline result instead of an error path.
type DeclineError struct {
	Reason  domain.DeclineReason
	Message string
}

func (e *DeclineError) Error() string { return e.Message }

// Normalized intent statuses shared by all providers.
const (
	StatusRequiresMethod       = "requires_payment_method"
	StatusRequiresConfirmation = "requires_confirmation"
	StatusProcessing           = "processing"
	StatusSucceeded            = "succeeded"
	StatusCancelled            = "cancelled"
)

// IntentStatusFromProvider maps a normalized gateway status string onto the
// intent state machine. Unknown statuses conservatively map to processing.
func IntentStatusFromProvider(status string) domain.IntentStatus {
	switch status {
	case StatusRequiresMethod:
		return domain.IntentStatusRequiresMethod
	case StatusRequiresConfirmation:
		return domain.IntentStatusRequiresConfirmation
	case StatusSucceeded:
		return domain.IntentStatusSucceeded
	case StatusCancelled:
		return domain.IntentStatusCancelled
	default:
		return domain.IntentStatusProcessing
	}
}
