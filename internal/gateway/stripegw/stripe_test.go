package stripegw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		provider stripe.PaymentIntentStatus
		want     string
	}{
		{stripe.PaymentIntentStatusRequiresPaymentMethod, gateway.StatusRequiresMethod},
		{stripe.PaymentIntentStatusRequiresConfirmation, gateway.StatusRequiresConfirmation},
		{stripe.PaymentIntentStatusRequiresAction, gateway.StatusRequiresConfirmation},
		{stripe.PaymentIntentStatusProcessing, gateway.StatusProcessing},
		// Manual capture: an authorized intent must not look settled before
		// the capture call runs.
		{stripe.PaymentIntentStatusRequiresCapture, gateway.StatusProcessing},
		{stripe.PaymentIntentStatusSucceeded, gateway.StatusSucceeded},
		{stripe.PaymentIntentStatusCanceled, gateway.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeStatus(tt.provider))
		})
	}
}

func TestDeclineReason(t *testing.T) {
	tests := []struct {
		name string
		err  *stripe.Error
		want domain.DeclineReason
	}{
		{"expired card", &stripe.Error{Code: stripe.ErrorCodeExpiredCard}, domain.DeclineReasonExpiredMethod},
		{"generic decline", &stripe.Error{Code: stripe.ErrorCodeCardDeclined}, domain.DeclineReasonDeclined},
		{"insufficient funds", &stripe.Error{Code: stripe.ErrorCodeCardDeclined, DeclineCode: stripe.DeclineCodeInsufficientFunds}, domain.DeclineReasonInsufficientFunds},
		{"processing error", &stripe.Error{Code: stripe.ErrorCodeProcessingError}, domain.DeclineReasonProcessingError},
		{"unmapped code", &stripe.Error{Code: stripe.ErrorCodeRateLimit}, domain.DeclineReasonDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, declineReason(tt.err))
		})
	}
}
