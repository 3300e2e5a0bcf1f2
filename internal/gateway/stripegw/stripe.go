package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
)

const Name = "stripe"

// Gateway maps the gateway contract 1:1 onto the Stripe API. Intents are
// created with manual capture so settlement stays under the orchestrator's
// control.
type Gateway struct {
	api *client.API
}

func New(apiKey string) *Gateway {
	var api client.API
	api.Init(apiKey, nil)
	return &Gateway{api: &api}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.IntentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(string(req.Currency))),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if req.PayerRef != "" {
		params.Customer = stripe.String(req.PayerRef)
	}
	if req.MethodHint != "" {
		params.PaymentMethod = stripe.String(req.MethodHint)
	}
	if req.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(req.StatementDescriptor)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapErr("CreateIntent", err)
	}
	return intentResponse(pi), nil
}

func (g *Gateway) ConfirmIntent(ctx context.Context, providerIntentID string) (*gateway.IntentResponse, error) {
	pi, err := g.api.PaymentIntents.Confirm(providerIntentID, &stripe.PaymentIntentConfirmParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapErr("ConfirmIntent", err)
	}
	return intentResponse(pi), nil
}

func (g *Gateway) CancelIntent(ctx context.Context, providerIntentID string) (*gateway.IntentResponse, error) {
	pi, err := g.api.PaymentIntents.Cancel(providerIntentID, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapErr("CancelIntent", err)
	}
	return intentResponse(pi), nil
}

func (g *Gateway) CapturePayment(ctx context.Context, req gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	}
	if req.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(req.StatementDescriptor)
	}

	pi, err := g.api.PaymentIntents.Capture(req.ProviderIntentID, params)
	if err != nil {
		return nil, mapErr("CapturePayment", err)
	}

	raw, _ := json.Marshal(pi)
	resp := &gateway.CaptureResponse{
		Provider:          Name,
		ProviderPaymentID: pi.ID,
		Status:            normalizeStatus(pi.Status),
		Amount:            pi.AmountReceived,
		Raw:               raw,
	}
	if pi.LatestCharge != nil {
		resp.ProviderPaymentID = pi.LatestCharge.ID
	}
	return resp, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResponse, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(req.ProviderPaymentID),
		Amount:        stripe.Int64(req.Amount),
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}

	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, mapErr("RefundPayment", err)
	}

	raw, _ := json.Marshal(ref)
	return &gateway.RefundResponse{
		Provider:         Name,
		ProviderRefundID: ref.ID,
		Status:           string(ref.Status),
		Raw:              raw,
	}, nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, req gateway.SubscriptionRequest) (*gateway.SubscriptionResponse, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(req.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PlanRef)},
		},
	}
	if req.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, mapErr("CreateSubscription", err)
	}
	return subscriptionResponse(sub), nil
}

func (g *Gateway) SwapSubscription(ctx context.Context, providerSubscriptionID, newPlanRef string, amount int64) (*gateway.SubscriptionResponse, error) {
	current, err := g.api.Subscriptions.Get(providerSubscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapErr("SwapSubscription", err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("SwapSubscription: subscription %s has no items: %w", providerSubscriptionID, domain.ErrGatewayFailure)
	}

	// Proration is computed locally; Stripe must not add its own.
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(current.Items.Data[0].ID), Price: stripe.String(newPlanRef)},
		},
		ProrationBehavior: stripe.String("none"),
	}

	sub, err := g.api.Subscriptions.Update(providerSubscriptionID, params)
	if err != nil {
		return nil, mapErr("SwapSubscription", err)
	}
	return subscriptionResponse(sub), nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) (*gateway.SubscriptionResponse, error) {
	if atPeriodEnd {
		sub, err := g.api.Subscriptions.Update(providerSubscriptionID, &stripe.SubscriptionParams{
			Params:            stripe.Params{Context: ctx},
			CancelAtPeriodEnd: stripe.Bool(true),
		})
		if err != nil {
			return nil, mapErr("CancelSubscription", err)
		}
		return subscriptionResponse(sub), nil
	}

	sub, err := g.api.Subscriptions.Cancel(providerSubscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapErr("CancelSubscription", err)
	}
	return subscriptionResponse(sub), nil
}

func (g *Gateway) ResumeSubscription(ctx context.Context, providerSubscriptionID, paymentMethodID string) (*gateway.SubscriptionResponse, error) {
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(paymentMethodID)
	}

	sub, err := g.api.Subscriptions.Update(providerSubscriptionID, params)
	if err != nil {
		return nil, mapErr("ResumeSubscription", err)
	}
	return subscriptionResponse(sub), nil
}

func intentResponse(pi *stripe.PaymentIntent) *gateway.IntentResponse {
	raw, _ := json.Marshal(pi)
	return &gateway.IntentResponse{
		Provider:         Name,
		ProviderIntentID: pi.ID,
		ClientSecret:     pi.ClientSecret,
		Status:           normalizeStatus(pi.Status),
		Raw:              raw,
	}
}

func subscriptionResponse(sub *stripe.Subscription) *gateway.SubscriptionResponse {
	raw, _ := json.Marshal(sub)
	return &gateway.SubscriptionResponse{
		Provider:               Name,
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		CurrentPeriodEnd:       time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		Raw:                    raw,
	}
}

func normalizeStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return gateway.StatusRequiresMethod
	case stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusRequiresAction:
		return gateway.StatusRequiresConfirmation
	case stripe.PaymentIntentStatusSucceeded:
		return gateway.StatusSucceeded
	// Intents are created with manual capture, so requires_capture means the
	// charge is authorized but not yet ours. The local intent stays in flight
	// until an explicit capture settles it.
	case stripe.PaymentIntentStatusRequiresCapture:
		return gateway.StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return gateway.StatusCancelled
	default:
		return gateway.StatusProcessing
	}
}

// mapErr normalizes Stripe failures into the core taxonomy: card errors
// become DeclineError, timeouts become ErrGatewayTimeout, everything else
// wraps ErrGatewayFailure. Raw provider messages stay inside the wrap.
func mapErr(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w", op, domain.ErrGatewayTimeout)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			return &gateway.DeclineError{
				Reason:  declineReason(stripeErr),
				Message: fmt.Sprintf("%s: %s", op, stripeErr.Code),
			}
		}
		return fmt.Errorf("%s: stripe %s: %w", op, stripeErr.Code, domain.ErrGatewayFailure)
	}

	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrGatewayFailure)
}

func declineReason(err *stripe.Error) domain.DeclineReason {
	switch err.Code {
	case stripe.ErrorCodeExpiredCard:
		return domain.DeclineReasonExpiredMethod
	case stripe.ErrorCodeCardDeclined:
		if err.DeclineCode == stripe.DeclineCodeInsufficientFunds {
			return domain.DeclineReasonInsufficientFunds
		}
		return domain.DeclineReasonDeclined
	case stripe.ErrorCodeProcessingError:
		return domain.DeclineReasonProcessingError
	default:
		return domain.DeclineReasonDeclined
	}
}
