package fakegw

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
)

const Name = "fake"

// Gateway is a deterministic in-memory provider used by tests and local
// development. It is an injected instance, never process-global state, so
// parallel tests get isolated gateways.
type Gateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*fakeIntent
	subs    map[string]*fakeSubscription

	failNext    *gateway.DeclineError
	timeoutNext bool
	errorNext   error
}

type fakeIntent struct {
	id       string
	amount   int64
	currency string
	status   string
	captured bool
}

type fakeSubscription struct {
	id        string
	planRef   string
	status    string
	periodEnd time.Time
}

func New() *Gateway {
	return &Gateway{
		intents: make(map[string]*fakeIntent),
		subs:    make(map[string]*fakeSubscription),
	}
}

func (g *Gateway) Name() string { return Name }

// FailNextCapture scripts a decline for the next capture attempt.
func (g *Gateway) FailNextCapture(reason domain.DeclineReason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = &gateway.DeclineError{Reason: reason, Message: "capture declined"}
}

// TimeoutNextCapture scripts a timeout for the next capture attempt.
func (g *Gateway) TimeoutNextCapture() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeoutNext = true
}

// ErrNext scripts a hard provider failure for the next operation.
func (g *Gateway) ErrNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorNext = err
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%06d", prefix, g.seq)
}

func (g *Gateway) takeScriptedErr() error {
	if g.errorNext != nil {
		err := g.errorNext
		g.errorNext = nil
		return err
	}
	return nil
}

func (g *Gateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.IntentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	status := gateway.StatusRequiresMethod
	if req.MethodHint != "" {
		status = gateway.StatusRequiresConfirmation
	}

	fi := &fakeIntent{
		id:       g.nextID("fake_pi"),
		amount:   req.Amount,
		currency: string(req.Currency),
		status:   status,
	}
	g.intents[fi.id] = fi

	return g.intentResponse(fi), nil
}

func (g *Gateway) ConfirmIntent(_ context.Context, providerIntentID string) (*gateway.IntentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fi, ok := g.intents[providerIntentID]
	if !ok {
		return nil, fmt.Errorf("ConfirmIntent: %s: %w", providerIntentID, domain.ErrIntentNotFound)
	}
	if fi.status != gateway.StatusSucceeded && fi.status != gateway.StatusCancelled {
		fi.status = gateway.StatusProcessing
	}
	return g.intentResponse(fi), nil
}

func (g *Gateway) CancelIntent(_ context.Context, providerIntentID string) (*gateway.IntentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fi, ok := g.intents[providerIntentID]
	if !ok {
		return nil, fmt.Errorf("CancelIntent: %s: %w", providerIntentID, domain.ErrIntentNotFound)
	}
	fi.status = gateway.StatusCancelled
	return g.intentResponse(fi), nil
}

func (g *Gateway) CapturePayment(_ context.Context, req gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timeoutNext {
		g.timeoutNext = false
		return nil, fmt.Errorf("CapturePayment: %w", domain.ErrGatewayTimeout)
	}
	if g.failNext != nil {
		decline := g.failNext
		g.failNext = nil
		return nil, decline
	}
	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fi, ok := g.intents[req.ProviderIntentID]
	if !ok {
		return nil, fmt.Errorf("CapturePayment: %s: %w", req.ProviderIntentID, domain.ErrIntentNotFound)
	}
	if fi.captured {
		return nil, fmt.Errorf("CapturePayment: %s already captured: %w", req.ProviderIntentID, domain.ErrPaymentTerminal)
	}

	fi.status = gateway.StatusSucceeded
	fi.captured = true

	raw, _ := json.Marshal(map[string]any{
		"intent_id": fi.id,
		"amount":    fi.amount,
		"currency":  fi.currency,
	})
	return &gateway.CaptureResponse{
		Provider:          Name,
		ProviderPaymentID: g.nextID("fake_ch"),
		Status:            gateway.StatusSucceeded,
		Amount:            fi.amount,
		Raw:               raw,
	}, nil
}

func (g *Gateway) RefundPayment(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(map[string]any{
		"payment_id": req.ProviderPaymentID,
		"amount":     req.Amount,
	})
	return &gateway.RefundResponse{
		Provider:         Name,
		ProviderRefundID: g.nextID("fake_re"),
		Status:           "succeeded",
		Raw:              raw,
	}, nil
}

func (g *Gateway) CreateSubscription(_ context.Context, req gateway.SubscriptionRequest) (*gateway.SubscriptionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	status := "active"
	if req.TrialDays > 0 {
		status = "trialing"
	}

	fs := &fakeSubscription{
		id:        g.nextID("fake_sub"),
		planRef:   req.PlanRef,
		status:    status,
		periodEnd: time.Now().UTC().AddDate(0, req.IntervalCount, 0),
	}
	g.subs[fs.id] = fs

	return g.subscriptionResponse(fs), nil
}

func (g *Gateway) SwapSubscription(_ context.Context, providerSubscriptionID, newPlanRef string, _ int64) (*gateway.SubscriptionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fs, ok := g.subs[providerSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("SwapSubscription: %s: %w", providerSubscriptionID, domain.ErrSubscriptionNotFound)
	}
	fs.planRef = newPlanRef
	return g.subscriptionResponse(fs), nil
}

func (g *Gateway) CancelSubscription(_ context.Context, providerSubscriptionID string, atPeriodEnd bool) (*gateway.SubscriptionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fs, ok := g.subs[providerSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("CancelSubscription: %s: %w", providerSubscriptionID, domain.ErrSubscriptionNotFound)
	}
	if !atPeriodEnd {
		fs.status = "cancelled"
	}
	return g.subscriptionResponse(fs), nil
}

func (g *Gateway) ResumeSubscription(_ context.Context, providerSubscriptionID, _ string) (*gateway.SubscriptionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeScriptedErr(); err != nil {
		return nil, err
	}

	fs, ok := g.subs[providerSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("ResumeSubscription: %s: %w", providerSubscriptionID, domain.ErrSubscriptionNotFound)
	}
	fs.status = "active"
	return g.subscriptionResponse(fs), nil
}

func (g *Gateway) intentResponse(fi *fakeIntent) *gateway.IntentResponse {
	raw, _ := json.Marshal(map[string]any{
		"id":     fi.id,
		"amount": fi.amount,
		"status": fi.status,
	})
	return &gateway.IntentResponse{
		Provider:         Name,
		ProviderIntentID: fi.id,
		ClientSecret:     fi.id + "_secret",
		Status:           fi.status,
		Raw:              raw,
	}
}

func (g *Gateway) subscriptionResponse(fs *fakeSubscription) *gateway.SubscriptionResponse {
	raw, _ := json.Marshal(map[string]any{
		"id":     fs.id,
		"plan":   fs.planRef,
		"status": fs.status,
	})
	return &gateway.SubscriptionResponse{
		Provider:               Name,
		ProviderSubscriptionID: fs.id,
		Status:                 fs.status,
		CurrentPeriodEnd:       fs.periodEnd,
		Raw:                    raw,
	}
}
