package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
)

type webhookRepo interface {
	InsertIfAbsent(ctx context.Context, hook *domain.PaymentWebhook) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentWebhook, error)
	GetByProviderSignature(ctx context.Context, provider, signature string) (*domain.PaymentWebhook, error)
	Supersede(ctx context.Context, id uuid.UUID) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, handlerErr string) error
	ClaimStalePending(ctx context.Context, tx *sql.Tx, olderThan, limit int) ([]domain.PaymentWebhook, error)
	MarkProcessedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	MarkFailedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, handlerErr string) error
}

type intentEngine interface {
	MarkFailedFromProvider(ctx context.Context, provider, providerIntentID string, reason domain.DeclineReason) error
}

type orchestrator interface {
	SettleFromProvider(ctx context.Context, provider, providerIntentID string, resp *gateway.CaptureResponse) error
}

type subscriptionManager interface {
	MarkRenewed(ctx context.Context, provider, providerSubscriptionID string, periodStart, periodEnd time.Time) error
	HandlePaymentFailed(ctx context.Context, provider, providerSubscriptionID string) error
}

// Ingestor verifies, deduplicates and dispatches provider callbacks. A
// payload is stored before any side effect runs, so a crash mid-dispatch
// leaves a pending row the replayer picks up later.
type Ingestor struct {
	hooks   webhookRepo
	intents intentEngine
	orch    orchestrator
	subs    subscriptionManager
	cfg     *config.Config
	now     func() time.Time
}

func NewIngestor(hooks webhookRepo, intents intentEngine, orch orchestrator, subs subscriptionManager, cfg *config.Config) *Ingestor {
	return &Ingestor{
		hooks:   hooks,
		intents: intents,
		orch:    orch,
		subs:    subs,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// envelope is the provider-agnostic wire shape: event name, delivery id and
// the provider object the event describes.
type envelope struct {
	Event  string          `json:"event"`
	ID     string          `json:"id"`
	Object json.RawMessage `json:"object"`
}

type paymentObject struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Reason    string `json:"reason"`
}

type subscriptionObject struct {
	ID          string `json:"id"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
}

// Ingest processes one delivery. Duplicates inside the replay window are
// acknowledged with no side effects; the same signature arriving after the
// window is treated as a fresh delivery. A dispatch failure marks the stored
// row failed and returns the error so the provider retries.
func (in *Ingestor) Ingest(ctx context.Context, provider, signature string, body []byte) error {
	log := logging.FromContext(ctx)

	if err := in.verify(provider, signature, body); err != nil {
		log.Warn("webhook rejected", "provider", provider, "error", err)
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("Ingest: %w: %s", domain.ErrInvalidRequest, err)
	}
	if env.Event == "" {
		return fmt.Errorf("Ingest: missing event: %w", domain.ErrInvalidRequest)
	}

	hook := &domain.PaymentWebhook{
		ID:        uuid.New(),
		Provider:  provider,
		Event:     env.Event,
		Signature: signature,
		Payload:   json.RawMessage(body),
		Status:    domain.WebhookStatusPending,
		CreatedAt: in.now(),
	}

	created, err := in.hooks.InsertIfAbsent(ctx, hook)
	if err != nil {
		return fmt.Errorf("Ingest: %w", err)
	}
	if !created {
		fresh, err := in.refreshOutsideWindow(ctx, hook)
		if err != nil {
			return fmt.Errorf("Ingest: %w", err)
		}
		if !fresh {
			log.Info("duplicate webhook acknowledged",
				"provider", provider,
				"event", env.Event,
			)
			return nil
		}
	}

	if err := in.dispatch(ctx, provider, env); err != nil {
		if markErr := in.hooks.MarkFailed(ctx, hook.ID, err.Error()); markErr != nil {
			log.Error("failed to record webhook failure", "webhook_id", hook.ID, "error", markErr)
		}
		return fmt.Errorf("Ingest: %s: %w", env.Event, err)
	}

	if err := in.hooks.MarkProcessed(ctx, hook.ID); err != nil {
		return fmt.Errorf("Ingest: %w", err)
	}

	log.Info("webhook processed", "provider", provider, "event", env.Event)
	return nil
}

// Replay re-dispatches a stored delivery by id. Meant for manual recovery of
// failed rows; the delivery was already signature-verified on ingest. Side
// effects downstream are idempotent, so replaying a processed row is safe.
func (in *Ingestor) Replay(ctx context.Context, id uuid.UUID) error {
	hook, err := in.hooks.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("Replay: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(hook.Payload, &env); err != nil {
		return fmt.Errorf("Replay: %w: %s", domain.ErrInvalidRequest, err)
	}

	if err := in.dispatch(ctx, hook.Provider, env); err != nil {
		if markErr := in.hooks.MarkFailed(ctx, hook.ID, err.Error()); markErr != nil {
			logging.FromContext(ctx).Error("failed to record webhook failure",
				"webhook_id", hook.ID, "error", markErr)
		}
		return fmt.Errorf("Replay: %s: %w", env.Event, err)
	}

	return in.hooks.MarkProcessed(ctx, hook.ID)
}

func (in *Ingestor) verify(provider, signature string, body []byte) error {
	secret := in.cfg.WebhookSecret(provider)
	if secret == "" {
		return fmt.Errorf("verify: provider %q: %w", provider, domain.ErrUnknownWebhookProvider)
	}
	if signature == "" {
		return fmt.Errorf("verify: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("verify: %w", domain.ErrInvalidSignature)
	}
	return nil
}

// refreshOutsideWindow decides what a duplicate (provider, signature) insert
// means. Inside the replay window it stays a dedup hit. Outside it the old
// row is retired and the delivery re-stored as fresh; if another worker wins
// that race the delivery counts as a duplicate after all.
func (in *Ingestor) refreshOutsideWindow(ctx context.Context, hook *domain.PaymentWebhook) (bool, error) {
	existing, err := in.hooks.GetByProviderSignature(ctx, hook.Provider, hook.Signature)
	if err != nil {
		return false, err
	}

	window := time.Duration(in.cfg.WebhookReplayWindowS) * time.Second
	if in.now().Sub(existing.CreatedAt) <= window {
		return false, nil
	}

	if err := in.hooks.Supersede(ctx, existing.ID); err != nil {
		return false, err
	}
	created, err := in.hooks.InsertIfAbsent(ctx, hook)
	if err != nil {
		return false, err
	}
	return created, nil
}

func (in *Ingestor) dispatch(ctx context.Context, provider string, env envelope) error {
	log := logging.FromContext(ctx)

	switch env.Event {
	case "payment_intent.succeeded":
		var obj paymentObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		return in.orch.SettleFromProvider(ctx, provider, obj.ID, &gateway.CaptureResponse{
			Provider:          provider,
			ProviderPaymentID: obj.PaymentID,
			Status:            gateway.StatusSucceeded,
			Amount:            obj.Amount,
			Fee:               obj.Fee,
			Raw:               env.Object,
		})

	case "payment_intent.payment_failed":
		var obj paymentObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		reason := domain.DeclineReason(obj.Reason)
		if reason == "" {
			reason = domain.DeclineReasonDeclined
		}
		return in.intents.MarkFailedFromProvider(ctx, provider, obj.ID, reason)

	case "invoice.paid":
		var obj subscriptionObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		return in.subs.MarkRenewed(ctx, provider, obj.ID,
			unixOrZero(obj.PeriodStart), unixOrZero(obj.PeriodEnd))

	case "invoice.payment_failed":
		var obj subscriptionObject
		if err := json.Unmarshal(env.Object, &obj); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		return in.subs.HandlePaymentFailed(ctx, provider, obj.ID)

	default:
		// Unhandled event types are stored and acknowledged so the provider
		// stops redelivering them.
		log.Info("ignoring unhandled webhook event", "provider", provider, "event", env.Event)
		return nil
	}
}

func unixOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
