package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/event"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/gateway/fakegw"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/repository"
	"github.com/pressplay/payments/internal/service/intent"
	"github.com/pressplay/payments/internal/service/payment"
	"github.com/pressplay/payments/internal/service/subscription"
	"github.com/pressplay/payments/internal/service/webhook"
	"github.com/pressplay/payments/internal/testutil"
)

const testSecret = "whsec_test"

type stack struct {
	db       *sql.DB
	ingestor *webhook.Ingestor
	intents  *intent.Service
	payments *payment.Service
}

func setupIngestor(t *testing.T, db *sql.DB) *stack {
	t.Helper()

	gw := fakegw.New()
	manager := gateway.NewManager(fakegw.Name)
	manager.Register(gw)

	bus := event.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := &config.Config{
		IntentTTLMinutes:     60,
		GatewayTimeoutS:      5,
		FeeBps:               1000,
		GraceDays:            7,
		WebhookReplayWindowS: 300,
		WebhookSecrets:       map[string]string{fakegw.Name: testSecret},
	}

	intentRepo := repository.NewIntentRepository(db)
	intents := intent.NewService(intentRepo, manager, bus, cfg)
	payments := payment.NewService(
		db,
		intentRepo,
		repository.NewPaymentRepository(db),
		repository.NewRefundRepository(db),
		repository.NewLedgerRepository(db),
		manager,
		bus,
		cfg,
	)
	subs := subscription.NewService(db, repository.NewSubscriptionRepository(db), manager, bus, cfg)

	return &stack{
		db:       db,
		ingestor: webhook.NewIngestor(repository.NewWebhookRepository(db), intents, payments, subs, cfg),
		intents:  intents,
		payments: payments,
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func payload(t *testing.T, eventName, deliveryID string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event":  eventName,
		"id":     deliveryID,
		"object": object,
	})
	require.NoError(t, err)
	return body
}

func processingIntent(t *testing.T, s *stack) *domain.PaymentIntent {
	t.Helper()

	payeeID := testutil.CreatorID
	i, err := s.intents.CreateIntent(context.Background(), intent.CreateRequest{
		PayableKind: domain.SubjectPost,
		PayableID:   testutil.PostID,
		Amount:      1500,
		Currency:    money.USD,
		PayerID:     testutil.PayerID,
		PayeeID:     &payeeID,
		Type:        domain.IntentTypeOneTime,
		MethodHint:  "pm_card_visa",
	})
	require.NoError(t, err)

	i, err = s.intents.ConfirmIntent(context.Background(), i.ID)
	require.NoError(t, err)
	require.NotNil(t, i.ProviderIntentID)
	return i
}

func webhookStatus(t *testing.T, db *sql.DB, provider, signature string) domain.WebhookStatus {
	t.Helper()

	var status domain.WebhookStatus
	err := db.QueryRow(
		`SELECT status FROM payment_webhooks WHERE provider = $1 AND signature = $2`,
		provider, signature,
	).Scan(&status)
	require.NoError(t, err)
	return status
}

func TestIngest_PaymentSucceeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	i := processingIntent(t, s)
	body := payload(t, "payment_intent.succeeded", "evt_1", map[string]any{
		"id":         *i.ProviderIntentID,
		"payment_id": "fake_ch_1",
		"amount":     1500,
		"fee":        100,
	})
	signature := sign(body)

	err := s.ingestor.Ingest(ctx, fakegw.Name, signature, body)
	require.NoError(t, err)

	stored, err := s.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, stored.Status)
	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))

	assert.Equal(t, domain.WebhookStatusProcessed, webhookStatus(t, db, fakegw.Name, signature))
}

func TestIngest_DuplicateInsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	i := processingIntent(t, s)
	body := payload(t, "payment_intent.succeeded", "evt_1", map[string]any{
		"id": *i.ProviderIntentID, "payment_id": "fake_ch_1", "amount": 1500,
	})
	signature := sign(body)

	for n := 0; n < 3; n++ {
		require.NoError(t, s.ingestor.Ingest(ctx, fakegw.Name, signature, body))
	}

	// One side effect and one stored row despite redelivery.
	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))

	var rows int
	err := db.QueryRow(`SELECT COUNT(*) FROM payment_webhooks WHERE provider = $1`, fakegw.Name).Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestIngest_DuplicateOutsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	i := processingIntent(t, s)
	body := payload(t, "payment_intent.succeeded", "evt_1", map[string]any{
		"id": *i.ProviderIntentID, "payment_id": "fake_ch_1", "amount": 1500,
	})
	signature := sign(body)

	require.NoError(t, s.ingestor.Ingest(ctx, fakegw.Name, signature, body))

	// Age the stored row past the replay window, then redeliver.
	_, err := db.Exec(
		`UPDATE payment_webhooks SET created_at = created_at - interval '10 minutes' WHERE provider = $1`,
		fakegw.Name,
	)
	require.NoError(t, err)

	require.NoError(t, s.ingestor.Ingest(ctx, fakegw.Name, signature, body))

	// The old row is retired, the redelivery stored fresh; the settle replay
	// only advances the existing payment, it never charges twice.
	var rows int
	err = db.QueryRow(`SELECT COUNT(*) FROM payment_webhooks WHERE provider = $1`, fakegw.Name).Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, domain.WebhookStatusProcessed, webhookStatus(t, db, fakegw.Name, signature))

	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))
}

func TestIngest_InvalidSignature(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	body := payload(t, "payment_intent.succeeded", "evt_1", map[string]any{"id": "pi_x"})

	tests := []struct {
		name      string
		provider  string
		signature string
		wantErr   error
	}{
		{name: "wrong signature", provider: fakegw.Name, signature: "deadbeef", wantErr: domain.ErrInvalidSignature},
		{name: "missing signature", provider: fakegw.Name, signature: "", wantErr: domain.ErrInvalidSignature},
		{name: "unknown provider", provider: "nobody", signature: sign(body), wantErr: domain.ErrUnknownWebhookProvider},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ingestor.Ingest(ctx, tc.provider, tc.signature, body)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Nothing is stored for rejected deliveries.
	var rows int
	err := db.QueryRow(`SELECT COUNT(*) FROM payment_webhooks`).Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestIngest_MalformedBody(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)

	body := []byte(`{"not": "an envelope"}`)
	err := s.ingestor.Ingest(context.Background(), fakegw.Name, sign(body), body)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestIngest_UnhandledEventAcknowledged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)

	body := payload(t, "customer.updated", "evt_1", map[string]any{"id": "cus_1"})
	signature := sign(body)

	err := s.ingestor.Ingest(context.Background(), fakegw.Name, signature, body)
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookStatusProcessed, webhookStatus(t, db, fakegw.Name, signature))
}

func TestIngest_PaymentFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	i := processingIntent(t, s)
	body := payload(t, "payment_intent.payment_failed", "evt_1", map[string]any{
		"id":     *i.ProviderIntentID,
		"reason": "insufficient_funds",
	})

	err := s.ingestor.Ingest(ctx, fakegw.Name, sign(body), body)
	require.NoError(t, err)

	stored, err := s.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusRequiresMethod, stored.Status)
	require.NotNil(t, stored.LastError)
}

func TestIngest_InvoicePaid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, fakegw.Name, 999, domain.SubscriptionStatusPastDue)
	periodStart := sub.CurrentPeriodEnd
	periodEnd := periodStart.AddDate(0, 1, 0)

	body := payload(t, "invoice.paid", "evt_1", map[string]any{
		"id":           *sub.ProviderSubscriptionID,
		"period_start": periodStart.Unix(),
		"period_end":   periodEnd.Unix(),
	})

	err := s.ingestor.Ingest(ctx, fakegw.Name, sign(body), body)
	require.NoError(t, err)

	var status domain.SubscriptionStatus
	err = db.QueryRow(`SELECT status FROM payment_subscriptions WHERE id = $1`, sub.ID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, status)
}

func TestIngest_InvoicePaymentFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, fakegw.Name, 999, domain.SubscriptionStatusActive)
	body := payload(t, "invoice.payment_failed", "evt_1", map[string]any{
		"id": *sub.ProviderSubscriptionID,
	})

	err := s.ingestor.Ingest(ctx, fakegw.Name, sign(body), body)
	require.NoError(t, err)

	var status domain.SubscriptionStatus
	err = db.QueryRow(`SELECT status FROM payment_subscriptions WHERE id = $1`, sub.ID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, status)
}

func TestIngest_DispatchFailureMarksRowFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := setupIngestor(t, db)

	// References an intent the engine has never seen.
	body := payload(t, "payment_intent.succeeded", "evt_1", map[string]any{
		"id": "pi_unknown", "payment_id": "fake_ch_1", "amount": 1500,
	})
	signature := sign(body)

	err := s.ingestor.Ingest(context.Background(), fakegw.Name, signature, body)
	require.Error(t, err)

	assert.Equal(t, domain.WebhookStatusFailed, webhookStatus(t, db, fakegw.Name, signature))
}
