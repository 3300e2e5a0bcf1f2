package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/repository"
	"github.com/pressplay/payments/internal/testutil"
)

func insertStaleHook(t *testing.T, hooks *repository.WebhookRepository, eventName string) *domain.PaymentWebhook {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"event":  eventName,
		"id":     uuid.NewString(),
		"object": map[string]any{},
	})
	require.NoError(t, err)

	hook := &domain.PaymentWebhook{
		ID:        uuid.New(),
		Provider:  "fake",
		Event:     eventName,
		Signature: "sig_" + uuid.NewString(),
		Payload:   body,
		Status:    domain.WebhookStatusPending,
		CreatedAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	created, err := hooks.InsertIfAbsent(context.Background(), hook)
	require.NoError(t, err)
	require.True(t, created)
	return hook
}

func TestReplayBatch_ResolvesStalePendingRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	hooks := repository.NewWebhookRepository(db)
	cfg := &config.Config{WebhookReplayWindowS: 300}

	ingestor := NewIngestor(hooks, nil, nil, nil, cfg)
	replayer := NewReplayer(db, ingestor, time.Minute)

	// Unhandled events dispatch as acknowledged no-ops, so the batch only
	// exercises the claim-dispatch-resolve cycle.
	first := insertStaleHook(t, hooks, "payout.paid")
	second := insertStaleHook(t, hooks, "payout.paid")

	require.NoError(t, replayer.replayBatch(context.Background()))

	for _, hook := range []*domain.PaymentWebhook{first, second} {
		stored, err := hooks.GetByID(context.Background(), hook.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookStatusProcessed, stored.Status)
	}
}

func TestReplayBatch_BadPayloadMarkedFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	hooks := repository.NewWebhookRepository(db)
	cfg := &config.Config{WebhookReplayWindowS: 300}

	ingestor := NewIngestor(hooks, nil, nil, nil, cfg)
	replayer := NewReplayer(db, ingestor, time.Minute)

	// Valid JSONB that no longer decodes as an envelope.
	hook := &domain.PaymentWebhook{
		ID:        uuid.New(),
		Provider:  "fake",
		Event:     "payment_intent.succeeded",
		Signature: "sig_" + uuid.NewString(),
		Payload:   json.RawMessage(`{"event":123}`),
		Status:    domain.WebhookStatusPending,
		CreatedAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	created, err := hooks.InsertIfAbsent(context.Background(), hook)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, replayer.replayBatch(context.Background()))

	stored, err := hooks.GetByID(context.Background(), hook.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
}
