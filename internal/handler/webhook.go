package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type webhookIngestor interface {
	Ingest(ctx context.Context, provider, signature string, body []byte) error
}

type WebhookHandler struct {
	ingestor webhookIngestor
}

func NewWebhookHandler(ingestor webhookIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Receive accepts a provider callback. 200 acknowledges both fresh and
// deduplicated deliveries; signature failures are 401 and handler failures
// bubble up as non-2xx so the provider redelivers.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	provider := r.PathValue("provider")
	signature := r.Header.Get("X-Webhook-Signature")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.ingestor.Ingest(r.Context(), provider, signature, body); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			RespondAppError(w, ErrInvalidSignature, nil)
		case errors.Is(err, domain.ErrUnknownWebhookProvider):
			RespondAppError(w, ErrUnknownProvider, nil)
		case errors.Is(err, domain.ErrInvalidRequest):
			RespondAppError(w, ErrInvalidRequest, nil)
		default:
			log.Error("webhook processing failed", "provider", provider, "error", err)
			RespondAppError(w, ErrInternalError, nil)
		}
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}
