package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
)

type ledgerReader interface {
	GetByOwner(ctx context.Context, owner domain.Subject, ledger string, limit, offset int) ([]domain.LedgerEntry, error)
}

type LedgerHandler struct {
	ledger ledgerReader
}

func NewLedgerHandler(ledger ledgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type ledgerEntryDTO struct {
	ID           uuid.UUID  `json:"id"`
	Ledger       string     `json:"ledger"`
	PaymentID    uuid.UUID  `json:"payment_id"`
	RefundID     *uuid.UUID `json:"refund_id,omitempty"`
	Direction    string     `json:"direction"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	BalanceAfter int64      `json:"balance_after"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Entries lists an owner's postings in occurrence order. The latest row's
// balance_after is the owner's current balance.
func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	kind := domain.SubjectKind(r.PathValue("kind"))
	if !kind.Valid() {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}
	ownerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	ledger := r.URL.Query().Get("ledger")
	if ledger == "" {
		ledger = domain.LedgerRevenue
	}
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)

	entries, err := h.ledger.GetByOwner(r.Context(), domain.Subject{Kind: kind, ID: ownerID}, ledger, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]ledgerEntryDTO, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		dtos = append(dtos, ledgerEntryDTO{
			ID:           e.ID,
			Ledger:       e.Ledger,
			PaymentID:    e.PaymentID,
			RefundID:     e.RefundID,
			Direction:    string(e.Direction),
			Amount:       e.Amount,
			Currency:     string(e.Currency),
			BalanceAfter: e.BalanceAfter,
			OccurredAt:   e.OccurredAt,
		})
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
