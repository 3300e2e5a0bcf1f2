package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/service/payment"
)

type paymentService interface {
	Capture(ctx context.Context, req payment.CaptureRequest) (*payment.CaptureOutcome, error)
	Refund(ctx context.Context, req payment.RefundRequest) (*domain.PaymentRefund, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type captureRequest struct {
	PaymentMethodID     string `json:"payment_method_id"`
	StatementDescriptor string `json:"statement_descriptor,omitempty"`
}

type paymentDTO struct {
	ID                uuid.UUID  `json:"id"`
	IntentID          uuid.UUID  `json:"intent_id"`
	PayableKind       string     `json:"payable_kind"`
	PayableID         uuid.UUID  `json:"payable_id"`
	Amount            int64      `json:"amount"`
	Fee               int64      `json:"fee"`
	Net               int64      `json:"net"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	CreatedAt         time.Time  `json:"created_at"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
}

type declineDTO struct {
	Declined bool   `json:"declined"`
	Reason   string `json:"reason"`
	Message  string `json:"message,omitempty"`
}

type refundDTO struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:                p.ID,
		IntentID:          p.IntentID,
		PayableKind:       string(p.PayableKind),
		PayableID:         p.PayableID,
		Amount:            p.Amount,
		Fee:               p.Fee,
		Net:               p.Net,
		Currency:          string(p.Currency),
		Status:            string(p.Status),
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		CreatedAt:         p.CreatedAt,
		SettledAt:         p.SettledAt,
	}
}

func toRefundDTO(rf *domain.PaymentRefund) refundDTO {
	return refundDTO{
		ID:        rf.ID,
		PaymentID: rf.PaymentID,
		Amount:    rf.Amount,
		Currency:  string(rf.Currency),
		Status:    string(rf.Status),
		Reason:    rf.Reason,
		CreatedAt: rf.CreatedAt,
	}
}

// Capture settles an intent. A decline is a 402 with the normalized reason,
// not an error envelope: the charge attempt itself worked.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	intentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	outcome, err := h.payments.Capture(r.Context(), payment.CaptureRequest{
		IntentID:            intentID,
		PaymentMethodID:     req.PaymentMethodID,
		StatementDescriptor: req.StatementDescriptor,
	})
	if err != nil {
		log.Warn("capture failed", "intent_id", intentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	if outcome.Declined {
		RespondSuccess(w, http.StatusPaymentRequired, declineDTO{
			Declined: true,
			Reason:   string(outcome.Reason),
			Message:  outcome.Message,
		})
		return
	}

	RespondSuccess(w, http.StatusCreated, toPaymentDTO(outcome.Payment))
}

type refundRequest struct {
	Amount int64   `json:"amount"`
	Reason *string `json:"reason,omitempty"`
}

func (r refundRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rf, err := h.payments.Refund(r.Context(), payment.RefundRequest{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		log.Warn("refund failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toRefundDTO(rf))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}
