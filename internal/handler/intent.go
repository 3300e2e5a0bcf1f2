package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/service/intent"
)

type intentService interface {
	CreateIntent(ctx context.Context, req intent.CreateRequest) (*domain.PaymentIntent, error)
	GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	CancelIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
}

type IntentHandler struct {
	intents intentService
}

func NewIntentHandler(intents intentService) *IntentHandler {
	return &IntentHandler{intents: intents}
}

type createIntentRequest struct {
	PayableKind string            `json:"payable_kind"`
	PayableID   string            `json:"payable_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	PayerID     string            `json:"payer_id"`
	PayeeID     string            `json:"payee_id,omitempty"`
	Type        string            `json:"type"`
	Method      string            `json:"method,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Gateway     string            `json:"gateway,omitempty"`
}

func (r createIntentRequest) Validate() []FieldError {
	var errs []FieldError

	if !domain.SubjectKind(r.PayableKind).Valid() {
		errs = append(errs, FieldError{Field: "payable_kind", Message: "must be a known subject kind"})
	}
	if _, err := uuid.Parse(r.PayableID); err != nil {
		errs = append(errs, FieldError{Field: "payable_id", Message: "must be a valid UUID"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if !money.Supported(money.Currency(r.Currency)) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}
	if _, err := uuid.Parse(r.PayerID); err != nil {
		errs = append(errs, FieldError{Field: "payer_id", Message: "must be a valid UUID"})
	}
	if r.PayeeID != "" {
		if _, err := uuid.Parse(r.PayeeID); err != nil {
			errs = append(errs, FieldError{Field: "payee_id", Message: "must be a valid UUID"})
		}
	}
	switch domain.IntentType(r.Type) {
	case domain.IntentTypeOneTime, domain.IntentTypeRecurring, domain.IntentTypeAdjustment:
	default:
		errs = append(errs, FieldError{Field: "type", Message: "must be one_time, recurring, or adjustment"})
	}

	return errs
}

type intentDTO struct {
	ID           uuid.UUID  `json:"id"`
	PayableKind  string     `json:"payable_kind"`
	PayableID    uuid.UUID  `json:"payable_id"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	PayerID      uuid.UUID  `json:"payer_id"`
	PayeeID      *uuid.UUID `json:"payee_id,omitempty"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Provider     string     `json:"provider"`
	ClientSecret *string    `json:"client_secret,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toIntentDTO(i *domain.PaymentIntent) intentDTO {
	return intentDTO{
		ID:           i.ID,
		PayableKind:  string(i.PayableKind),
		PayableID:    i.PayableID,
		Amount:       i.Amount,
		Currency:     string(i.Currency),
		PayerID:      i.PayerID,
		PayeeID:      i.PayeeID,
		Type:         string(i.Type),
		Status:       string(i.Status),
		Provider:     i.Provider,
		ClientSecret: i.ClientSecret,
		LastError:    i.LastError,
		ExpiresAt:    i.ExpiresAt,
		CreatedAt:    i.CreatedAt,
	}
}

func (h *IntentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	svcReq := intent.CreateRequest{
		PayableKind: domain.SubjectKind(req.PayableKind),
		PayableID:   uuid.MustParse(req.PayableID),
		Amount:      req.Amount,
		Currency:    money.Currency(req.Currency),
		PayerID:     uuid.MustParse(req.PayerID),
		Type:        domain.IntentType(req.Type),
		MethodHint:  req.Method,
		Metadata:    req.Metadata,
		Gateway:     req.Gateway,
	}
	if req.PayeeID != "" {
		payeeID := uuid.MustParse(req.PayeeID)
		svcReq.PayeeID = &payeeID
	}

	i, err := h.intents.CreateIntent(r.Context(), svcReq)
	if err != nil {
		log.Warn("intent creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toIntentDTO(i))
}

func (h *IntentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	i, err := h.intents.GetIntent(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toIntentDTO(i))
}

func (h *IntentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	i, err := h.intents.ConfirmIntent(r.Context(), id)
	if err != nil {
		log.Warn("intent confirmation failed", "intent_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toIntentDTO(i))
}

func (h *IntentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	i, err := h.intents.CancelIntent(r.Context(), id)
	if err != nil {
		log.Warn("intent cancellation failed", "intent_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toIntentDTO(i))
}
