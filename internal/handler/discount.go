package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/service/discount"
)

type discountService interface {
	Apply(ctx context.Context, code string, planID *string, price money.Money) (*discount.Result, error)
}

type DiscountHandler struct {
	discounts discountService
}

func NewDiscountHandler(discounts discountService) *DiscountHandler {
	return &DiscountHandler{discounts: discounts}
}

type applyDiscountRequest struct {
	Code     string  `json:"code"`
	PlanID   *string `json:"plan_id,omitempty"`
	Amount   int64   `json:"amount"`
	Currency string  `json:"currency"`
}

func (r applyDiscountRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Code == "" {
		errs = append(errs, FieldError{Field: "code", Message: "required"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if !money.Supported(money.Currency(r.Currency)) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}

	return errs
}

type discountDTO struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	Amount     int64  `json:"amount"`
	FinalPrice int64  `json:"final_price"`
}

func (h *DiscountHandler) Apply(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	price := money.MustNew(req.Amount, money.Currency(req.Currency))
	result, err := h.discounts.Apply(r.Context(), req.Code, req.PlanID, price)
	if err != nil {
		log.Warn("discount validation failed", "code", req.Code, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, discountDTO{
		Valid:      result.Valid,
		Reason:     result.Reason,
		Amount:     result.Amount.Amount(),
		FinalPrice: result.FinalPrice.Amount(),
	})
}
