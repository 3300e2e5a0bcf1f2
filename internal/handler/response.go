package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrIntentNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound),
		errors.Is(err, domain.ErrDiscountNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrIntentNotCapturable),
		errors.Is(err, domain.ErrIntentTerminal):
		appErr = ErrIntentNotCapturable
	case errors.Is(err, domain.ErrIntentExpired):
		appErr = ErrIntentExpired
	case errors.Is(err, domain.ErrCaptureInProgress):
		appErr = ErrCaptureInProgress
	case errors.Is(err, domain.ErrGatewayTimeout):
		appErr = ErrGatewayTimeout
	case errors.Is(err, domain.ErrGatewayFailure):
		appErr = ErrGatewayFailure
	case errors.Is(err, domain.ErrRefundExceedsAvailable):
		appErr = ErrRefundExceedsAvailable
	case errors.Is(err, money.ErrCurrencyMismatch):
		appErr = ErrCurrencyMismatch
	case errors.Is(err, money.ErrUnsupportedCurrency),
		errors.Is(err, domain.ErrInvalidCurrency):
		appErr = ErrInvalidCurrency
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, money.ErrNegativeAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrSubscriptionNotResumable),
		errors.Is(err, domain.ErrSubscriptionTerminal):
		appErr = ErrSubscriptionNotResumable
	case errors.Is(err, domain.ErrUnknownGateway):
		appErr = ErrUnknownGateway
	case errors.Is(err, domain.ErrInvalidSignature):
		appErr = ErrInvalidSignature
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
