package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidSignature = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrUnknownProvider  = &AppError{http.StatusUnauthorized, "UNKNOWN_PROVIDER", "No webhook secret configured for provider"}
	ErrUnknownGateway   = &AppError{http.StatusBadRequest, "UNKNOWN_GATEWAY", "No such payment gateway is configured"}

	ErrIntentNotCapturable = &AppError{http.StatusConflict, "INTENT_NOT_CAPTURABLE", "Payment intent cannot be captured"}
	ErrIntentExpired       = &AppError{http.StatusConflict, "INTENT_EXPIRED", "Payment intent has expired"}
	ErrCaptureInProgress   = &AppError{http.StatusConflict, "CAPTURE_IN_PROGRESS", "Another capture is in progress for this intent"}
	ErrGatewayTimeout      = &AppError{http.StatusBadGateway, "GATEWAY_TIMEOUT", "Payment gateway timed out"}
	ErrGatewayFailure      = &AppError{http.StatusBadGateway, "GATEWAY_FAILURE", "Payment gateway request failed"}

	ErrRefundExceedsAvailable = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_AVAILABLE", "Refund exceeds refundable amount"}
	ErrCurrencyMismatch       = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency        = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}

	ErrSubscriptionNotResumable = &AppError{http.StatusConflict, "SUBSCRIPTION_NOT_RESUMABLE", "Subscription cannot be resumed from its current state"}
)
