package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentExpired       = errors.New("payment intent expired")
	ErrIntentNotCapturable = errors.New("payment intent not capturable")
	ErrIntentTerminal      = errors.New("payment intent already in terminal state")
	ErrCaptureInProgress   = errors.New("capture already in progress")

	ErrPaymentTerminal        = errors.New("payment already in terminal state")
	ErrRefundExceedsAvailable = errors.New("refund exceeds refundable amount")

	ErrGatewayTimeout = errors.New("gateway timed out")
	ErrGatewayFailure = errors.New("gateway request failed")
	ErrUnknownGateway = errors.New("unknown gateway")

	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrSubscriptionNotResumable = errors.New("subscription not resumable")
	ErrSubscriptionTerminal     = errors.New("subscription already in terminal state")

	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrUnknownWebhookProvider = errors.New("no webhook secret configured for provider")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrInvalidRequest         = errors.New("invalid request")

	ErrDiscountNotFound = errors.New("discount code not found")
)
