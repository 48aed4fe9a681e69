package services

import "errors"

var (
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUnauthorized         = errors.New("authentication required")
	ErrForbidden            = errors.New("order belongs to another user")
	ErrInvalidAmount        = errors.New("order amount is not payable")
	ErrNotOnlinePayment     = errors.New("order is not an online payment order")
	ErrPaymentSettled       = errors.New("order payment already settled")
	ErrInvalidStatus        = errors.New("unknown payment status")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrDeliveryUnavailable  = errors.New("delivery type unavailable")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
)
