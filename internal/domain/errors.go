package domain

import "errors"

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrTicketClosed         = errors.New("ticket is no longer open")
	ErrActorRequired        = errors.New("actor is required")
	ErrReasonRequired       = errors.New("cancellation reason is required")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrNoCostCenter         = errors.New("no active cost center")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrServiceNotFound      = errors.New("service not found")
	ErrNoDraft              = errors.New("no billing draft in progress")
	ErrDraftInProgress      = errors.New("another billing draft is in progress")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNotAuthenticated     = errors.New("no active session")
	ErrInvalidInput         = errors.New("invalid input")
)
