package services

import "errors"

// Business-rule errors. All of them are detected before any mutation, or
// inside a transaction that rolls back completely, so a caller seeing one
// can assume nothing was charged.
var (
	ErrValidation          = errors.New("invalid operation input")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateOperation  = errors.New("a live operation already exists for this card")
	ErrConfirmationExpired = errors.New("final confirmation window has expired")
	ErrForbidden           = errors.New("caller does not own this operation")
	ErrProxyUnavailable    = errors.New("proxy is not active")
	ErrRateLimited         = errors.New("too many operations, try again later")
	ErrDispatchFailure     = errors.New("failed to dispatch job, operation refunded")
	ErrInvalidTransition   = errors.New("transition is not allowed from the current status")
)
