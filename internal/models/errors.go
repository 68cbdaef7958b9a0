package models

import "errors"

// Ledger and session errors. Handlers map these to HTTP statuses; the
// services return them unwrapped so callers can use errors.Is.
var (
	ErrDuplicateUsername    = errors.New("username already registered")
	ErrDeviceLimitReached   = errors.New("device already has a registered account")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNotFound             = errors.New("user not found")
	ErrInsufficientPoints   = errors.New("insufficient points")
	ErrInvalidCode          = errors.New("invalid promo code")
	ErrAlreadyRedeemed      = errors.New("promo code already redeemed")
	ErrAlreadyClaimedToday  = errors.New("daily reward already claimed today")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInterpretationFailed = errors.New("interpretation failed")

	ErrEmptyQuestion  = errors.New("question must not be empty")
	ErrWrongPhase     = errors.New("action not allowed in current phase")
	ErrOutOfOrder     = errors.New("cards must be revealed in order")
	ErrSpreadNotReady = errors.New("spread is not fully revealed")
)
