package repository

import "github.com/ruyi-tarot/tarot-service/internal/models"

// Repository is the ledger storage abstraction. Every mutating method
// durably persists its result before returning success, and serializes
// concurrent mutations of the same account so read-modify-write cycles
// never lose an update.
type Repository interface {
	// GetUser returns a snapshot of the account, or models.ErrNotFound.
	GetUser(username string) (models.Account, error)

	// CreateUser inserts a new account and registers its device.
	// Fails with models.ErrDuplicateUsername or models.ErrDeviceLimitReached.
	CreateUser(account models.Account) error

	// UpdateUser applies fn to the stored account atomically. If fn
	// returns an error the account is left unchanged and the error is
	// returned as-is. Fails with models.ErrNotFound for unknown users.
	UpdateUser(username string, fn func(*models.Account) error) error

	// RedeemPromo credits the code's value to the account and records
	// the redemption, atomically. Fails with models.ErrNotFound,
	// models.ErrInvalidCode or models.ErrAlreadyRedeemed.
	RedeemPromo(username, code string) (added, balance int, err error)

	// SeedPromos inserts any promo codes not already present. Existing
	// codes keep their redemption history.
	SeedPromos(codes map[string]int) error

	// Stats returns the aggregate ledger view.
	Stats() (models.LedgerStats, error)
}
