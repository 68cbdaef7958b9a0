package repository

import (
	"database/sql"
	"fmt"

	"github.com/ruyi-tarot/tarot-service/internal/models"
)

// PostgresRepository stores the ledger in Postgres. Per-account
// serialization is enforced at the storage layer with row locks, so it
// remains correct when the service is scaled horizontally.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository initializes the repository and ensures the
// schema exists.
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	r := &PostgresRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tarot_users (
			username        TEXT PRIMARY KEY,
			password_hash   TEXT NOT NULL,
			points          INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
			device_id       TEXT NOT NULL,
			last_zener_date TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS tarot_devices (
			device_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS tarot_promo_codes (
			code  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tarot_promo_redemptions (
			code     TEXT NOT NULL REFERENCES tarot_promo_codes(code),
			username TEXT NOT NULL REFERENCES tarot_users(username),
			PRIMARY KEY (code, username)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// GetUser returns a snapshot of the account.
func (r *PostgresRepository) GetUser(username string) (models.Account, error) {
	acct := models.Account{Username: username}
	query := `
		SELECT password_hash, points, device_id, last_zener_date
		FROM tarot_users
		WHERE username = $1`
	err := r.db.QueryRow(query, username).
		Scan(&acct.PasswordHash, &acct.Points, &acct.DeviceID, &acct.LastZenerDate)
	if err == sql.ErrNoRows {
		return models.Account{}, models.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to find user: %w", err)
	}
	return acct, nil
}

// CreateUser inserts the account and registers its device in one
// transaction.
func (r *PostgresRepository) CreateUser(account models.Account) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM tarot_users WHERE username = $1)`, account.Username).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return models.ErrDuplicateUsername
	}
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM tarot_devices WHERE device_id = $1)`, account.DeviceID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check device: %w", err)
	}
	if exists {
		return models.ErrDeviceLimitReached
	}

	_, err = tx.Exec(`
		INSERT INTO tarot_users (username, password_hash, points, device_id, last_zener_date)
		VALUES ($1, $2, $3, $4, $5)`,
		account.Username, account.PasswordHash, account.Points, account.DeviceID, account.LastZenerDate)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO tarot_devices (device_id) VALUES ($1)`, account.DeviceID); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return tx.Commit()
}

// UpdateUser locks the account row, applies fn, and commits only if fn
// succeeds.
func (r *PostgresRepository) UpdateUser(username string, fn func(*models.Account) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	acct := models.Account{Username: username}
	err = tx.QueryRow(`
		SELECT password_hash, points, device_id, last_zener_date
		FROM tarot_users
		WHERE username = $1
		FOR UPDATE`, username).
		Scan(&acct.PasswordHash, &acct.Points, &acct.DeviceID, &acct.LastZenerDate)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user row: %w", err)
	}

	if err := fn(&acct); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE tarot_users
		SET password_hash = $2, points = $3, last_zener_date = $4
		WHERE username = $1`,
		username, acct.PasswordHash, acct.Points, acct.LastZenerDate)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return tx.Commit()
}

// RedeemPromo performs the credit and redemption record in one
// transaction; the primary key on (code, username) backstops the
// at-most-once guarantee.
func (r *PostgresRepository) RedeemPromo(username, code string) (int, int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var points int
	err = tx.QueryRow(`SELECT points FROM tarot_users WHERE username = $1 FOR UPDATE`, username).Scan(&points)
	if err == sql.ErrNoRows {
		return 0, 0, models.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock user row: %w", err)
	}

	var value int
	err = tx.QueryRow(`SELECT value FROM tarot_promo_codes WHERE code = $1`, code).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, 0, models.ErrInvalidCode
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to find promo code: %w", err)
	}

	var used bool
	err = tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM tarot_promo_redemptions WHERE code = $1 AND username = $2)`, code, username).Scan(&used)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check redemption: %w", err)
	}
	if used {
		return 0, 0, models.ErrAlreadyRedeemed
	}

	if _, err := tx.Exec(`INSERT INTO tarot_promo_redemptions (code, username) VALUES ($1, $2)`, code, username); err != nil {
		return 0, 0, fmt.Errorf("failed to record redemption: %w", err)
	}
	newBalance := points + value
	if _, err := tx.Exec(`UPDATE tarot_users SET points = $2 WHERE username = $1`, username, newBalance); err != nil {
		return 0, 0, fmt.Errorf("failed to credit points: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return value, newBalance, nil
}

// SeedPromos inserts codes that are not present yet.
func (r *PostgresRepository) SeedPromos(codes map[string]int) error {
	for code, value := range codes {
		_, err := r.db.Exec(`
			INSERT INTO tarot_promo_codes (code, value)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING`, code, value)
		if err != nil {
			return fmt.Errorf("failed to seed promo code %s: %w", code, err)
		}
	}
	return nil
}

// Stats returns the aggregate ledger view.
func (r *PostgresRepository) Stats() (models.LedgerStats, error) {
	stats := models.LedgerStats{ServerStatus: "Online (Persistent)"}
	err := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(points), 0) FROM tarot_users`).
		Scan(&stats.TotalUsers, &stats.TotalPointsInCirculation)
	if err != nil {
		return models.LedgerStats{}, fmt.Errorf("failed to aggregate users: %w", err)
	}
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM tarot_promo_codes`).Scan(&stats.ActiveCoupons); err != nil {
		return models.LedgerStats{}, fmt.Errorf("failed to count promo codes: %w", err)
	}
	return stats, nil
}
