package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/sirupsen/logrus"
)

// userRecord is the persisted form of an account. The password hash is
// stored here rather than on models.Account, which never serializes it.
type userRecord struct {
	Password      string `json:"password"`
	Points        int    `json:"points"`
	DeviceID      string `json:"deviceId"`
	LastZenerDate string `json:"lastZenerDate"`
}

// ledgerState is the single durable record: the whole ledger, written
// back on every mutation. Promo redemption state is persisted alongside
// the accounts so a restart cannot reset "already redeemed" tracking.
type ledgerState struct {
	Users   map[string]*userRecord       `json:"users"`
	Devices []string                     `json:"devices"`
	Promos  map[string]*models.PromoCode `json:"promos"`
}

// FileRepository keeps the ledger in memory and writes the full state
// to a JSON file before acknowledging any mutation. A single mutex
// serializes all mutations, which also serializes them per account.
type FileRepository struct {
	mu    sync.Mutex
	path  string
	state ledgerState
	log   *logrus.Logger
}

// NewFileRepository loads the ledger file at path, creating an empty
// ledger if the file does not exist yet.
func NewFileRepository(path string, log *logrus.Logger) (*FileRepository, error) {
	r := &FileRepository{
		path: path,
		log:  log,
		state: ledgerState{
			Users:  make(map[string]*userRecord),
			Promos: make(map[string]*models.PromoCode),
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	if err := json.Unmarshal(raw, &r.state); err != nil {
		return nil, fmt.Errorf("failed to parse ledger file: %w", err)
	}
	if r.state.Users == nil {
		r.state.Users = make(map[string]*userRecord)
	}
	if r.state.Promos == nil {
		r.state.Promos = make(map[string]*models.PromoCode)
	}
	log.Infof("Loaded ledger: %d users, %d devices", len(r.state.Users), len(r.state.Devices))
	return r, nil
}

// save writes the full ledger state through to disk. Callers hold mu.
func (r *FileRepository) save() error {
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func (r *FileRepository) deviceRegistered(deviceID string) bool {
	for _, d := range r.state.Devices {
		if d == deviceID {
			return true
		}
	}
	return false
}

func toAccount(username string, rec *userRecord) models.Account {
	return models.Account{
		Username:      username,
		PasswordHash:  rec.Password,
		Points:        rec.Points,
		DeviceID:      rec.DeviceID,
		LastZenerDate: rec.LastZenerDate,
	}
}

// GetUser returns a snapshot of the account.
func (r *FileRepository) GetUser(username string) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.state.Users[username]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return toAccount(username, rec), nil
}

// CreateUser inserts a new account and appends its device to the
// registry. The registry is append-only.
func (r *FileRepository) CreateUser(account models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.Users[account.Username]; ok {
		return models.ErrDuplicateUsername
	}
	if r.deviceRegistered(account.DeviceID) {
		return models.ErrDeviceLimitReached
	}

	r.state.Users[account.Username] = &userRecord{
		Password:      account.PasswordHash,
		Points:        account.Points,
		DeviceID:      account.DeviceID,
		LastZenerDate: account.LastZenerDate,
	}
	r.state.Devices = append(r.state.Devices, account.DeviceID)
	if err := r.save(); err != nil {
		// Roll back the insertions so state matches disk.
		delete(r.state.Users, account.Username)
		r.state.Devices = r.state.Devices[:len(r.state.Devices)-1]
		return err
	}
	return nil
}

// UpdateUser applies fn to the account under the ledger lock and
// persists only if fn succeeds.
func (r *FileRepository) UpdateUser(username string, fn func(*models.Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.state.Users[username]
	if !ok {
		return models.ErrNotFound
	}

	acct := toAccount(username, rec)
	if err := fn(&acct); err != nil {
		return err
	}

	prev := *rec
	rec.Points = acct.Points
	rec.LastZenerDate = acct.LastZenerDate
	rec.Password = acct.PasswordHash
	if err := r.save(); err != nil {
		// Roll back the in-memory mutation so state matches disk.
		*rec = prev
		return err
	}
	return nil
}

// RedeemPromo credits the code value and records the redemption in one
// atomic step.
func (r *FileRepository) RedeemPromo(username, code string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.state.Users[username]
	if !ok {
		return 0, 0, models.ErrNotFound
	}
	promo, ok := r.state.Promos[code]
	if !ok {
		return 0, 0, models.ErrInvalidCode
	}
	if promo.Redeemed(username) {
		return 0, 0, models.ErrAlreadyRedeemed
	}

	rec.Points += promo.Value
	promo.UsedBy = append(promo.UsedBy, username)
	if err := r.save(); err != nil {
		// Roll back the in-memory mutation so state matches disk.
		rec.Points -= promo.Value
		promo.UsedBy = promo.UsedBy[:len(promo.UsedBy)-1]
		return 0, 0, err
	}
	return promo.Value, rec.Points, nil
}

// SeedPromos inserts codes that are not present yet.
func (r *FileRepository) SeedPromos(codes map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for code, value := range codes {
		if _, ok := r.state.Promos[code]; ok {
			continue
		}
		r.state.Promos[code] = &models.PromoCode{Value: value}
		changed = true
	}
	if !changed {
		return nil
	}
	return r.save()
}

// Stats returns the aggregate ledger view.
func (r *FileRepository) Stats() (models.LedgerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, rec := range r.state.Users {
		total += rec.Points
	}
	return models.LedgerStats{
		TotalUsers:               len(r.state.Users),
		TotalPointsInCirculation: total,
		ActiveCoupons:            len(r.state.Promos),
		ServerStatus:             "Online (Persistent)",
	}, nil
}

// Snapshot writes a timestamped backup copy of the ledger file. Used by
// the nightly cron job.
func (r *FileRepository) Snapshot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger snapshot: %w", err)
	}
	path := fmt.Sprintf("%s.%s.bak", r.path, time.Now().Format("20060102"))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger snapshot: %w", err)
	}
	r.log.Infof("Ledger snapshot written: %s", path)
	return nil
}
