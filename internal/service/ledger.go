package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruyi-tarot/tarot-service/internal/config"
	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/ruyi-tarot/tarot-service/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	// WelcomeBonus is credited to every new account.
	WelcomeBonus = 2
	// DailyReward is credited once per calendar day.
	DailyReward = 1
	// ReadingCost is deducted for each reading.
	ReadingCost = 1
)

// SeedPromoCodes are installed on first boot. Redemption history is
// kept in the ledger, so reseeding never resets it.
var SeedPromoCodes = map[string]int{
	"RUYI888":     10,
	"VIP2025":     5,
	"NEWUSER":     1,
	"HYA20061222": 100,
}

// LedgerService handles account and points business logic.
type LedgerService struct {
	repo   repository.Repository
	log    *logrus.Logger
	config *config.Config
	now    func() time.Time
}

// NewLedgerService initializes the ledger service.
func NewLedgerService(repo repository.Repository, log *logrus.Logger, cfg *config.Config) *LedgerService {
	return &LedgerService{repo: repo, log: log, config: cfg, now: time.Now}
}

// today is the server's local calendar date. A claim at 23:59 followed
// by one at 00:01 is two distinct days.
func (s *LedgerService) today() string {
	return s.now().Format("2006-01-02")
}

// Register creates an account with the welcome bonus. Usernames and
// devices are both unique across the ledger.
func (s *LedgerService) Register(username, password, deviceID string) (models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, err
	}

	acct := models.Account{
		Username:     username,
		PasswordHash: string(hash),
		Points:       WelcomeBonus,
		DeviceID:     deviceID,
	}
	if err := s.repo.CreateUser(acct); err != nil {
		return models.Account{}, err
	}

	s.log.Infof("New user registered: %s on device %s", username, deviceID)
	return acct, nil
}

// Login verifies credentials and returns an account snapshot.
func (s *LedgerService) Login(username, password string) (models.Account, error) {
	acct, err := s.repo.GetUser(username)
	if err != nil {
		return models.Account{}, models.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return models.Account{}, models.ErrInvalidCredentials
	}
	s.log.Infof("User logged in: %s", username)
	return acct, nil
}

// Sync returns the current balance and daily-claim date.
func (s *LedgerService) Sync(username string) (models.Account, error) {
	return s.repo.GetUser(username)
}

// Deduct atomically removes amount points. A deduction that would make
// the balance negative is rejected, not clamped.
func (s *LedgerService) Deduct(username string, amount int) (int, error) {
	var balance int
	err := s.repo.UpdateUser(username, func(acct *models.Account) error {
		if acct.Points < amount {
			return models.ErrInsufficientPoints
		}
		acct.Points -= amount
		balance = acct.Points
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Debugf("Deducted %d point(s) from %s, balance %d", amount, username, balance)
	return balance, nil
}

// Refund returns points for a charge whose reading was never delivered.
func (s *LedgerService) Refund(username string, amount int) (int, error) {
	var balance int
	err := s.repo.UpdateUser(username, func(acct *models.Account) error {
		acct.Points += amount
		balance = acct.Points
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("Refunded %d point(s) to %s, balance %d", amount, username, balance)
	return balance, nil
}

// Redeem credits a promo code at most once per account per code.
func (s *LedgerService) Redeem(username, code string) (added, balance int, err error) {
	added, balance, err = s.repo.RedeemPromo(username, code)
	if err != nil {
		return 0, 0, err
	}
	s.log.Infof("User %s redeemed %s for %d points", username, code, added)
	return added, balance, nil
}

// ClaimDailyReward credits the daily reward at most once per server
// calendar day, by date string equality.
func (s *LedgerService) ClaimDailyReward(username string) (int, error) {
	today := s.today()
	var balance int
	err := s.repo.UpdateUser(username, func(acct *models.Account) error {
		if acct.LastZenerDate == today {
			return models.ErrAlreadyClaimedToday
		}
		acct.Points += DailyReward
		acct.LastZenerDate = today
		balance = acct.Points
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("User %s claimed daily reward, balance %d", username, balance)
	return balance, nil
}

// AdminLogin checks the configured admin credentials and issues a
// short-lived JWT session token.
func (s *LedgerService) AdminLogin(username, password string) (string, error) {
	if username != s.config.AdminUsername || password != s.config.AdminPassword {
		return "", models.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", err
	}

	s.log.Infof("Admin logged in: %s", username)
	return tokenString, nil
}

// AddPoints credits (or debits, for negative amounts) a target account.
// amount arrives as a string from the admin form and must parse as an
// integer.
func (s *LedgerService) AddPoints(targetUsername, amount string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(amount))
	if err != nil {
		return 0, models.ErrInvalidAmount
	}

	var balance int
	err = s.repo.UpdateUser(targetUsername, func(acct *models.Account) error {
		if acct.Points+value < 0 {
			return models.ErrInsufficientPoints
		}
		acct.Points += value
		balance = acct.Points
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Infof("Admin added %d points to %s, balance %d", value, targetUsername, balance)
	return balance, nil
}

// Stats returns the aggregate ledger view for the admin dashboard.
func (s *LedgerService) Stats() (models.LedgerStats, error) {
	return s.repo.Stats()
}
