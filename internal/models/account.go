package models

// Account represents a registered user in the ledger.
type Account struct {
	Username      string `json:"username"`
	PasswordHash  string `json:"-"`
	Points        int    `json:"points"`
	DeviceID      string `json:"deviceId"`
	LastZenerDate string `json:"lastZenerDate"` // ISO date string, "" if never claimed
}

// PromoCode is a redeemable code. UsedBy enforces at most one redemption
// per account per code.
type PromoCode struct {
	Value  int      `json:"value"`
	UsedBy []string `json:"usedBy"`
}

// Redeemed reports whether username has already used this code.
func (p *PromoCode) Redeemed(username string) bool {
	for _, u := range p.UsedBy {
		if u == username {
			return true
		}
	}
	return false
}

// LedgerStats is the aggregate view served to admins.
type LedgerStats struct {
	TotalUsers               int    `json:"totalUsers"`
	TotalPointsInCirculation int    `json:"totalPointsInCirculation"`
	ActiveCoupons            int    `json:"activeCoupons"`
	ServerStatus             string `json:"serverStatus"`
}
