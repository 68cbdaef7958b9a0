package handler

import (
	"net/http"

	"github.com/ruyi-tarot/tarot-service/internal/service"
)

// Register handles user registration with the device-uniqueness check.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		DeviceID string `json:"deviceId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	acct, err := h.ledger.Register(req.Username, req.Password, req.DeviceID)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": acct.Username,
		"points":   acct.Points,
	})
}

// Login handles user authentication.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	acct, err := h.ledger.Login(req.Username, req.Password)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"username":      acct.Username,
		"points":        acct.Points,
		"lastZenerDate": acct.LastZenerDate,
	})
}

// Sync returns the current balance and daily-claim date.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	acct, err := h.ledger.Sync(req.Username)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"points":        acct.Points,
		"lastZenerDate": acct.LastZenerDate,
	})
}

// Deduct charges one reading.
func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.ledger.Deduct(req.Username, service.ReadingCost)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "points": balance})
}

// Redeem applies a promo code to the account.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	added, balance, err := h.ledger.Redeem(req.Username, req.Code)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"points":  balance,
		"added":   added,
	})
}

// ZenerReward grants the once-per-calendar-day reward.
func (h *Handler) ZenerReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.ledger.ClaimDailyReward(req.Username)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "points": balance})
}
