package handler

import (
	"fmt"
	"net/http"
)

// AdminLogin checks admin credentials and issues a session token.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.ledger.AdminLogin(req.Username, req.Password)
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
}

// AdminAddPoints manually adjusts a user's balance. amount may arrive
// as a JSON number or string; anything that does not parse as an
// integer is rejected.
func (h *Handler) AdminAddPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetUsername string `json:"targetUsername"`
		Amount         any    `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.ledger.AddPoints(req.TargetUsername, fmt.Sprint(req.Amount))
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("已成功为 %s 添加积分", req.TargetUsername),
		"newBalance": balance,
	})
}

// AdminStats serves the aggregate ledger view.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats()
	if err != nil {
		h.mapLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
