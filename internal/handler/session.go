package handler

import (
	"net/http"

	"github.com/ruyi-tarot/tarot-service/internal/models"
)

// SessionStart begins a reading: validates the question, charges one
// point and schedules the shuffle.
func (h *Handler) SessionStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string                    `json:"username"`
		Question string                    `json:"question"`
		Deck     models.DeckSystem         `json:"deck"`
		Mode     models.InterpretationMode `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}
	if req.Deck == "" {
		req.Deck = models.DeckWaite
	}
	if req.Mode == "" {
		req.Mode = models.ModeSancai
	}

	if err := h.sessions.Start(req.Username, req.Question, req.Deck, req.Mode); err != nil {
		h.mapLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.State(req.Username))
}

// SessionReveal flips the next card. Out-of-order reveals are rejected
// with no state change.
func (h *Handler) SessionReveal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Index    int    `json:"index"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if _, err := h.sessions.Reveal(req.Username, req.Index); err != nil {
		h.mapLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.State(req.Username))
}

// SessionInterpret retries interpretation after an oracle failure.
func (h *Handler) SessionInterpret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.sessions.Interpret(req.Username); err != nil {
		h.mapLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.State(req.Username))
}

// SessionState returns a snapshot of the user's session.
func (h *Handler) SessionState(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Missing username")
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.State(username))
}

// SessionReset returns the session to input and cancels any pending
// shuffle, so navigating away never leaves a stale draw behind.
func (h *Handler) SessionReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	h.sessions.Reset(req.Username)
	writeJSON(w, http.StatusOK, h.sessions.State(req.Username))
}
