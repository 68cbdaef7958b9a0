package handler

import (
	"net/http"

	"github.com/ruyi-tarot/tarot-service/internal/oracle"
)

// OracleInterpret proxies raw chat messages to the upstream model so
// clients never hold the API key. Upstream failures surface as 502.
func (h *Handler) OracleInterpret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages  []oracle.Message `json:"messages"`
		MaxTokens int              `json:"maxTokens"`
		JSONMode  bool             `json:"jsonMode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Missing messages")
		return
	}

	content, err := h.oracle.Chat(r.Context(), req.Messages, req.MaxTokens, req.JSONMode)
	if err != nil {
		h.log.Warnf("Oracle proxy call failed: %v", err)
		writeError(w, http.StatusBadGateway, "Upstream oracle failure")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"content": content})
}
