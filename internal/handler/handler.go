package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ruyi-tarot/tarot-service/internal/config"
	"github.com/ruyi-tarot/tarot-service/internal/middleware"
	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/ruyi-tarot/tarot-service/internal/oracle"
	"github.com/ruyi-tarot/tarot-service/internal/service"
	"github.com/ruyi-tarot/tarot-service/internal/session"
	"github.com/sirupsen/logrus"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	ledger   *service.LedgerService
	sessions *session.Manager
	oracle   *oracle.Client
	log      *logrus.Logger
}

// NewHandler initializes a new handler.
func NewHandler(ledger *service.LedgerService, sessions *session.Manager, oracleClient *oracle.Client, log *logrus.Logger) *Handler {
	return &Handler{ledger: ledger, sessions: sessions, oracle: oracleClient, log: log}
}

// RegisterRoutes attaches all routes to the router. Admin routes sit
// behind the JWT middleware.
func (h *Handler) RegisterRoutes(r *mux.Router, cfg *config.Config) {
	r.HandleFunc("/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")

	r.HandleFunc("/user/sync", h.Sync).Methods("POST")
	r.HandleFunc("/user/deduct", h.Deduct).Methods("POST")
	r.HandleFunc("/user/redeem", h.Redeem).Methods("POST")
	r.HandleFunc("/user/zener-reward", h.ZenerReward).Methods("POST")

	r.HandleFunc("/session/start", h.SessionStart).Methods("POST")
	r.HandleFunc("/session/reveal", h.SessionReveal).Methods("POST")
	r.HandleFunc("/session/interpret", h.SessionInterpret).Methods("POST")
	r.HandleFunc("/session/state", h.SessionState).Methods("GET")
	r.HandleFunc("/session/reset", h.SessionReset).Methods("POST")

	r.HandleFunc("/oracle/interpret", h.OracleInterpret).Methods("POST")

	r.HandleFunc("/admin/login", h.AdminLogin).Methods("POST")
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminAuthMiddleware(cfg))
	adminRouter.HandleFunc("/add-points", h.AdminAddPoints).Methods("POST")
	adminRouter.HandleFunc("/stats", h.AdminStats).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// mapLedgerError translates the error taxonomy into HTTP statuses,
// preserving the original API's codes (402 for insufficient points,
// 403 for the device limit).
func (h *Handler) mapLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, models.ErrDuplicateUsername):
		writeError(w, http.StatusBadRequest, "该账号已被注册 (Username taken)")
	case errors.Is(err, models.ErrDeviceLimitReached):
		writeError(w, http.StatusForbidden, "此设备已注册过账号，无法再次注册 (Device limit reached)")
	case errors.Is(err, models.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "账号或密码错误 (Invalid credentials)")
	case errors.Is(err, models.ErrInsufficientPoints):
		writeError(w, http.StatusPaymentRequired, "积分不足，请联系如懿充值")
	case errors.Is(err, models.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "无效的兑换码")
	case errors.Is(err, models.ErrAlreadyRedeemed):
		writeError(w, http.StatusBadRequest, "此兑换码已使用")
	case errors.Is(err, models.ErrAlreadyClaimedToday):
		writeError(w, http.StatusBadRequest, "今日奖励已领取")
	case errors.Is(err, models.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, models.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, models.ErrEmptyQuestion),
		errors.Is(err, models.ErrWrongPhase),
		errors.Is(err, models.ErrOutOfOrder),
		errors.Is(err, models.ErrSpreadNotReady):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
