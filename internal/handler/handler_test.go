package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/ruyi-tarot/tarot-service/internal/catalog"
	"github.com/ruyi-tarot/tarot-service/internal/config"
	"github.com/ruyi-tarot/tarot-service/internal/draw"
	"github.com/ruyi-tarot/tarot-service/internal/handler"
	"github.com/ruyi-tarot/tarot-service/internal/oracle"
	"github.com/ruyi-tarot/tarot-service/internal/random"
	"github.com/ruyi-tarot/tarot-service/internal/repository"
	"github.com/ruyi-tarot/tarot-service/internal/service"
	"github.com/ruyi-tarot/tarot-service/internal/session"
	"github.com/sirupsen/logrus"
)

// upstreamReading is what the fake oracle upstream returns for every
// chat-completions call.
const upstreamReading = `{
	"summary": "A turning point.",
	"cardInterpretations": [
		{"cardId": "x", "coreMeaning": "m", "contextAnalysis": "c", "actionAdvice": "a"}
	],
	"synthesis": "Overall flow."
}`

type testEnv struct {
	server *httptest.Server
}

func newTestEnv(t *testing.T, upstreamStatus int) *testEnv {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if upstreamStatus != http.StatusOK {
			http.Error(w, "upstream down", upstreamStatus)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": upstreamReading}},
			},
		})
		w.Write(body)
	}))
	t.Cleanup(upstream.Close)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{
		AdminUsername:  "admin",
		AdminPassword:  "secret",
		JWTSecret:      "test-secret",
		DeepSeekURL:    upstream.URL,
		DeepSeekAPIKey: "test-key",
		DeepSeekModel:  "deepseek-chat",
		OracleTimeout:  2 * time.Second,
		SpreadSize:     6,
	}

	repo, err := repository.NewFileRepository(filepath.Join(t.TempDir(), "data.json"), log)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.SeedPromos(service.SeedPromoCodes); err != nil {
		t.Fatalf("failed to seed promos: %v", err)
	}

	ledger := service.NewLedgerService(repo, log, cfg)
	oracleClient := oracle.NewClient(cfg, log)
	engine := draw.NewEngine(catalog.New(), random.NewCryptoTimeSource())
	sessions := session.NewManager(engine, ledger, oracleClient, log, cfg.SpreadSize, 0, 0)
	h := handler.NewHandler(ledger, sessions, oracleClient, log)

	r := mux.NewRouter()
	h.RegisterRoutes(r, cfg)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv}
}

func (e *testEnv) post(t *testing.T, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func (e *testEnv) get(t *testing.T, path, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func register(t *testing.T, env *testEnv, username, device string) {
	t.Helper()
	resp, body := env.post(t, "/auth/register", map[string]string{
		"username": username, "password": "password", "deviceId": device,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register failed: %d %v", resp.StatusCode, body)
	}
}

func TestRegisterFlow(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	resp, body := env.post(t, "/auth/register", map[string]string{
		"username": "alice", "password": "password", "deviceId": "device-1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["points"].(float64) != 2 {
		t.Errorf("expected welcome bonus 2, got %v", body["points"])
	}

	// Same username, new device.
	resp, _ = env.post(t, "/auth/register", map[string]string{
		"username": "alice", "password": "password", "deviceId": "device-2",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("duplicate username: expected 400, got %d", resp.StatusCode)
	}

	// New username, same device.
	resp, _ = env.post(t, "/auth/register", map[string]string{
		"username": "bob", "password": "password", "deviceId": "device-1",
	}, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("device limit: expected 403, got %d", resp.StatusCode)
	}

	// Missing fields.
	resp, _ = env.post(t, "/auth/register", map[string]string{"username": "carol"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", resp.StatusCode)
	}
}

func TestLoginAndSync(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	resp, body := env.post(t, "/auth/login", map[string]string{
		"username": "alice", "password": "password",
	}, "")
	if resp.StatusCode != http.StatusOK || body["points"].(float64) != 2 {
		t.Errorf("login: status %d body %v", resp.StatusCode, body)
	}

	resp, _ = env.post(t, "/auth/login", map[string]string{
		"username": "alice", "password": "wrong",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", resp.StatusCode)
	}

	resp, _ = env.post(t, "/user/sync", map[string]string{"username": "ghost"}, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user sync: expected 404, got %d", resp.StatusCode)
	}
}

func TestDeductUntilInsufficient(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	for i, want := range []float64{1, 0} {
		resp, body := env.post(t, "/user/deduct", map[string]string{"username": "alice"}, "")
		if resp.StatusCode != http.StatusOK || body["points"].(float64) != want {
			t.Fatalf("deduct %d: status %d body %v", i, resp.StatusCode, body)
		}
	}

	resp, _ := env.post(t, "/user/deduct", map[string]string{"username": "alice"}, "")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", resp.StatusCode)
	}
}

func TestRedeemAndZenerReward(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	resp, body := env.post(t, "/user/redeem", map[string]string{"username": "alice", "code": "VIP2025"}, "")
	if resp.StatusCode != http.StatusOK || body["added"].(float64) != 5 || body["points"].(float64) != 7 {
		t.Errorf("redeem: status %d body %v", resp.StatusCode, body)
	}
	resp, _ = env.post(t, "/user/redeem", map[string]string{"username": "alice", "code": "VIP2025"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second redeem: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = env.post(t, "/user/redeem", map[string]string{"username": "alice", "code": "NOPE"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid code: expected 400, got %d", resp.StatusCode)
	}

	resp, body = env.post(t, "/user/zener-reward", map[string]string{"username": "alice"}, "")
	if resp.StatusCode != http.StatusOK || body["points"].(float64) != 8 {
		t.Errorf("zener reward: status %d body %v", resp.StatusCode, body)
	}
	resp, _ = env.post(t, "/user/zener-reward", map[string]string{"username": "alice"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second claim same day: expected 400, got %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	resp, _ := env.post(t, "/admin/login", map[string]string{"username": "admin", "password": "wrong"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad admin login: expected 401, got %d", resp.StatusCode)
	}

	resp, body := env.post(t, "/admin/login", map[string]string{"username": "admin", "password": "secret"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin login failed: %d %v", resp.StatusCode, body)
	}
	token := body["token"].(string)

	// No token.
	resp, _ = env.get(t, "/admin/stats", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("stats without token: expected 403, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("rejection Content-Type: expected application/json, got %q", ct)
	}
	resp, _ = env.post(t, "/admin/add-points", map[string]string{"targetUsername": "alice", "amount": "5"}, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("add-points without token: expected 403, got %d", resp.StatusCode)
	}

	// With token.
	resp, body = env.post(t, "/admin/add-points", map[string]string{"targetUsername": "alice", "amount": "5"}, token)
	if resp.StatusCode != http.StatusOK || body["newBalance"].(float64) != 7 {
		t.Errorf("add-points: status %d body %v", resp.StatusCode, body)
	}
	resp, _ = env.post(t, "/admin/add-points", map[string]string{"targetUsername": "alice", "amount": "many"}, token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid amount: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = env.post(t, "/admin/add-points", map[string]string{"targetUsername": "ghost", "amount": "5"}, token)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown target: expected 404, got %d", resp.StatusCode)
	}

	resp, body = env.get(t, "/admin/stats", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
	if body["totalUsers"].(float64) != 1 || body["totalPointsInCirculation"].(float64) != 7 {
		t.Errorf("unexpected stats: %v", body)
	}
}

func TestOracleProxy(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	resp, body := env.post(t, "/oracle/interpret", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
	}
	if body["content"] == "" {
		t.Error("expected content in proxy response")
	}

	resp, _ = env.post(t, "/oracle/interpret", map[string]any{}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing messages: expected 400, got %d", resp.StatusCode)
	}
}

func TestOracleProxyUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusServiceUnavailable)

	resp, _ := env.post(t, "/oracle/interpret", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	}, "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	resp, _ := env.post(t, "/session/start", map[string]string{
		"username": "alice", "question": "Will it rain?",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session start: expected 200, got %d", resp.StatusCode)
	}

	// Zero delays: poll until the draw lands.
	waitForPhase(t, env, "alice", "reading")

	// Out-of-order reveal is rejected.
	resp, _ = env.post(t, "/session/reveal", map[string]any{"username": "alice", "index": 3}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("out-of-order reveal: expected 409, got %d", resp.StatusCode)
	}

	for i := 0; i < 6; i++ {
		resp, body := env.post(t, "/session/reveal", map[string]any{"username": "alice", "index": i}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reveal %d: %d %v", i, resp.StatusCode, body)
		}
	}

	waitForPhase(t, env, "alice", "result")

	_, body := env.get(t, "/session/state?username=alice", "")
	result, ok := body["result"].(map[string]any)
	if !ok || result["summary"] != "A turning point." {
		t.Errorf("expected interpretation in result, got %v", body["result"])
	}

	// Points were charged for the reading.
	_, sync := env.post(t, "/user/sync", map[string]string{"username": "alice"}, "")
	if sync["points"].(float64) != 1 {
		t.Errorf("expected 1 point after reading, got %v", sync["points"])
	}

	// New reading resets to input.
	env.post(t, "/session/reset", map[string]string{"username": "alice"}, "")
	_, body = env.get(t, "/session/state?username=alice", "")
	if body["phase"] != "input" {
		t.Errorf("expected input after reset, got %v", body["phase"])
	}
}

func TestSessionStartGuards(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	register(t, env, "alice", "device-1")

	resp, _ := env.post(t, "/session/start", map[string]string{"username": "alice", "question": "  "}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("empty question: expected 409, got %d", resp.StatusCode)
	}

	// Drain the balance, then starting a reading is rejected with 402.
	env.post(t, "/user/deduct", map[string]string{"username": "alice"}, "")
	env.post(t, "/user/deduct", map[string]string{"username": "alice"}, "")
	resp, _ = env.post(t, "/session/start", map[string]string{"username": "alice", "question": "Will it rain?"}, "")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("insufficient points: expected 402, got %d", resp.StatusCode)
	}
	_, body := env.get(t, "/session/state?username=alice", "")
	if body["phase"] != "input" {
		t.Errorf("expected phase input after rejected start, got %v", body["phase"])
	}
}

func waitForPhase(t *testing.T, env *testEnv, username, phase string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := env.get(t, fmt.Sprintf("/session/state?username=%s", username), "")
		if body["phase"] == phase {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session for %s never reached phase %s", username, phase)
}
