package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/api"
	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/credentials"
	"github.com/DimBertolami/latestbot/internal/engine"
	"github.com/DimBertolami/latestbot/internal/exchange/exchangetest"
	"github.com/DimBertolami/latestbot/internal/export"
	"github.com/DimBertolami/latestbot/internal/model"
	"github.com/DimBertolami/latestbot/internal/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	router     http.Handler
	hub        *api.Hub
	engine     *engine.Engine
	statusFile string
}

// newTestEnv wires an engine without API keys, so prices are synthetic
// (BTCUSDT resolves to 46700).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvAPISecret, "")

	dir := t.TempDir()
	cfg := config.NewStore(filepath.Join(dir, "trading_config.json"), config.Default())
	creds := credentials.NewManager(cfg, exchangetest.Dialer(exchangetest.NewConn(), ""))
	prices := pricing.NewSource(creds, pricing.WithJitter(func() float64 { return 0.5 }))

	hub := api.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	eng := engine.New(cfg, prices, creds, engine.WithNotifier(hub))
	t.Cleanup(func() {
		eng.Stop()
		cancel()
	})

	statusFile := filepath.Join(dir, "data", "paper_trading_status.json")
	h := api.NewHandler(eng, export.NewWriter(statusFile))
	return &testEnv{router: api.NewRouter(h, hub), hub: hub, engine: eng, statusFile: statusFile}
}

func (e *testEnv) command(t *testing.T, body string) (*httptest.ResponseRecorder, api.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/trading/paper", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp api.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w, resp
}

func (e *testEnv) get(t *testing.T, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w
}

func TestCommand_StartBuySell(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.command(t, `{"command":"start"}`)
	if w.Code != http.StatusBadRequest || resp.Message != "API keys not configured" {
		t.Fatalf("start without keys: %d %+v", w.Code, resp)
	}

	w, resp = env.command(t, `{"command":"start","allow_synthetic":true}`)
	if w.Code != http.StatusOK || resp.Status != "success" || resp.Message != "Trading started" {
		t.Fatalf("start: %d %+v", w.Code, resp)
	}

	w, resp = env.command(t, `{"command":"buy"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("buy: %d %+v", w.Code, resp)
	}
	if resp.Message != "Bought 0.001 BTCUSDT at 46700" {
		t.Errorf("unexpected buy message %q", resp.Message)
	}

	w, resp = env.command(t, `{"command":"sell","symbol":"btcusdt","quantity":"0.0005"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sell: %d %+v", w.Code, resp)
	}

	w, resp = env.command(t, `{"command":"sell","quantity":1}`)
	if w.Code != http.StatusBadRequest || resp.Status != "error" {
		t.Fatalf("oversell should be rejected: %d %+v", w.Code, resp)
	}
	if !strings.Contains(resp.Message, "insufficient holdings") {
		t.Errorf("unexpected rejection %q", resp.Message)
	}

	if !env.engine.Holdings()["BTCUSDT"].Equal(d("0.0005")) {
		t.Errorf("expected 0.0005 BTC held, got %v", env.engine.Holdings())
	}
}

func TestCommand_WritesStatusFile(t *testing.T) {
	env := newTestEnv(t)
	env.command(t, `{"command":"start","allow_synthetic":true}`)
	env.command(t, `{"command":"buy","quantity":0.1}`)

	data, err := os.ReadFile(env.statusFile)
	if err != nil {
		t.Fatalf("status file not written: %v", err)
	}
	var st model.Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode status file: %v", err)
	}
	if !st.IsRunning {
		t.Error("expected is_running in status file")
	}
	if !st.Balance.Equal(d("5330")) {
		t.Errorf("expected balance 5330, got %s", st.Balance)
	}
	if len(st.TradeHistory) != 1 {
		t.Errorf("expected 1 trade in status file, got %d", len(st.TradeHistory))
	}
}

func TestCommand_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty body", ``, "No JSON data provided"},
		{"malformed", `{"command":`, "No JSON data provided"},
		{"missing command", `{"symbol":"BTCUSDT"}`, "No command specified"},
		{"unknown command", `{"command":"dance"}`, "Unknown command: dance"},
		{"not running", `{"command":"buy"}`, "Trading is not running"},
		{"incomplete keys", `{"command":"api","key":"k"}`, "API key and secret are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.command(t, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if resp.Status != "error" || resp.Message != tt.msg {
				t.Errorf("expected error %q, got %+v", tt.msg, resp)
			}
		})
	}
}

func TestCommand_StopAndReset(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.command(t, `{"command":"stop"}`)
	if resp.Message != "Trading already stopped" {
		t.Errorf("unexpected stop message %q", resp.Message)
	}

	env.command(t, `{"command":"start","allow_synthetic":true}`)
	env.command(t, `{"command":"buy","quantity":0.1}`)

	w, resp := env.command(t, `{"command":"reset"}`)
	if w.Code != http.StatusOK || resp.Message != "Account reset" {
		t.Fatalf("reset: %d %+v", w.Code, resp)
	}
	if env.engine.Running() {
		t.Error("reset should stop trading")
	}
	if !env.engine.Balance().Equal(d("10000")) {
		t.Errorf("expected balance 10000 after reset, got %s", env.engine.Balance())
	}
}

func TestCommand_UpdateKeys(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.command(t, `{"command":"api","key":"k","secret":"s"}`)
	if w.Code != http.StatusOK || resp.Message != "API keys updated" {
		t.Fatalf("api: %d %+v", w.Code, resp)
	}

	var out struct {
		Status string          `json:"status"`
		Data   model.APIStatus `json:"data"`
	}
	env.get(t, "/trading/api-status", &out)
	if !out.Data.KeysConfigured || !out.Data.APIWorking {
		t.Errorf("expected configured and working, got %+v", out.Data)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)

	var out struct {
		Status string          `json:"status"`
		Data   api.ShortStatus `json:"data"`
	}
	w := env.get(t, "/trading/paper", &out)
	if w.Code != http.StatusOK || out.Status != "success" {
		t.Fatalf("summary: %d %+v", w.Code, out)
	}
	if out.Data.IsRunning || out.Data.State != engine.StateStopped || out.Data.Mode != "paper" {
		t.Errorf("unexpected summary %+v", out.Data)
	}
	if !out.Data.Balance.Equal(d("10000")) || !out.Data.PortfolioValue.Equal(d("10000")) {
		t.Errorf("expected 10000 balance and value, got %+v", out.Data)
	}
}

func TestStatusDocument(t *testing.T) {
	env := newTestEnv(t)

	var st model.Status
	w := env.get(t, "/trading/paper_trading_status.json", &st)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if st.BaseCurrency != "USDT" || st.TradeHistory == nil || st.Holdings == nil {
		t.Errorf("unexpected status document %+v", st)
	}
	if _, err := os.Stat(env.statusFile); err != nil {
		t.Errorf("status file not written: %v", err)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.command(t, `{"command":"start","allow_synthetic":true}`)
	for i := 0; i < 3; i++ {
		env.command(t, `{"command":"buy"}`)
	}

	var out struct {
		Data []model.Trade `json:"data"`
	}
	env.get(t, "/trading/history?limit=2", &out)
	if len(out.Data) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(out.Data))
	}

	w := env.get(t, "/trading/history?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(t, "/trading/history", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"data":[]`)) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/trading/paper", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/trading/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res := env.engine.Start(context.Background(), engine.StartOptions{AllowSynthetic: true})
	if !res.OK {
		t.Fatalf("start: %s", res.Message)
	}
	if ok, msg := env.engine.Buy(context.Background(), "BTCUSDT", d("0.01")); !ok {
		t.Fatalf("buy: %s", msg)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var seen []string
	for len(seen) < 2 {
		var ev engine.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen = append(seen, ev.Type)
		if ev.Type == engine.EventTradeExecuted && (ev.Trade == nil || ev.Trade.Symbol != "BTCUSDT") {
			t.Errorf("trade event without trade: %+v", ev)
		}
	}
	if seen[0] != engine.EventStarted || seen[1] != engine.EventTradeExecuted {
		t.Errorf("unexpected event order %v", seen)
	}
}
