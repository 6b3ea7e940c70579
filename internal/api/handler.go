// Package api exposes the paper engine over HTTP: a command endpoint,
// status and history queries, and a WebSocket event stream.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/engine"
	"github.com/DimBertolami/latestbot/internal/export"
	"github.com/DimBertolami/latestbot/internal/model"
)

const (
	// DefaultSymbol is traded by buy and sell commands that name none.
	DefaultSymbol = "BTCUSDT"
	defaultLimit  = 50
)

// DefaultQuantity is the order size for buy and sell commands without one.
var DefaultQuantity = decimal.RequireFromString("0.001")

// CommandRequest is the JSON body for POST /trading/paper.
type CommandRequest struct {
	Command        string              `json:"command"`
	Symbol         string              `json:"symbol,omitempty"`
	Quantity       decimal.NullDecimal `json:"quantity"`
	Key            string              `json:"key,omitempty"`
	Secret         string              `json:"secret,omitempty"`
	AllowSynthetic bool                `json:"allow_synthetic,omitempty"`
}

// Response is the envelope for every /trading endpoint except the status
// document.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ShortStatus is the payload of GET /trading/paper.
type ShortStatus struct {
	IsRunning      bool            `json:"is_running"`
	State          engine.State    `json:"state"`
	Mode           string          `json:"mode"`
	Balance        decimal.Decimal `json:"balance"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// Handler serves the trading endpoints.
type Handler struct {
	engine   *engine.Engine
	exporter *export.Writer
}

// NewHandler creates a handler. exporter may be nil.
func NewHandler(eng *engine.Engine, exporter *export.Writer) *Handler {
	return &Handler{engine: eng, exporter: exporter}
}

// Command handles POST /trading/paper.
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "No JSON data provided", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		writeError(w, "No command specified", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var res engine.Result
	switch req.Command {
	case "start":
		res = h.engine.Start(ctx, engine.StartOptions{AllowSynthetic: req.AllowSynthetic})
	case "stop":
		res = h.engine.Stop()
	case "reset":
		res = h.engine.Reset(ctx)
	case "buy", "sell":
		sym := req.Symbol
		if sym == "" {
			sym = DefaultSymbol
		}
		qty := DefaultQuantity
		if req.Quantity.Valid {
			qty = req.Quantity.Decimal
		}
		res.OK, res.Message = h.engine.PlaceOrder(ctx, sym, req.Command, qty)
	case "api":
		res = h.engine.UpdateCredentials(ctx, req.Key, req.Secret)
	default:
		writeError(w, fmt.Sprintf("Unknown command: %s", req.Command), http.StatusBadRequest)
		return
	}

	h.export(r)

	if !res.OK {
		writeError(w, res.Message, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: res.Message})
}

// Summary handles GET /trading/paper.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status(r.Context())
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: ShortStatus{
		IsRunning:      st.IsRunning,
		State:          h.engine.State(),
		Mode:           st.Mode,
		Balance:        st.Balance,
		PortfolioValue: st.PortfolioValue,
		LastUpdated:    st.LastUpdated,
	}})
}

// APIStatus handles GET /trading/api-status.
func (h *Handler) APIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: h.engine.APIStatus(r.Context())})
}

// StatusDocument handles GET /trading/paper_trading_status.json. The snapshot
// file is refreshed before the full status is served.
func (h *Handler) StatusDocument(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status(r.Context())
	if err := h.exporter.Write(st); err != nil {
		slog.Error("status export failed", "path", h.exporter.Path(), "err", err)
	}
	writeJSON(w, http.StatusOK, st)
}

// History handles GET /trading/history?limit=N.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := h.engine.History(r.Context(), limit)
	if err != nil {
		slog.Error("history query failed", "err", err)
		writeError(w, "failed to load trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: trades})
}

func (h *Handler) export(r *http.Request) {
	if h.exporter == nil {
		return
	}
	if err := h.exporter.Write(h.engine.Status(r.Context())); err != nil {
		slog.Error("status export failed", "path", h.exporter.Path(), "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, Response{Status: "error", Message: message})
}
