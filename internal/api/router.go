package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DimBertolami/latestbot/internal/metrics"
)

// NewRouter mounts the trading endpoints, health and metrics behind the
// standard middleware stack.
func NewRouter(h *Handler, hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paper-trading"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/trading", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)

		r.Post("/paper", h.Command)
		r.Get("/paper", h.Summary)
		r.Get("/api-status", h.APIStatus)
		r.Get("/paper_trading_status.json", h.StatusDocument)
		r.Get("/history", h.History)
	})
	return r
}

// cors allows the dashboard to call the API from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
