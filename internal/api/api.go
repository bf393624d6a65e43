package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"stockadvisor/pkg/advisor"
)

// NewRouter builds the HTTP API router.
func NewRouter(core *advisor.Core, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(requestLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{core: core}

	r.Get("/api/health", h.health)
	r.Get("/api/status", h.status)

	// Analysis
	r.Post("/api/analyze", h.analyze)
	r.Get("/api/analyses", h.recentAnalyses)

	// Cost ledger
	r.Get("/api/cost-ledger", h.costLedger)
	r.Post("/api/cost-ledger/reset", h.resetCostLedger)

	return r
}

type handler struct {
	core *advisor.Core
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	setLoggedError(w, "", message)
	writeJSON(w, status, map[string]string{"error": message})
}
