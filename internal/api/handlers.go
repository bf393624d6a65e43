package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stockadvisor/pkg/advisor"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.core.ServiceStatus())
}

type analyzeRequest struct {
	Symbol             string   `json:"symbol"`
	Stages             []string `json:"stages,omitempty"`
	UseGeneration      bool     `json:"use_generation"`
	GenerationProvider string   `json:"generation_provider,omitempty"`
}

func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	options := advisor.AnalyzeOptions{
		UseGeneration:      req.UseGeneration,
		GenerationProvider: req.GenerationProvider,
	}
	for _, s := range req.Stages {
		// "comprehensive" is the explicit spelling of the default.
		if s == "comprehensive" {
			options.Stages = nil
			break
		}
		options.Stages = append(options.Stages, advisor.StageKind(s))
	}

	result, err := h.core.Analyze(r.Context(), req.Symbol, options)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, result)
}

func (h *handler) recentAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses := h.core.RecentAnalyses()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(analyses) {
			analyses = analyses[:limit]
		}
	}
	writeSuccess(w, analyses)
}

func (h *handler) costLedger(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.core.CostLedgerSnapshot())
}

func (h *handler) resetCostLedger(w http.ResponseWriter, r *http.Request) {
	h.core.ResetCostLedger()
	writeSuccessWithMessage(w, "cost ledger reset", h.core.CostLedgerSnapshot())
}
