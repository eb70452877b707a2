package searchbridge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thinkpixel/searchbridge/remote"
)

// RegisterHTTP mounts the collaborator-facing REST surface on the router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/ping", s.handlePing)
	r.Post("/bulk-process", s.handleBulkProcess)
	r.Post("/skip-search", s.handleSkipSearch)
	r.Post("/skip-update", s.handleSkipUpdate)
	r.Post("/search", s.handleSearch)
	r.Get("/validate", s.handleValidate)
	r.Post("/exchange", s.handleExchange)
	r.Post("/refresh-key", s.handleRefreshKey)
	r.Get("/debug", s.handleDebug)
}

// handlePing relays the gateway health check. The raw gateway body passes
// through untouched so the operator sees exactly what the service answered.
func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	body, err := s.gateway.Ping(r.Context())
	if err != nil {
		s.logger.Error("ping failed", "error", err)
		writeError(w, http.StatusInternalServerError, "gateway unreachable")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

type bulkProcessResponse struct {
	Success          bool `json:"success"`
	ProcessedCount   int  `json:"processed_count"`
	UnprocessedCount int  `json:"unprocessed_count"`
}

// handleBulkProcess runs one batch through the orchestrator. Callers poll
// it until unprocessed_count reaches zero.
func (s *Service) handleBulkProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processed, err := s.sync.ProcessBatch(ctx, s.batchItems)
	if err != nil {
		s.logger.Error("bulk process failed", "error", err)
		writeError(w, http.StatusInternalServerError, "batch processing failed")
		return
	}
	remaining, err := s.store.CountUnprocessed(ctx)
	if err != nil {
		s.logger.Error("bulk process count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "batch processing failed")
		return
	}
	writeJSON(w, http.StatusOK, bulkProcessResponse{
		Success:          true,
		ProcessedCount:   len(processed),
		UnprocessedCount: remaining,
	})
}

type skipSearchRequest struct {
	Query  string `json:"query"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// handleSkipSearch lists tracked items with their skip state, filtered by a
// title keyword. Keywords below the minimum query length degrade to the
// match-everything listing rather than erroring.
func (s *Service) handleSkipSearch(w http.ResponseWriter, r *http.Request) {
	var req skipSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := req.Query
	if len([]rune(query)) < s.minQueryLen {
		query = ""
	}
	page, err := s.store.SkipStatusByKeyword(r.Context(), s.repo, query, req.Limit, req.Offset)
	if err != nil {
		s.logger.Error("skip search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type skipUpdateRequest struct {
	IDs  []int64 `json:"ids"`
	Skip bool    `json:"skip"`
}

func (s *Service) handleSkipUpdate(w http.ResponseWriter, r *http.Request) {
	var req skipUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if err := s.UpdateSkip(r.Context(), req.IDs, req.Skip); err != nil {
		s.logger.Error("skip update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := s.Search(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("search failed", "query", req.Query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = json.RawMessage("[]")
	}
	writeRaw(w, http.StatusOK, results)
}

func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	info, err := s.Validation(r.Context())
	if err != nil {
		s.logger.Error("validation info failed", "error", err)
		writeError(w, http.StatusInternalServerError, "validation unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type exchangeRequest struct {
	APIKey string `json:"api_key"`
	Nonce  string `json:"nonce"`
}

type exchangeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Service) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ExchangeKey(r.Context(), req.APIKey, req.Nonce); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, remote.ErrAuth) {
			status = http.StatusForbidden
		} else if errors.Is(err, remote.ErrValidation) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("key exchange rejected", "error", err)
		writeJSON(w, status, exchangeResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{Success: true, Message: "key stored"})
}

func (s *Service) handleRefreshKey(w http.ResponseWriter, r *http.Request) {
	if err := s.RefreshKey(r.Context()); err != nil {
		s.logger.Error("key refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "key refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) handleDebug(w http.ResponseWriter, r *http.Request) {
	report := s.Debug(r.Context())
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
