// Package server provides the thin JSON-over-HTTP transport in front of the
// search pipelines.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/at-ishikawa/naverdict/internal/search"
)

// SearchHandler exposes the search operations. The payloads it writes are
// produced by the pipelines; the handler itself only decodes requests.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Register mounts all routes on the mux.
func (h *SearchHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search", h.handleSearch)
	mux.HandleFunc("POST /api/v1/batch-search", h.handleBatchSearch)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("POST /api/v1/cache/clear", h.handleClearCache)
}

type searchRequest struct {
	Word     string `json:"word"`
	DictType string `json:"dict_type"`
}

type batchSearchRequest struct {
	Words            []string `json:"words"`
	DictType         string   `json:"dict_type"`
	ReturnCachedJSON bool     `json:"return_cached_json"`
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var request searchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request body: %w", err))
		return
	}
	if request.DictType == "" {
		request.DictType = "ko-zh"
	}
	writePayload(w, h.service.SearchWord(r.Context(), request.Word, request.DictType))
}

func (h *SearchHandler) handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	var request batchSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request body: %w", err))
		return
	}
	if request.DictType == "" {
		request.DictType = "ko-zh"
	}
	writePayload(w, h.service.BatchSearchWords(r.Context(), request.Words, request.DictType, request.ReturnCachedJSON))
}

func (h *SearchHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writePayload(w, h.service.StatsJSON())
}

func (h *SearchHandler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()
	writePayload(w, `{"success": true}`)
}

// writePayload writes an already-serialized response. Pipeline failures are
// structured payloads, not HTTP errors, so the status is always 200 here.
func writePayload(w http.ResponseWriter, payload string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(payload))
}

func writeBadRequest(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	body, _ := json.Marshal(map[string]any{
		"success":    false,
		"error":      err.Error(),
		"error_type": search.ErrorTypeValidation,
	})
	_, _ = w.Write(body)
}
