// Package handlers provides HTTP handlers for the flowerstory API.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/pinkittys/flowerstory/internal/domain"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/recommend"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// RecommendHandler handles recommendation and extraction requests.
type RecommendHandler struct {
	logger     *observability.Logger
	service    *recommend.Service
	retryAfter time.Duration
}

// NewRecommendHandler creates a new recommendation handler. retryAfter is
// advertised to clients rejected as duplicates.
func NewRecommendHandler(logger *observability.Logger, service *recommend.Service, retryAfter time.Duration) *RecommendHandler {
	return &RecommendHandler{
		logger:     logger,
		service:    service,
		retryAfter: retryAfter,
	}
}

// RecommendRequestDTO represents the API request for a recommendation.
type RecommendRequestDTO struct {
	Text                string                  `json:"text"`
	Filters             *FiltersDTO             `json:"filters,omitempty"`
	ExcludedKeywords    []ExcludedKeywordDTO    `json:"excludedKeywords,omitempty"`
	PrecomputedEmotions []PrecomputedEmotionDTO `json:"precomputedEmotions,omitempty"`
}

// FiltersDTO represents list filters.
type FiltersDTO struct {
	PreferredColors []string `json:"preferredColors,omitempty"`
	ExcludedItems   []string `json:"excludedItems,omitempty"`
}

// ExcludedKeywordDTO represents a keyword the caller does not want.
type ExcludedKeywordDTO struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// PrecomputedEmotionDTO represents an upstream emotion signal.
type PrecomputedEmotionDTO struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// ContextResponseDTO represents the extraction-only response.
type ContextResponseDTO struct {
	RequestID string          `json:"requestId"`
	Context   extract.Context `json:"context"`
}

func (d RecommendRequestDTO) toRequest() recommend.Request {
	req := recommend.Request{Text: d.Text}
	if d.Filters != nil {
		req.Filters = recommend.Filters{
			PreferredColors: d.Filters.PreferredColors,
			ExcludedItems:   d.Filters.ExcludedItems,
		}
	}
	for _, k := range d.ExcludedKeywords {
		req.ExcludedKeywords = append(req.ExcludedKeywords, extract.Exclusion{
			Text:     k.Text,
			Category: extract.Dimension(k.Category),
		})
	}
	for _, e := range d.PrecomputedEmotions {
		req.PrecomputedEmotions = append(req.PrecomputedEmotions, extract.Emotion{Label: e.Label, Weight: e.Weight})
	}
	return req
}

// Recommend handles POST /recommend.
func (h *RecommendHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var reqDTO RecommendRequestDTO
	if err := decodeBody(w, r, &reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	out, err := h.service.Recommend(r.Context(), reqDTO.toRequest())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Response())
}

// Context handles POST /context.
func (h *RecommendHandler) Context(w http.ResponseWriter, r *http.Request) {
	var reqDTO RecommendRequestDTO
	if err := decodeBody(w, r, &reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	c, err := h.service.Extract(r.Context(), reqDTO.toRequest())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponseDTO{
		RequestID: observability.RequestIDFromContext(r.Context()),
		Context:   c,
	})
}

func (h *RecommendHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
	case domain.ErrorTypeRateLimited:
		secs := int(math.Ceil(h.retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		writeError(w, http.StatusTooManyRequests, "too many requests, retry shortly", "")
	case domain.ErrorTypeCatalog:
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable", err.Error())
	default:
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Recommendation request failed")
		writeError(w, http.StatusInternalServerError, "recommendation failed", "")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
