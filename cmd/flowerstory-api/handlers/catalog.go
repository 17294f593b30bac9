package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/observability"
)

// CatalogReloader re-reads the catalog source and swaps it in.
type CatalogReloader func(ctx context.Context) (*catalog.Catalog, error)

// CatalogHandler serves and reloads the flower catalog.
type CatalogHandler struct {
	logger *observability.Logger
	store  *catalog.Store
	reload CatalogReloader
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *observability.Logger, store *catalog.Store, reload CatalogReloader) *CatalogHandler {
	return &CatalogHandler{
		logger: logger,
		store:  store,
		reload: reload,
	}
}

// CatalogResponseDTO represents the catalog listing.
type CatalogResponseDTO struct {
	Count      int                 `json:"count"`
	LoadedAt   time.Time           `json:"loadedAt"`
	Candidates []catalog.Candidate `json:"candidates,omitempty"`
}

// List handles GET /catalog.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	c := h.store.Load()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponseDTO{
		Count:      c.Len(),
		LoadedAt:   h.store.LoadedAt().UTC(),
		Candidates: c.Candidates(),
	})
}

// Get handles GET /catalog/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := h.store.Load()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable", "")
		return
	}
	cand, err := c.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "candidate not found", id)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

// Reload handles POST /catalog/reload. A failed reload keeps the current
// catalog.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusNotImplemented, "catalog reload not configured", "")
		return
	}
	c, err := h.reload(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Catalog reload failed")
		writeError(w, http.StatusBadGateway, "catalog reload failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponseDTO{
		Count:    c.Len(),
		LoadedAt: h.store.LoadedAt().UTC(),
	})
}
