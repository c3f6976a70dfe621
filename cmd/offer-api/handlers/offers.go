package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
	"github.com/spherical/offer-extractor/internal/offers"
)

// OfferStore is the offer management surface used by the API.
type OfferStore interface {
	All(ctx context.Context) ([]domain.OfferRecord, error)
	Delete(ctx context.Context, id string) error
	PurgeBySource(ctx context.Context, filename string) (int64, error)
	PurgeAll(ctx context.Context) (int64, error)
}

// OfferHandler handles offer listing and deletion.
type OfferHandler struct {
	logger *observability.Logger
	store  OfferStore
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(logger *observability.Logger, store OfferStore) *OfferHandler {
	return &OfferHandler{logger: logger, store: store}
}

// DeleteByFileRequestDTO is the body of DELETE /api/offers/file.
type DeleteByFileRequestDTO struct {
	Filename string `json:"filename"`
}

// List handles GET /api/offers.
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list offers")
		writeError(w, http.StatusInternalServerError, "failed to list offers", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Delete handles DELETE /api/offers/{id}.
func (h *OfferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, offers.ErrNotFound) {
			writeError(w, http.StatusNotFound, "offer not found", id)
			return
		}
		h.logger.Error().Err(err).Str("offer_id", id).Msg("Failed to delete offer")
		writeError(w, http.StatusInternalServerError, "failed to delete offer", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, MessageDTO{Message: fmt.Sprintf("Offer %s deleted", id)})
}

// DeleteByFile handles DELETE /api/offers/file with body {"filename": "..."}.
func (h *OfferHandler) DeleteByFile(w http.ResponseWriter, r *http.Request) {
	var req DeleteByFileRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		writeError(w, http.StatusBadRequest, "filename is required", "")
		return
	}

	n, err := h.store.PurgeBySource(r.Context(), req.Filename)
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeValidation) {
			writeError(w, http.StatusBadRequest, "filename is required", err.Error())
			return
		}
		h.logger.Error().Err(err).Str("filename", req.Filename).Msg("Failed to delete offers by file")
		writeError(w, http.StatusInternalServerError, "failed to delete offers", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, MessageDTO{
		Message: fmt.Sprintf("Offers from %s deleted", offers.NormalizeFilename(req.Filename)),
		Deleted: &n,
	})
}

// DeleteAll handles DELETE /api/offers.
func (h *OfferHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.PurgeAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to purge offers")
		writeError(w, http.StatusInternalServerError, "failed to delete offers", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MessageDTO{Message: "All offers deleted", Deleted: &n})
}
