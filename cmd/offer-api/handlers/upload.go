package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

// Processor runs a document through the extraction pipeline.
type Processor interface {
	Process(ctx context.Context, doc domain.SourceDocument, pagesPerChunk int) (*domain.ProcessResult, error)
}

// UploadHandler handles flyer uploads.
type UploadHandler struct {
	logger        *observability.Logger
	processor     Processor
	maxBytes      int64
	pagesPerChunk int
}

// NewUploadHandler creates a new upload handler. pagesPerChunk is used when
// the request does not carry one.
func NewUploadHandler(logger *observability.Logger, processor Processor, maxBytes int64, pagesPerChunk int) *UploadHandler {
	return &UploadHandler{
		logger:        logger,
		processor:     processor,
		maxBytes:      maxBytes,
		pagesPerChunk: pagesPerChunk,
	}
}

// PageFailureDTO describes one page that produced no offers.
type PageFailureDTO struct {
	Chunk      int    `json:"chunk"`
	Page       int    `json:"page"`
	SourcePage int    `json:"sourcePage"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// UploadResponseDTO is the outcome of one upload.
type UploadResponseDTO struct {
	RunID       string           `json:"runId"`
	Filename    string           `json:"filename"`
	State       string           `json:"state"`
	Message     string           `json:"message"`
	Chunks      int              `json:"chunks"`
	Pages       int              `json:"pages"`
	OffersSaved int              `json:"offersSaved"`
	FailedPages []PageFailureDTO `json:"failedPages,omitempty"`
	DurationMs  int64            `json:"durationMs"`
	Error       string           `json:"error,omitempty"`
}

// Upload handles POST /api/upload (multipart field "file", optional "pagesPerChunk").
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	pagesPerChunk := h.pagesPerChunk
	if v := r.FormValue("pagesPerChunk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "pagesPerChunk must be a positive integer", v)
			return
		}
		pagesPerChunk = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Int("pages_per_chunk", pagesPerChunk).
		Msg("Upload received")

	result, err := h.processor.Process(r.Context(), domain.SourceDocument{
		Filename: header.Filename,
		Data:     data,
	}, pagesPerChunk)

	status := http.StatusOK
	if err != nil {
		switch domain.TypeOf(err) {
		case domain.ErrorTypeDocumentUnreadable:
			status = http.StatusUnprocessableEntity
		case domain.ErrorTypeValidation:
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
		}
	}
	if result == nil {
		writeError(w, status, "processing failed", errString(err))
		return
	}

	writeJSON(w, status, toUploadResponse(result))
}

func toUploadResponse(result *domain.ProcessResult) UploadResponseDTO {
	resp := UploadResponseDTO{
		RunID:       result.RunID,
		Filename:    result.Filename,
		State:       string(result.State),
		Message:     result.Message(),
		Chunks:      result.Chunks,
		Pages:       result.Pages,
		OffersSaved: result.OffersSaved,
		DurationMs:  result.Duration.Milliseconds(),
		Error:       errString(result.Err),
	}
	for _, f := range result.Failures {
		resp.FailedPages = append(resp.FailedPages, PageFailureDTO{
			Chunk:      f.ChunkIndex,
			Page:       f.PageIndex,
			SourcePage: f.SourcePage + 1,
			Stage:      string(f.Stage),
			Error:      errString(f.Err),
		})
	}
	return resp
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
