package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/receipt-validator/internal/api/middleware"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/rs/zerolog"
)

// maxImageBody bounds a raw image upload.
const maxImageBody = 20 << 20

// ImageHandler handles standalone receipt analysis.
type ImageHandler struct {
	extractor pipeline.ReceiptExtractor
	now       func() time.Time
	log       zerolog.Logger
}

// NewImageHandler creates a new image handler.
func NewImageHandler(extractor pipeline.ReceiptExtractor, log zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		extractor: extractor,
		now:       time.Now,
		log:       log,
	}
}

// AnalyzeResponse wraps the analysis envelope.
type AnalyzeResponse struct {
	Datos     *pipeline.AnalysisEnvelope `json:"datos"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Analyze handles POST /api/image
func (h *ImageHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	image, err := io.ReadAll(io.LimitReader(r.Body, maxImageBody))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read image body")
		middleware.WriteErrorDetails(w, http.StatusInternalServerError, "Failed to read image", err.Error(), "")
		return
	}
	if len(image) == 0 {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, "Image is required", "", CodeValidation)
		return
	}

	envelope := pipeline.AnalyzeImage(r.Context(), h.extractor, image)
	if !envelope.Success {
		h.log.Warn().Str("error", envelope.Error).Int("bytes", len(image)).Msg("Image analysis failed")
	}

	middleware.WriteJSON(w, http.StatusOK, AnalyzeResponse{
		Datos:     envelope,
		Timestamp: h.now().UTC(),
	})
}
