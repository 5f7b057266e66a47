package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/handler/http/respond"
	"sonde-catalog/internal/observability/logging"
)

const fileAddedDetail = "STAC item added to the catalog successfully."

// SingleIngester runs the pipeline for one report URL.
type SingleIngester interface {
	IngestOne(ctx context.Context, sourceURL string) entity.IngestionOutcome
}

// FileHandler ingests one report synchronously and reports the specific
// failure kind to the caller.
type FileHandler struct {
	Svc SingleIngester
}

// ServeHTTP handles POST /parse/file.
func (h FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sourceURL, status, err := decodeURL(r)
	if err != nil {
		respond.SafeError(w, status, err)
		return
	}

	out := h.Svc.IngestOne(r.Context(), sourceURL)
	if out.Succeeded() {
		respond.JSON(w, http.StatusOK, FileResponse{StacItemID: out.ItemID, Detail: fileAddedDetail})
		return
	}

	logging.FromContext(r.Context()).Warn("report ingestion failed",
		slog.String("url", sourceURL),
		slog.String("error_kind", string(out.Kind())),
		slog.Int("position", out.Position()),
		slog.String("error", respond.SanitizeError(out.Err)))

	writeOutcomeError(w, out)
}

// writeOutcomeError maps a failed outcome onto a status code:
//
//	fetch                         502
//	malformed_report, conversion  422
//	storage                       503
//	invalid_input                 400
//	cancelled                     503
func writeOutcomeError(w http.ResponseWriter, out entity.IngestionOutcome) {
	kind := out.Kind()
	switch kind {
	case entity.KindFetch, entity.KindListingFormat:
		respond.JSON(w, http.StatusBadGateway, ErrorResponse{
			Error: respond.SanitizeError(out.Err),
			Kind:  string(kind),
		})
	case entity.KindMalformedReport, entity.KindConversion:
		respond.JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    out.Err.Error(),
			Kind:     string(kind),
			Position: out.Position(),
		})
	case entity.KindInvalidInput:
		respond.JSON(w, http.StatusBadRequest, ErrorResponse{
			Error: out.Err.Error(),
			Kind:  string(kind),
		})
	case entity.KindStorage:
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "catalog store unavailable", out.Err))
	case entity.KindCancelled:
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "ingestion cancelled", out.Err))
	default:
		err := out.Err
		if err == nil {
			err = errors.New("ingestion produced no item")
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
