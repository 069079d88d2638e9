package helpers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"confetti/internal/domain"
)

// WriteServiceError maps a repository or service error onto a status and error code.
// Unexpected errors are logged; upstream failures are reported as such.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		WriteJSONError(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrCacheMiss):
		WriteJSONError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case domain.IsQueryError(err):
		logger.WarnContext(r.Context(), "upstream returned errors", "path", r.URL.Path, "err", err)
		WriteJSONError(w, http.StatusBadGateway, ErrCodeUpstreamError, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		WriteJSONError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "timed out waiting for data")
	case domain.IsTransportError(err):
		logger.WarnContext(r.Context(), "upstream unavailable", "path", r.URL.Path, "err", err)
		WriteJSONError(w, http.StatusBadGateway, ErrCodeUpstreamUnavailable, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
