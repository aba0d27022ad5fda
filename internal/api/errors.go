package api

import (
	"errors"
	"net/http"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/scanner"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNoActiveSignal),
		errors.Is(err, models.ErrSignalClosed),
		errors.Is(err, models.ErrStaleSnapshot),
		errors.Is(err, scanner.ErrTickInFlight):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidSymbol),
		errors.Is(err, models.ErrInvalidTimeframe),
		errors.Is(err, models.ErrInvalidPrice),
		errors.Is(err, models.ErrInvalidTimestamp),
		errors.Is(err, models.ErrInvalidSignal),
		errors.Is(err, models.ErrInvalidSnapshot),
		errors.Is(err, models.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err using the status it maps to. Internal
// errors are logged and their text is not exposed.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("Request failed",
			logger.ErrorField(err),
			logger.String("path", r.URL.Path),
		)
		logger.ErrorsTotal.WithLabelValues("api", "internal").Inc()
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}
