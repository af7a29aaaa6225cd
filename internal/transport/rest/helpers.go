package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps processing errors to HTTP statuses. Activity types the
// bridge does not translate report 501 so peers stop retrying; resolution
// and discovery failures are the caller's problem (400); failures of the
// far side during delivery are a gateway error (502).
func handleError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedActivity):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNoActor),
		errors.Is(err, domain.ErrNoInbox),
		errors.Is(err, domain.ErrNoWebmentionTarget),
		errors.Is(err, domain.ErrNoAtomLink),
		errors.Is(err, domain.ErrNoSalmonEndpoint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		if _, ok := domain.AsFetchError(err); ok {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
