package rest

import (
	"context"
	"log/slog"
	"net/http"
)

type webmentionService interface {
	Process(ctx context.Context, source, target string) error
}

// WebmentionHandler receives outbound Webmentions from IndieWeb sites.
type WebmentionHandler struct {
	svc webmentionService
	log *slog.Logger
}

// NewWebmentionHandler creates a WebmentionHandler.
func NewWebmentionHandler(svc webmentionService, logger *slog.Logger) *WebmentionHandler {
	return &WebmentionHandler{svc: svc, log: logger.With("handler", "webmention")}
}

// Post handles POST /webmention (form-encoded source and target).
func (h *WebmentionHandler) Post(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	source := r.PostFormValue("source")
	target := r.PostFormValue("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}

	if err := h.svc.Process(r.Context(), source, target); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
