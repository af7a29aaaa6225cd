package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxInboxBody caps inbound activity payloads.
const maxInboxBody = 1 << 20

type inboxService interface {
	Process(ctx context.Context, targetDomain string, body []byte) error
}

// InboxHandler receives ActivityPub deliveries addressed to a bridged
// domain's actor.
type InboxHandler struct {
	svc inboxService
	log *slog.Logger
}

// NewInboxHandler creates an InboxHandler.
func NewInboxHandler(svc inboxService, logger *slog.Logger) *InboxHandler {
	return &InboxHandler{svc: svc, log: logger.With("handler", "inbox")}
}

// Post handles POST /{domain}/inbox.
func (h *InboxHandler) Post(w http.ResponseWriter, r *http.Request) {
	domainName := strings.ToLower(chi.URLParam(r, "domain"))
	if domainName == "" {
		writeError(w, http.StatusBadRequest, "missing domain")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.svc.Process(r.Context(), domainName, body); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
