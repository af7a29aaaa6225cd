package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/heartmarshall/fedbridge/internal/adapter/postgres/response"
	"github.com/heartmarshall/fedbridge/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type responseLister interface {
	List(ctx context.Context, f response.Filter) ([]domain.Response, error)
}

// ResponsesHandler serves the delivery-record audit log.
type ResponsesHandler struct {
	responses responseLister
	log       *slog.Logger
}

// NewResponsesHandler creates a ResponsesHandler.
func NewResponsesHandler(responses responseLister, logger *slog.Logger) *ResponsesHandler {
	return &ResponsesHandler{responses: responses, log: logger.With("handler", "responses")}
}

type responseItem struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction string    `json:"direction"`
	Protocol  string    `json:"protocol"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List handles GET /responses?direction=&protocol=&status=&target=&limit=&offset=.
func (h *ResponsesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := response.Filter{
		Target:    q.Get("target"),
		Direction: domain.Direction(q.Get("direction")),
		Protocol:  domain.Protocol(q.Get("protocol")),
		Status:    domain.DeliveryStatus(q.Get("status")),
		Limit:     defaultListLimit,
	}
	if f.Direction != "" && !f.Direction.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid direction")
		return
	}
	if f.Protocol != "" && !f.Protocol.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid protocol")
		return
	}
	if f.Status != "" && !f.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	recs, err := h.responses.List(r.Context(), f)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	items := make([]responseItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, responseItem{
			Source:    rec.Source,
			Target:    rec.Target,
			Direction: rec.Direction.String(),
			Protocol:  rec.Protocol.String(),
			Status:    rec.Status.String(),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"responses": items})
}
