package rest

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

type responseGetter interface {
	GetByID(ctx context.Context, id string) (domain.Response, error)
}

// RenderHandler serves stored inbound activities as microformats2 HTML.
// Webmention receivers fetch this page to verify that the source really
// links to the target.
type RenderHandler struct {
	responses responseGetter
	log       *slog.Logger
}

// NewRenderHandler creates a RenderHandler.
func NewRenderHandler(responses responseGetter, logger *slog.Logger) *RenderHandler {
	return &RenderHandler{responses: responses, log: logger.With("handler", "render")}
}

var renderTmpl = template.Must(template.New("entry").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body class="h-entry">
{{if .URL}}<a class="u-url" href="{{.URL}}">{{.URL}}</a>
{{end}}{{if .InReplyTo}}<a class="u-in-reply-to" href="{{.InReplyTo}}"></a>
{{end}}<div class="e-content">{{.Content}}</div>
{{if .AuthorURL}}<a class="p-author h-card" href="{{.AuthorURL}}">{{.AuthorName}}</a>
{{end}}</body>
</html>
`))

type renderData struct {
	Title      string
	URL        string
	InReplyTo  string
	Content    template.HTML
	AuthorURL  string
	AuthorName string
}

// Get handles GET /render?source=&target=.
func (h *RenderHandler) Get(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}

	rec, err := h.responses.GetByID(r.Context(), domain.ResponseID(source, target))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if rec.Status != domain.StatusComplete || len(rec.SourceAS2) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	activity, err := domain.ParseActivity(rec.SourceAS2)
	if err != nil {
		h.log.ErrorContext(r.Context(), "stored snapshot unparseable",
			slog.String("id", rec.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	obj := activity
	if inner := activity.Object(); activity.Type() == "Create" && inner != nil {
		obj = inner
	}

	author := obj.Actor()
	if author == nil {
		author = activity.Actor()
	}
	data := renderData{
		Title:     obj.Type(),
		URL:       objectURL(obj),
		InReplyTo: obj.InReplyTo(),
		Content:   template.HTML(obj.Str("content")),
	}
	if author != nil {
		data.AuthorURL = objectURL(author)
		data.AuthorName = author.Str("name")
	}
	if data.AuthorURL == "" {
		data.AuthorURL = obj.AttributedTo()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := renderTmpl.Execute(w, data); err != nil {
		h.log.ErrorContext(r.Context(), "render template", slog.String("error", err.Error()))
	}
}

func objectURL(a domain.Activity) string {
	if u := a.URL(); u != "" {
		return u
	}
	return a.ID()
}
