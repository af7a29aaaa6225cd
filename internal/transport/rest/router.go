package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/fedbridge/internal/transport/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Actor      *ActorHandler
	Inbox      *InboxHandler
	Webmention *WebmentionHandler
	Render     *RenderHandler
	Redirect   *RedirectHandler
	Responses  *ResponsesHandler
	Health     *HealthHandler
}

// NewRouter builds the public HTTP surface. The common middleware wraps
// every route; limited additionally rate-limits the endpoints that
// federated peers and webmention senders hit.
func NewRouter(h Handlers, common, limited middleware.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.Health.Health)
	r.Get("/live", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Get("/render", h.Render.Get)
	r.Get("/r/*", h.Redirect.Get)
	r.Get("/responses", h.Responses.List)

	r.With(limited).Post("/webmention", h.Webmention.Post)
	r.With(limited).Post("/{domain}/inbox", h.Inbox.Post)
	r.Get("/{domain}", h.Actor.Get)

	return common(r)
}
