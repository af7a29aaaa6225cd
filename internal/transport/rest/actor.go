package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/adapter/mf2"
	"github.com/heartmarshall/fedbridge/internal/domain"
	"github.com/heartmarshall/fedbridge/internal/redirect"
)

type pageFetcher interface {
	Get(ctx context.Context, rawURL, accept string) (*fetch.Result, error)
}

type actorKeys interface {
	GetOrCreate(ctx context.Context, domainName string) (domain.MagicKey, error)
}

// ActorHandler serves bridge-owned AS2 actor documents for bridged
// IndieWeb domains. The actor is synthesized on every request from the
// domain's representative h-card; nothing is stored except the keypair.
type ActorHandler struct {
	wrapper *redirect.Wrapper
	http    pageFetcher
	keys    actorKeys
	log     *slog.Logger
}

// NewActorHandler creates an ActorHandler.
func NewActorHandler(wrapper *redirect.Wrapper, http pageFetcher, keys actorKeys, logger *slog.Logger) *ActorHandler {
	return &ActorHandler{
		wrapper: wrapper,
		http:    http,
		keys:    keys,
		log:     logger.With("handler", "actor"),
	}
}

// Get handles GET /{domain}.
func (h *ActorHandler) Get(w http.ResponseWriter, r *http.Request) {
	domainName := strings.ToLower(chi.URLParam(r, "domain"))
	if domainName == "" || strings.ContainsAny(domainName, "/:@ ") {
		writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}

	homepage := "https://" + domainName + "/"
	page, err := h.http.Get(r.Context(), homepage, fetch.ContentTypeHTML)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "unparseable final URL")
		return
	}

	card, err := mf2.RepresentativeCard(page.Body, base)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no representative h-card found on "+homepage)
		return
	}

	key, err := h.keys.GetOrCreate(r.Context(), domainName)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	actorID := h.wrapper.UserURL(domainName)
	person := map[string]any{
		"@context": []any{
			domain.ContextAS2,
			"https://w3id.org/security/v1",
		},
		"type":              "Person",
		"id":                actorID,
		"url":               h.wrapper.Wrap(cardURL(card, homepage)),
		"preferredUsername": domainName,
		"inbox":             actorID + "/inbox",
		"outbox":            actorID + "/outbox",
		"following":         actorID + "/following",
		"followers":         actorID + "/followers",
		"publicKey": map[string]any{
			"id":           actorID,
			"owner":        actorID,
			"publicKeyPem": key.PublicPEM,
		},
	}
	if card.Name != "" {
		person["name"] = card.Name
	}
	if card.Photo != "" {
		person["icon"] = map[string]any{"type": "Image", "url": card.Photo}
	}

	w.Header().Set("Content-Type", fetch.ContentTypeAS2)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(person) //nolint:errcheck
}

func cardURL(card *domain.Card, fallback string) string {
	if card.URL != "" {
		return card.URL
	}
	return fallback
}
