// Package salmon delivers reply notifications to OStatus sites as signed
// Salmon slaps, including the endpoint discovery cascade: target page →
// Atom feed → feed links → Webfinger guess from the feed author.
package salmon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/adapter/atom"
	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/adapter/mf2"
	"github.com/heartmarshall/fedbridge/internal/domain"
	"github.com/heartmarshall/fedbridge/internal/sign"
)

type fetcher interface {
	Get(ctx context.Context, rawURL, accept string) (*fetch.Result, error)
	Post(ctx context.Context, rawURL, contentType string, body []byte, sign func(*http.Request) error) error
}

// Service implements Salmon discovery and delivery.
type Service struct {
	http fetcher
	log  *slog.Logger
}

// NewService creates a new salmon service.
func NewService(log *slog.Logger, http fetcher) *Service {
	return &Service{
		http: http,
		log:  log.With("service", "salmon"),
	}
}

// Discover finds the Salmon endpoint for a target page.
//
// The target's HTML must link an Atom feed; a page without one is not an
// OStatus site and discovery fails with domain.ErrNoAtomLink. The feed is
// then searched for a Salmon link, and when it carries none the feed
// author's account is guessed and resolved over Webfinger. Webfinger
// failures are swallowed: the cascade already established the site speaks
// OStatus, it just never told us where to slap.
func (s *Service) Discover(ctx context.Context, target string) (string, error) {
	page, err := s.http.Get(ctx, target, fetch.ContentTypeHTML)
	if err != nil {
		return "", fmt.Errorf("fetch target %s: %w", target, err)
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return "", fmt.Errorf("parse final URL %s: %w", page.FinalURL, err)
	}

	feedURL, err := mf2.AtomLink(page.Body, base)
	if err != nil {
		return "", err
	}

	feed, err := s.http.Get(ctx, feedURL, fetch.ContentTypeAtom)
	if err != nil {
		return "", fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	endpoint, err := atom.SalmonEndpoint(feed.Body)
	if err == nil {
		return endpoint, nil
	}
	if !errors.Is(err, domain.ErrNoSalmonEndpoint) {
		return "", err
	}

	if endpoint := s.webfingerEndpoint(ctx, feed.Body, base); endpoint != "" {
		return endpoint, nil
	}

	return "", fmt.Errorf("%s: %w", target, domain.ErrNoSalmonEndpoint)
}

// Deliver renders the entry as Atom, seals it in a magic envelope signed
// with the domain's key, and slaps the endpoint.
func (s *Service) Deliver(ctx context.Context, endpoint string, entry *domain.Entry, key *domain.MagicKey) error {
	payload, err := atom.Render(entry)
	if err != nil {
		return err
	}

	env, err := sign.MagicEnvelope(payload, fetch.ContentTypeAtom, key)
	if err != nil {
		return err
	}

	s.log.Info("delivering salmon slap", "endpoint", endpoint, "source", entry.URL)

	if err := s.http.Post(ctx, endpoint, sign.MagicEnvelopeContentType, env, nil); err != nil {
		return fmt.Errorf("slap %s: %w", endpoint, err)
	}

	return nil
}

// jrd is the Webfinger JSON Resource Descriptor shape we care about.
type jrd struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// webfingerEndpoint guesses the feed author's account and asks the host's
// Webfinger for a Salmon link. The lookup reuses the scheme the target
// page resolved to, so plain-HTTP sites are asked over HTTP. Any failure
// returns "".
func (s *Service) webfingerEndpoint(ctx context.Context, feed []byte, base *url.URL) string {
	author, err := atom.FeedAuthor(feed)
	if err != nil {
		return ""
	}

	acct := accountFor(author, base.Host)
	if acct == "" {
		return ""
	}

	scheme := base.Scheme
	if scheme == "" {
		scheme = "https"
	}
	wfURL := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s",
		scheme, base.Host, url.QueryEscape("acct:"+acct))

	res, err := s.http.Get(ctx, wfURL, "application/jrd+json")
	if err != nil {
		s.log.Debug("webfinger lookup failed", "acct", acct, "error", err)
		return ""
	}

	var doc jrd
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		s.log.Debug("webfinger response unparseable", "acct", acct, "error", err)
		return ""
	}

	for _, link := range doc.Links {
		if link.Rel == "salmon" && link.Href != "" {
			return link.Href
		}
	}
	return ""
}

// accountFor builds the user@host account to Webfinger: the author's
// email when present, otherwise their username on the target host.
func accountFor(author atom.Author, host string) string {
	if email := strings.TrimPrefix(author.Email, "mailto:"); strings.Contains(email, "@") {
		return email
	}
	if author.Name != "" && !strings.ContainsAny(author.Name, " @") {
		return author.Name + "@" + host
	}
	return ""
}
