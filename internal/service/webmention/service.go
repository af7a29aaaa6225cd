// Package webmention translates outbound Webmentions into federated
// deliveries: the source page's h-entry goes out as an ActivityPub Create
// when the target speaks AS2, or as a Salmon slap when it is an OStatus
// site. The protocol choice is a single content-negotiated probe of the
// target.
package webmention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/adapter/mf2"
	"github.com/heartmarshall/fedbridge/internal/domain"
	"github.com/heartmarshall/fedbridge/internal/redirect"
	"github.com/heartmarshall/fedbridge/internal/sign"
)

type fetcher interface {
	Get(ctx context.Context, rawURL, accept string) (*fetch.Result, error)
	Post(ctx context.Context, rawURL, contentType string, body []byte, sign func(*http.Request) error) error
}

type responseRepo interface {
	Upsert(ctx context.Context, resp *domain.Response) error
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
}

type keyProvider interface {
	GetOrCreate(ctx context.Context, domainName string) (domain.MagicKey, error)
}

type salmonDeliverer interface {
	Discover(ctx context.Context, target string) (string, error)
	Deliver(ctx context.Context, endpoint string, entry *domain.Entry, key *domain.MagicKey) error
}

// Service implements the outbound webmention processor.
type Service struct {
	wrapper   *redirect.Wrapper
	http      fetcher
	responses responseRepo
	keys      keyProvider
	salmon    salmonDeliverer
	log       *slog.Logger
}

// NewService creates a new webmention service.
func NewService(
	log *slog.Logger,
	wrapper *redirect.Wrapper,
	http fetcher,
	responses responseRepo,
	keys keyProvider,
	salmon salmonDeliverer,
) *Service {
	return &Service{
		wrapper:   wrapper,
		http:      http,
		responses: responses,
		keys:      keys,
		salmon:    salmon,
		log:       log.With("service", "webmention"),
	}
}

// Process delivers one Webmention: source is the IndieWeb page, target the
// federated object it mentions (possibly bridge-wrapped).
//
// The target is probed with AS2-preferring content negotiation. An HTML
// response, or any 4xx on the probe, selects the Salmon path; anything
// else is parsed as AS2 and delivered over ActivityPub. Probe failures
// other than 4xx are returned as-is.
func (s *Service) Process(ctx context.Context, source, target string) error {
	sourceDomain, err := hostOf(source)
	if err != nil {
		return err
	}
	if _, err := hostOf(target); err != nil {
		return err
	}

	entry, err := s.fetchEntry(ctx, source)
	if err != nil {
		return err
	}

	target = s.wrapper.Unwrap(target)

	s.log.Info("processing webmention", "source", source, "target", target)

	probe, probeErr := s.http.Get(ctx, target, fetch.AcceptAS2HTML)
	if probeErr != nil {
		fe, ok := domain.AsFetchError(probeErr)
		if !ok || !fe.IsClientError() {
			return fmt.Errorf("probe target %s: %w", target, probeErr)
		}
		// 4xx from a server that will not serve the object directly:
		// OStatus sites do this, so fall through to Salmon discovery.
		return s.deliverSalmon(ctx, entry, sourceDomain, source, target)
	}

	// Only an HTML answer marks an OStatus site. Everything else is
	// treated as AS2: servers answer the probe with either canonical
	// media type (activity+json or ld+json).
	if probe.IsHTML() {
		return s.deliverSalmon(ctx, entry, sourceDomain, source, target)
	}
	return s.deliverActivityPub(ctx, entry, sourceDomain, source, target, probe.Body)
}

// fetchEntry loads and parses the source page's h-entry.
func (s *Service) fetchEntry(ctx context.Context, source string) (*domain.Entry, error) {
	page, err := s.http.Get(ctx, source, fetch.ContentTypeHTML)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", source, err)
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("parse final URL %s: %w", page.FinalURL, err)
	}
	return mf2.ParseEntry(page.Body, base)
}

// deliverActivityPub sends a Create{Note} to the target object's inbox,
// signed with the source domain's key.
func (s *Service) deliverActivityPub(ctx context.Context, entry *domain.Entry, sourceDomain, source, target string, probeBody []byte) error {
	targetObj, err := domain.ParseActivity(probeBody)
	if err != nil {
		return err
	}

	inbox, authorID, err := s.locateInbox(ctx, targetObj, target)
	if err != nil {
		if errors.Is(err, domain.ErrNoInbox) || errors.Is(err, domain.ErrNoActor) {
			s.log.Info("no inbox found, falling back to salmon", "target", target)
			return s.deliverSalmon(ctx, entry, sourceDomain, source, target)
		}
		return err
	}

	create := s.buildCreate(entry, sourceDomain, target, authorID)
	body, err := create.JSON()
	if err != nil {
		return fmt.Errorf("encode create: %w", err)
	}

	rec := &domain.Response{
		ID:        domain.ResponseID(source, target),
		Source:    source,
		Target:    target,
		Direction: domain.DirectionOut,
		Protocol:  domain.ProtocolActivityPub,
		Status:    domain.StatusNew,
		SourceAS2: body,
	}
	if err := s.responses.Upsert(ctx, rec); err != nil {
		return err
	}

	key, err := s.keys.GetOrCreate(ctx, sourceDomain)
	if err != nil {
		return err
	}

	s.log.Info("delivering activitypub create", "inbox", inbox, "source", source)

	err = s.http.Post(ctx, inbox, fetch.ContentTypeAS2, body, func(req *http.Request) error {
		return sign.SignRequest(req, &key, sign.ActorKeyID(sourceDomain))
	})
	if err != nil {
		if stErr := s.responses.UpdateStatus(ctx, rec.ID, domain.StatusFailed); stErr != nil {
			s.log.Error("marking record failed", "id", rec.ID, "error", stErr)
		}
		return fmt.Errorf("deliver create to %s: %w", inbox, err)
	}

	return s.responses.UpdateStatus(ctx, rec.ID, domain.StatusComplete)
}

// locateInbox finds where to POST: the object's own inbox, or its
// author's after a second fetch.
func (s *Service) locateInbox(ctx context.Context, targetObj domain.Activity, target string) (inbox, authorID string, err error) {
	authorID = targetObj.AttributedTo()
	if authorID == "" {
		authorID = targetObj.ActorID()
	}

	if inbox := targetObj.Str("inbox"); inbox != "" {
		return resolveRef(target, inbox), authorID, nil
	}

	if authorID == "" {
		return "", "", fmt.Errorf("target %s: %w", target, domain.ErrNoActor)
	}

	res, err := s.http.Get(ctx, authorID, fetch.AcceptAS2)
	if err != nil {
		return "", "", fmt.Errorf("fetch author %s: %w", authorID, err)
	}
	author, err := domain.ParseActivity(res.Body)
	if err != nil {
		return "", "", err
	}
	if inbox := author.Str("inbox"); inbox != "" {
		return resolveRef(authorID, inbox), authorID, nil
	}
	return "", "", fmt.Errorf("author %s: %w", authorID, domain.ErrNoInbox)
}

// resolveRef resolves a possibly-relative reference against the document
// it came from.
func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// buildCreate massages the AS1 entry into the AS2 Create this bridge
// delivers: object type forced to Note, a single inReplyTo, and cc
// widened to the public audience plus the reply target.
func (s *Service) buildCreate(entry *domain.Entry, sourceDomain, target, authorID string) domain.Activity {
	if len(entry.InReplyTo) > 1 {
		s.log.Warn("dropping extra reply targets", "source", entry.URL, "count", len(entry.InReplyTo)-1)
	}

	cc := []any{domain.PublicAudience, target}
	if authorID != "" {
		cc = append(cc, authorID)
	}

	obj := domain.Activity{
		"type":      "Note",
		"id":        entry.URL,
		"url":       entry.URL,
		"content":   entry.Content,
		"inReplyTo": target,
		"cc":        cc,
	}
	if entry.Name != "" {
		obj["name"] = entry.Name
	}
	if entry.Published != "" {
		obj["published"] = entry.Published
	}
	if entry.Photo != "" {
		obj["image"] = map[string]any{"type": "Image", "url": entry.Photo}
	}
	if entry.Author != nil {
		person := domain.Activity{"type": "Person"}
		if entry.Author.Name != "" {
			person["name"] = entry.Author.Name
		}
		if entry.Author.URL != "" {
			person["id"] = entry.Author.URL
			person["url"] = entry.Author.URL
		}
		if entry.Author.Photo != "" {
			person["icon"] = map[string]any{"type": "Image", "url": entry.Author.Photo}
		}
		obj["attributedTo"] = map[string]any(person)
	}

	return domain.Activity{
		"@context": domain.ContextAS2,
		"type":     "Create",
		"id":       entry.URL + "#bridgy-fed-create",
		"actor":    s.wrapper.UserURL(sourceDomain),
		"object":   map[string]any(obj),
	}
}

// deliverSalmon discovers the target's Salmon endpoint and slaps it with
// the entry as a signed Atom envelope.
func (s *Service) deliverSalmon(ctx context.Context, entry *domain.Entry, sourceDomain, source, target string) error {
	endpoint, err := s.salmon.Discover(ctx, target)
	if err != nil {
		return err
	}

	// mention the target's author so OStatus receivers notify them
	s.tagTargetAuthor(ctx, entry, target)

	snapshot, err := s.buildCreate(entry, sourceDomain, target, "").JSON()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	rec := &domain.Response{
		ID:        domain.ResponseID(source, target),
		Source:    source,
		Target:    target,
		Direction: domain.DirectionOut,
		Protocol:  domain.ProtocolOStatus,
		Status:    domain.StatusNew,
		SourceAS2: snapshot,
	}
	if err := s.responses.Upsert(ctx, rec); err != nil {
		return err
	}

	key, err := s.keys.GetOrCreate(ctx, sourceDomain)
	if err != nil {
		return err
	}

	if err := s.salmon.Deliver(ctx, endpoint, entry, &key); err != nil {
		if stErr := s.responses.UpdateStatus(ctx, rec.ID, domain.StatusFailed); stErr != nil {
			s.log.Error("marking record failed", "id", rec.ID, "error", stErr)
		}
		return err
	}

	return s.responses.UpdateStatus(ctx, rec.ID, domain.StatusComplete)
}

// tagTargetAuthor appends the target page's author to the entry's tags.
// Best effort: an unparseable target just goes untagged.
func (s *Service) tagTargetAuthor(ctx context.Context, entry *domain.Entry, target string) {
	page, err := s.http.Get(ctx, target, fetch.ContentTypeHTML)
	if err != nil {
		return
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return
	}
	targetEntry, err := mf2.ParseEntry(page.Body, base)
	if err != nil || targetEntry.Author == nil || targetEntry.Author.URL == "" {
		return
	}
	for _, tag := range entry.Tags {
		if tag.URL == targetEntry.Author.URL {
			return
		}
	}
	entry.Tags = append(entry.Tags, domain.Reference{URL: targetEntry.Author.URL})
}

// hostOf validates an absolute http(s) URL and returns its hostname.
func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("not an absolute http url: %q: %w", raw, domain.ErrValidation)
	}
	return strings.ToLower(u.Hostname()), nil
}
