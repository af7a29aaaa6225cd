// Package inbox translates inbound ActivityPub activities into Webmentions
// on the target site. One synchronous pass per delivery: classify, unwrap
// bridge-owned URLs, resolve the target, deliver, and record the outcome.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/adapter/mf2"
	"github.com/heartmarshall/fedbridge/internal/domain"
	"github.com/heartmarshall/fedbridge/internal/redirect"
	"github.com/heartmarshall/fedbridge/internal/sign"
)

type fetcher interface {
	Get(ctx context.Context, rawURL, accept string) (*fetch.Result, error)
	Head(ctx context.Context, rawURL string) (string, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) error
	Post(ctx context.Context, rawURL, contentType string, body []byte, sign func(*http.Request) error) error
}

type responseRepo interface {
	Upsert(ctx context.Context, resp *domain.Response) error
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
}

type followerRepo interface {
	Upsert(ctx context.Context, f *domain.Follower) error
}

type keyProvider interface {
	GetOrCreate(ctx context.Context, domainName string) (domain.MagicKey, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the inbox processor.
type Service struct {
	wrapper   *redirect.Wrapper
	http      fetcher
	responses responseRepo
	followers followerRepo
	keys      keyProvider
	tx        txManager
	log       *slog.Logger
}

// NewService creates a new inbox service.
func NewService(
	log *slog.Logger,
	wrapper *redirect.Wrapper,
	http fetcher,
	responses responseRepo,
	followers followerRepo,
	keys keyProvider,
	tx txManager,
) *Service {
	return &Service{
		wrapper:   wrapper,
		http:      http,
		responses: responses,
		followers: followers,
		keys:      keys,
		tx:        tx,
		log:       log.With("service", "inbox"),
	}
}

// Process handles one activity POSTed to a domain's inbox.
//
// Replies and likes become Webmentions on the target page; Follows get a
// signed Accept back to the follower's inbox plus a follower record.
// Unsupported activity types fail with domain.ErrUnsupportedActivity and
// leave no record behind.
func (s *Service) Process(ctx context.Context, targetDomain string, body []byte) error {
	activity, err := domain.ParseActivity(body)
	if err != nil {
		return err
	}

	c, err := domain.Classify(activity)
	if err != nil {
		return err
	}

	s.log.Info("processing activity",
		"domain", targetDomain, "type", c.RawType, "kind", string(c.Kind))

	if c.Kind == domain.KindFollow {
		return s.processFollow(ctx, targetDomain, c)
	}
	return s.processMention(ctx, c)
}

// processMention handles replies and likes: one Webmention to the target.
func (s *Service) processMention(ctx context.Context, c *domain.Classified) error {
	source := c.Object.SourceID()
	if source == "" {
		return fmt.Errorf("activity has no url or id: %w", domain.ErrValidation)
	}

	target := s.wrapper.Unwrap(c.Target)

	// resolve the target through its redirects before keying the record
	canonical, err := s.http.Head(ctx, target)
	if err != nil {
		return fmt.Errorf("resolve target %s: %w", target, err)
	}

	// a Like usually names its actor by bare id; fetch the actor so the
	// snapshot carries their name and homepage for rendering
	activity := c.Activity
	if c.Kind == domain.KindLike && activity.Actor() == nil && activity.ActorID() != "" {
		actor, err := s.resolveActor(ctx, activity.ActorID())
		if err != nil {
			return err
		}
		activity = activity.Clone()
		activity.SetActor(actor)
	}

	rec, err := s.newRecord(activity, source, canonical)
	if err != nil {
		return err
	}
	if err := s.responses.Upsert(ctx, rec); err != nil {
		return err
	}

	if err := s.sendWebmention(ctx, source, canonical); err != nil {
		if stErr := s.responses.UpdateStatus(ctx, rec.ID, domain.StatusFailed); stErr != nil {
			s.log.Error("marking record failed", "id", rec.ID, "error", stErr)
		}
		return err
	}

	return s.responses.UpdateStatus(ctx, rec.ID, domain.StatusComplete)
}

// processFollow accepts a Follow: signed Accept to the follower's inbox,
// Response + Follower records in one transaction, and a best-effort
// Webmention on the followed site's homepage.
func (s *Service) processFollow(ctx context.Context, targetDomain string, c *domain.Classified) error {
	actorID := c.Activity.ActorID()
	if actorID == "" {
		return fmt.Errorf("follow has no actor: %w", domain.ErrNoActor)
	}
	followID := c.Activity.ID()
	if followID == "" {
		return fmt.Errorf("follow has no id: %w", domain.ErrValidation)
	}

	// the Follow's object is the bridge's user URL for the site
	wrappedUser := c.Activity.ObjectID()
	target := s.wrapper.Unwrap(wrappedUser)

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	inbox := actor.Str("inbox")
	if inbox == "" {
		return fmt.Errorf("actor %s: %w", actorID, domain.ErrNoInbox)
	}

	key, err := s.keys.GetOrCreate(ctx, targetDomain)
	if err != nil {
		return err
	}

	// Accept echoes the Follow exactly as received; the actor is the
	// bridge user the follower addressed.
	accept := domain.Activity{
		"@context": domain.ContextAS2,
		"id":       s.wrapper.AcceptID(targetDomain, followID),
		"type":     "Accept",
		"actor":    wrappedUser,
		"object":   map[string]any(c.Activity),
	}
	acceptBody, err := accept.JSON()
	if err != nil {
		return fmt.Errorf("encode accept: %w", err)
	}

	err = s.http.Post(ctx, inbox, fetch.ContentTypeAS2, acceptBody, func(req *http.Request) error {
		return sign.SignRequest(req, &key, sign.ActorKeyID(targetDomain))
	})
	if err != nil {
		return fmt.Errorf("deliver accept to %s: %w", inbox, err)
	}

	// both snapshots embed the resolved actor; the Response keeps the
	// canonical unwrapped form, the Follower keeps the Follow exactly as
	// it addressed the bridge
	followSnap := c.Activity.Clone()
	followSnap.SetActor(actor)
	wrappedJSON, err := followSnap.JSON()
	if err != nil {
		return fmt.Errorf("encode follow snapshot: %w", err)
	}
	recJSON, err := json.Marshal(s.wrapper.UnwrapActivity(followSnap))
	if err != nil {
		return fmt.Errorf("encode follow snapshot: %w", err)
	}

	source := c.Activity.SourceID()
	rec := &domain.Response{
		ID:        domain.ResponseID(source, target),
		Source:    source,
		Target:    target,
		Direction: domain.DirectionIn,
		Protocol:  domain.ProtocolActivityPub,
		Status:    domain.StatusComplete,
		SourceAS2: recJSON,
	}
	fol := &domain.Follower{
		ID:         domain.FollowerID(targetDomain, actorID),
		Domain:     targetDomain,
		ActorID:    actorID,
		LastFollow: wrappedJSON,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.responses.Upsert(ctx, rec); err != nil {
			return err
		}
		return s.followers.Upsert(ctx, fol)
	})
	if err != nil {
		return err
	}

	// the homepage webmention is a courtesy; most sites have no endpoint
	if err := s.sendWebmention(ctx, source, target); err != nil {
		s.log.Warn("follow webmention failed", "target", target, "error", err)
	}

	return nil
}

// sendWebmention discovers the target's endpoint and POSTs the mention.
// The mention's source is the bridge's render proxy for the activity.
func (s *Service) sendWebmention(ctx context.Context, source, target string) error {
	page, err := s.http.Get(ctx, target, fetch.ContentTypeHTML)
	if err != nil {
		return fmt.Errorf("fetch target %s: %w", target, err)
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return fmt.Errorf("parse final URL %s: %w", page.FinalURL, err)
	}

	endpoint, err := mf2.WebmentionEndpoint(page.Body, base)
	if err != nil {
		return err
	}

	form := url.Values{
		"source": {s.wrapper.RenderURL(source, target)},
		"target": {target},
	}

	s.log.Info("sending webmention", "endpoint", endpoint, "target", target)

	if err := s.http.PostForm(ctx, endpoint, form); err != nil {
		return fmt.Errorf("webmention to %s: %w", endpoint, err)
	}

	return nil
}

// resolveActor fetches the activity's actor document. Actors must speak
// AS2; an HTML-only profile cannot receive an Accept.
func (s *Service) resolveActor(ctx context.Context, actorID string) (domain.Activity, error) {
	res, err := s.http.Get(ctx, actorID, fetch.AcceptAS2HTML)
	if err != nil {
		return nil, fmt.Errorf("fetch actor %s: %w", actorID, err)
	}
	if res.IsHTML() {
		return nil, fmt.Errorf("actor %s is not an AS2 document: %w", actorID, domain.ErrNoActor)
	}
	return domain.ParseActivity(res.Body)
}

// newRecord builds the delivery record for a mention, with the activity
// snapshot stored unwrapped.
func (s *Service) newRecord(activity domain.Activity, source, target string) (*domain.Response, error) {
	snapshot, err := json.Marshal(s.wrapper.UnwrapActivity(activity))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return &domain.Response{
		ID:        domain.ResponseID(source, target),
		Source:    source,
		Target:    target,
		Direction: domain.DirectionIn,
		Protocol:  domain.ProtocolActivityPub,
		Status:    domain.StatusNew,
		SourceAS2: snapshot,
	}, nil
}
