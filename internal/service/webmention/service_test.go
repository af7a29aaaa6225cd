package webmention

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/domain"
	"github.com/heartmarshall/fedbridge/internal/redirect"
)

const baseURL = "https://fed.brid.gy"

const sourceURL = "https://alice.example/reply/1"

const sourceHTML = `<html><body>
<article class="h-entry">
  <a class="u-url" href="https://alice.example/reply/1"></a>
  <div class="e-content">I agree!</div>
  <a class="u-in-reply-to" href="https://mastodon.example/@bob/5"></a>
  <a class="p-author h-card" href="https://alice.example/">Alice</a>
</article>
</body></html>`

type fakeFetcher struct {
	pages map[string]*fetch.Result
	errs  map[string]error

	posts []postedBody
}

type postedBody struct {
	url         string
	contentType string
	body        []byte
	headers     http.Header
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]*fetch.Result{}, errs: map[string]error{}}
}

func (f *fakeFetcher) addHTML(u, body string) {
	f.pages[u] = &fetch.Result{Body: []byte(body), ContentType: fetch.ContentTypeHTML, FinalURL: u}
}

func (f *fakeFetcher) addAS2(u, body string) {
	f.pages[u] = &fetch.Result{Body: []byte(body), ContentType: fetch.ContentTypeAS2, FinalURL: u}
}

func (f *fakeFetcher) Get(_ context.Context, rawURL, _ string) (*fetch.Result, error) {
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	res, ok := f.pages[rawURL]
	if !ok {
		return nil, &domain.FetchError{URL: rawURL, Status: http.StatusNotFound}
	}
	return res, nil
}

func (f *fakeFetcher) Post(_ context.Context, rawURL, contentType string, body []byte, sign func(*http.Request) error) error {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	if sign != nil {
		if err := sign(req); err != nil {
			return err
		}
	}
	f.posts = append(f.posts, postedBody{url: rawURL, contentType: contentType, body: body, headers: req.Header})
	return nil
}

type fakeResponseRepo struct {
	records map[string]*domain.Response
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{records: map[string]*domain.Response{}}
}

func (f *fakeResponseRepo) Upsert(_ context.Context, resp *domain.Response) error {
	clone := *resp
	f.records[resp.ID] = &clone
	return nil
}

func (f *fakeResponseRepo) UpdateStatus(_ context.Context, id string, status domain.DeliveryStatus) error {
	rec, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	return nil
}

type fakeKeys struct {
	key domain.MagicKey
}

func (f *fakeKeys) GetOrCreate(_ context.Context, _ string) (domain.MagicKey, error) {
	return f.key, nil
}

type fakeSalmon struct {
	endpoint    string
	discoverErr error
	deliverErr  error

	delivered *domain.Entry
	slapped   string
}

func (f *fakeSalmon) Discover(_ context.Context, _ string) (string, error) {
	if f.discoverErr != nil {
		return "", f.discoverErr
	}
	return f.endpoint, nil
}

func (f *fakeSalmon) Deliver(_ context.Context, endpoint string, entry *domain.Entry, _ *domain.MagicKey) error {
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.slapped = endpoint
	f.delivered = entry
	return nil
}

type env struct {
	svc       *Service
	http      *fakeFetcher
	responses *fakeResponseRepo
	salmon    *fakeSalmon
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := domain.GenerateMagicKey("alice.example")
	require.NoError(t, err)

	f := newFakeFetcher()
	f.addHTML(sourceURL, sourceHTML)
	responses := newFakeResponseRepo()
	salmon := &fakeSalmon{endpoint: "https://blog.example/salmon"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(log, redirect.NewWrapper(baseURL), f, responses,
		&fakeKeys{key: *key}, salmon)

	return &env{svc: svc, http: f, responses: responses, salmon: salmon}
}

func TestProcess_ActivityPub(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"attributedTo": "https://mastodon.example/users/bob"
	}`)
	e.http.addAS2("https://mastodon.example/users/bob", `{
		"id": "https://mastodon.example/users/bob",
		"inbox": "https://mastodon.example/users/bob/inbox"
	}`)

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	require.Len(t, e.http.posts, 1)
	post := e.http.posts[0]
	assert.Equal(t, "https://mastodon.example/users/bob/inbox", post.url)
	assert.Equal(t, fetch.ContentTypeAS2, post.contentType)
	assert.Contains(t, post.headers.Get("Authorization"), `keyId="acct:me@alice.example"`)

	var create map[string]any
	require.NoError(t, json.Unmarshal(post.body, &create))
	assert.Equal(t, "Create", create["type"])
	assert.Equal(t, baseURL+"/alice.example", create["actor"])

	obj := create["object"].(map[string]any)
	assert.Equal(t, "Note", obj["type"])
	assert.Equal(t, sourceURL, obj["id"])
	assert.Equal(t, target, obj["inReplyTo"])
	assert.Contains(t, obj["cc"], domain.PublicAudience)
	assert.Contains(t, obj["cc"], target)
	assert.Contains(t, obj["cc"], "https://mastodon.example/users/bob")

	rec, ok := e.responses.records[domain.ResponseID(sourceURL, target)]
	require.True(t, ok, "delivery record missing")
	assert.Equal(t, domain.StatusComplete, rec.Status)
	assert.Equal(t, domain.DirectionOut, rec.Direction)
	assert.Equal(t, domain.ProtocolActivityPub, rec.Protocol)
}

func TestProcess_ActivityPub_PhotoAttached(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	source := "https://alice.example/photo/1"
	e.http.addHTML(source, `<html><body>
<article class="h-entry">
  <a class="u-url" href="https://alice.example/photo/1"></a>
  <div class="e-content">Look at this</div>
  <img class="u-photo" src="https://alice.example/cat.jpg">
  <a class="u-in-reply-to" href="https://mastodon.example/@bob/5"></a>
</article>
</body></html>`)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"inbox": "https://mastodon.example/inbox"
	}`)

	err := e.svc.Process(context.Background(), source, target)
	require.NoError(t, err)

	require.Len(t, e.http.posts, 1)
	var create map[string]any
	require.NoError(t, json.Unmarshal(e.http.posts[0].body, &create))
	obj := create["object"].(map[string]any)
	img, ok := obj["image"].(map[string]any)
	require.True(t, ok, "photo must become an attached image: %v", obj)
	assert.Equal(t, "https://alice.example/cat.jpg", img["url"])
}

func TestProcess_ActivityPub_InlineInbox(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"inbox": "https://mastodon.example/inbox"
	}`)

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	require.Len(t, e.http.posts, 1)
	assert.Equal(t, "https://mastodon.example/inbox", e.http.posts[0].url)
}

func TestProcess_ActivityPub_LDJSONTarget(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.pages[target] = &fetch.Result{
		Body: []byte(`{
			"type": "Note",
			"id": "https://mastodon.example/@bob/5",
			"inbox": "https://mastodon.example/inbox"
		}`),
		ContentType: "application/ld+json",
		FinalURL:    target,
	}

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	require.Len(t, e.http.posts, 1, "ld+json answer must be delivered over ActivityPub")
	assert.Equal(t, "https://mastodon.example/inbox", e.http.posts[0].url)
	assert.Empty(t, e.salmon.slapped)
}

func TestProcess_ActivityPub_RelativeInbox(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"attributedTo": "https://mastodon.example/users/bob"
	}`)
	e.http.addAS2("https://mastodon.example/users/bob", `{
		"id": "https://mastodon.example/users/bob",
		"inbox": "/users/bob/inbox"
	}`)

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	require.Len(t, e.http.posts, 1)
	assert.Equal(t, "https://mastodon.example/users/bob/inbox", e.http.posts[0].url)
}

func TestProcess_NoInboxFallsBackToSalmon(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"attributedTo": "https://mastodon.example/users/bob"
	}`)
	e.http.addAS2("https://mastodon.example/users/bob", `{"id": "https://mastodon.example/users/bob"}`)

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	assert.Empty(t, e.http.posts, "no inbox to deliver to")
	assert.Equal(t, "https://blog.example/salmon", e.salmon.slapped)

	rec, ok := e.responses.records[domain.ResponseID(sourceURL, target)]
	require.True(t, ok)
	assert.Equal(t, domain.ProtocolOStatus, rec.Protocol)
	assert.Equal(t, domain.StatusComplete, rec.Status)
}

func TestProcess_WrappedTargetUnwrapped(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://mastodon.example/@bob/5"
	e.http.addAS2(target, `{
		"type": "Note",
		"id": "https://mastodon.example/@bob/5",
		"inbox": "https://mastodon.example/inbox"
	}`)

	err := e.svc.Process(context.Background(), sourceURL, baseURL+"/r/"+target)
	require.NoError(t, err)

	rec, ok := e.responses.records[domain.ResponseID(sourceURL, target)]
	require.True(t, ok, "record must be keyed by the unwrapped target: %v", e.responses.records)
	assert.Equal(t, target, rec.Target)
}

func TestProcess_SalmonOnHTMLTarget(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://blog.example/post"
	e.http.addHTML(target, `<html><body>
<article class="h-entry">
  <a class="p-author h-card" href="https://blog.example/~bob">Bob</a>
</article>
</body></html>`)

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	assert.Equal(t, "https://blog.example/salmon", e.salmon.slapped)
	require.NotNil(t, e.salmon.delivered)

	// the target author got tagged for a mention link
	var tagged bool
	for _, tag := range e.salmon.delivered.Tags {
		if tag.URL == "https://blog.example/~bob" {
			tagged = true
		}
	}
	assert.True(t, tagged, "target author not tagged: %+v", e.salmon.delivered.Tags)

	rec, ok := e.responses.records[domain.ResponseID(sourceURL, target)]
	require.True(t, ok)
	assert.Equal(t, domain.StatusComplete, rec.Status)
	assert.Equal(t, domain.ProtocolOStatus, rec.Protocol)
}

func TestProcess_SalmonOnClientError(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://blog.example/post"
	e.http.errs[target] = &domain.FetchError{URL: target, Status: http.StatusUnauthorized}

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.NoError(t, err)

	assert.Equal(t, "https://blog.example/salmon", e.salmon.slapped)
}

func TestProcess_ProbeServerErrorPropagates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://blog.example/post"
	e.http.errs[target] = &domain.FetchError{URL: target, Status: http.StatusBadGateway}

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.Error(t, err)
	fe, ok := domain.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, fe.Status)
	assert.Empty(t, e.salmon.slapped, "5xx must not fall back to salmon")
}

func TestProcess_SalmonDiscoveryExhausted(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://blog.example/post"
	e.http.addHTML(target, `<html></html>`)
	e.salmon.discoverErr = domain.ErrNoSalmonEndpoint

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.ErrorIs(t, err, domain.ErrNoSalmonEndpoint)
}

func TestProcess_SalmonDeliveryFailureRecorded(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	target := "https://blog.example/post"
	e.http.addHTML(target, `<html></html>`)
	e.salmon.deliverErr = errors.New("slap refused")

	err := e.svc.Process(context.Background(), sourceURL, target)
	require.ErrorIs(t, err, e.salmon.deliverErr)

	rec, ok := e.responses.records[domain.ResponseID(sourceURL, target)]
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, rec.Status)
}

func TestProcess_SourceWithoutEntry(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.http.addHTML("https://alice.example/bare", `<html><body>nothing</body></html>`)

	err := e.svc.Process(context.Background(), "https://alice.example/bare", "https://blog.example/post")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcess_InvalidURLs(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	err := e.svc.Process(context.Background(), "not a url", "https://blog.example/post")
	require.ErrorIs(t, err, domain.ErrValidation)

	err = e.svc.Process(context.Background(), sourceURL, "ftp://blog.example/post")
	require.ErrorIs(t, err, domain.ErrValidation)
}
