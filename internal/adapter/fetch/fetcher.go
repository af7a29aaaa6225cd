// Package fetch implements the bridge's only outbound HTTP client: a
// content-negotiating fetcher with per-call timeouts, redirect resolution,
// and status-preserving errors that processors can branch on.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/config"
	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Content types and Accept cascades used across the bridge.
const (
	ContentTypeAS2  = "application/activity+json"
	ContentTypeAtom = "application/atom+xml"
	ContentTypeHTML = "text/html"

	// AcceptAS2 requests an ActivityPub object only.
	AcceptAS2 = ContentTypeAS2

	// AcceptAS2HTML prefers AS2 but tolerates HTML; the protocol probe
	// uses the resolved content type to pick the delivery path.
	AcceptAS2HTML = `application/activity+json; q=0.9, text/html; q=0.7`
)

// maxBodySize caps response bodies read from federated peers.
const maxBodySize = 5 << 20

// Result is a completed fetch.
type Result struct {
	Body []byte

	// ContentType is the response media type without parameters.
	ContentType string

	// FinalURL is the URL after following redirects; Salmon and Atom
	// discovery key off the post-redirect location.
	FinalURL string
}

// IsHTML reports whether the response resolved to an HTML document.
func (r *Result) IsHTML() bool {
	return r.ContentType == ContentTypeHTML || r.ContentType == "application/xhtml+xml"
}

// Fetcher performs all outbound HTTP calls for the bridge.
type Fetcher struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

// New creates a Fetcher from bridge settings. The client timeout bounds
// every individual call so one slow peer cannot stall a discovery chain.
func New(cfg config.BridgeConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		userAgent: cfg.UserAgent,
		log:       logger.With("adapter", "fetch"),
	}
}

// Get fetches a URL with the given Accept header. Non-2xx responses fail
// with a *domain.FetchError carrying the status code.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: create request: %w", rawURL, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	f.setCommonHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{URL: finalURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}

	f.log.DebugContext(ctx, "fetched",
		slog.String("url", rawURL),
		slog.String("final_url", finalURL),
		slog.String("content_type", ct),
		slog.Int("bytes", len(body)),
	)

	return &Result{Body: body, ContentType: ct, FinalURL: finalURL}, nil
}

// Head resolves a URL with a HEAD request, following redirects, and
// returns the final URL. Used for cheap reachability and canonicalization
// checks without pulling the body.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("head %s: create request: %w", rawURL, err)
	}
	f.setCommonHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if resp.StatusCode >= 400 {
		return "", &domain.FetchError{URL: finalURL, Status: resp.StatusCode}
	}
	return finalURL, nil
}

// PostForm delivers a form-encoded POST (a Webmention).
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("post %s: create request: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	f.setCommonHeaders(req)

	return f.doPost(ctx, req)
}

// Post delivers a raw body with the given content type. If sign is
// non-nil it runs after headers are set, before the request goes out;
// signed ActivityPub deliveries and Salmon slaps both go through here.
func (f *Fetcher) Post(ctx context.Context, rawURL, contentType string, body []byte, sign func(*http.Request) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: create request: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", contentType)
	f.setCommonHeaders(req)
	if sign != nil {
		if err := sign(req); err != nil {
			return err
		}
	}

	return f.doPost(ctx, req)
}

func (f *Fetcher) doPost(ctx context.Context, req *http.Request) error {
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize)) //nolint:errcheck

	f.log.InfoContext(ctx, "delivered",
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.FetchError{URL: req.URL.String(), Status: resp.StatusCode}
	}
	return nil
}

func (f *Fetcher) setCommonHeaders(req *http.Request) {
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
}
