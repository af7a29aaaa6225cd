// Package redirect implements the URL wrapping scheme that lets ActivityPub
// peers address bridge-owned identifiers for arbitrary external URLs.
package redirect

import (
	"net/url"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Wrapper maps external URLs to and from bridge-owned URLs. Pure, no I/O.
type Wrapper struct {
	baseURL string
	host    string
}

// NewWrapper creates a Wrapper for the bridge's public base URL
// (e.g. "https://fed.example.com").
func NewWrapper(baseURL string) *Wrapper {
	baseURL = strings.TrimRight(baseURL, "/")
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
	}
	return &Wrapper{baseURL: baseURL, host: host}
}

// BaseURL returns the bridge's public base URL without a trailing slash.
func (w *Wrapper) BaseURL() string { return w.baseURL }

// Host returns the bridge's own host.
func (w *Wrapper) Host() string { return w.host }

// Wrap converts an external URL into a bridge-owned redirect URL.
// Bridge-owned URLs and empty strings pass through unchanged.
func (w *Wrapper) Wrap(u string) string {
	if u == "" || strings.HasPrefix(u, w.baseURL+"/") || u == w.baseURL {
		return u
	}
	return w.baseURL + "/r/" + u
}

// Unwrap inverts Wrap. A wrapped URL yields the original; a bare bridge
// user URL (baseURL/<domain>) yields that domain's site; anything else is
// returned unchanged.
func (w *Wrapper) Unwrap(u string) string {
	prefix := w.baseURL + "/r/"
	if strings.HasPrefix(u, prefix) {
		return u[len(prefix):]
	}
	if rest, ok := strings.CutPrefix(u, w.baseURL+"/"); ok && rest != "" && !strings.ContainsAny(rest, "/?#") {
		return "https://" + rest + "/"
	}
	return u
}

// UnwrapActivity walks an activity and unwraps every bridge-owned URL in
// it, including nested objects and lists.
func (w *Wrapper) UnwrapActivity(a domain.Activity) domain.Activity {
	out, ok := w.unwrapValue(map[string]any(a)).(map[string]any)
	if !ok {
		return a
	}
	return domain.Activity(out)
}

func (w *Wrapper) unwrapValue(v any) any {
	switch t := v.(type) {
	case string:
		return w.Unwrap(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = w.unwrapValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = w.unwrapValue(vv)
		}
		return out
	}
	return v
}

// UserURL is the bridge-owned actor id for a bridged domain.
func (w *Wrapper) UserURL(domain string) string {
	return w.baseURL + "/" + domain
}

// RenderURL builds the render-proxy URL used as the Webmention source for
// an inbound activity.
func (w *Wrapper) RenderURL(source, target string) string {
	return w.baseURL + "/render?source=" + url.QueryEscape(source) +
		"&target=" + url.QueryEscape(target)
}

// AcceptID builds the id of the Accept activity sent for a Follow.
func (w *Wrapper) AcceptID(targetDomain, followID string) string {
	return "tag:" + w.host + ":accept/" + targetDomain + "/" + followID
}
