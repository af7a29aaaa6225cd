package rest

import (
	"net/http"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/redirect"
)

// RedirectHandler resolves wrapped URLs: GET /r/<url> 301s to <url>, so
// ids the bridge hands out to ActivityPub peers stay dereferenceable.
type RedirectHandler struct {
	wrapper *redirect.Wrapper
}

// NewRedirectHandler creates a RedirectHandler.
func NewRedirectHandler(wrapper *redirect.Wrapper) *RedirectHandler {
	return &RedirectHandler{wrapper: wrapper}
}

// Get handles GET /r/*. The wrapped URL is taken from the raw request URI
// so its query string survives the round trip.
func (h *RedirectHandler) Get(w http.ResponseWriter, r *http.Request) {
	wrapped, ok := strings.CutPrefix(r.RequestURI, "/r/")
	if !ok || wrapped == "" {
		writeError(w, http.StatusBadRequest, "nothing to unwrap")
		return
	}

	dest := h.wrapper.Unwrap(h.wrapper.BaseURL() + "/r/" + wrapped)
	if !strings.HasPrefix(dest, "http://") && !strings.HasPrefix(dest, "https://") {
		writeError(w, http.StatusBadRequest, "not an absolute http url")
		return
	}

	http.Redirect(w, r, dest, http.StatusMovedPermanently)
}
