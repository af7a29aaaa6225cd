package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")

	// Protocol-translation failures. Each is terminal for the delivery it
	// occurs in; none is retried by this service.
	ErrUnsupportedActivity = errors.New("unsupported activity type")
	ErrNoActor             = errors.New("no actor or attributedTo")
	ErrNoInbox             = errors.New("no inbox")
	ErrNoWebmentionTarget  = errors.New("no webmention endpoint")
	ErrNoAtomLink          = errors.New("no atom link")
	ErrNoSalmonEndpoint    = errors.New("no salmon endpoint")
	ErrSigning             = errors.New("signing error")
)

// FetchError reports a non-2xx response from an outbound HTTP call.
// The status code is preserved because processors branch on it: a 4xx on
// the ActivityPub probe is a fallback signal, not a failure.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// IsClientError reports whether the failure was a 4xx response.
func (e *FetchError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// AsFetchError unwraps err to a *FetchError if there is one in the chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
