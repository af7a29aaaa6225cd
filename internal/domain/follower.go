package domain

import (
	"encoding/json"
	"time"
)

// Follower records that a fediverse actor follows a bridged site. One
// record per (followed domain, follower actor); a newer Follow from the
// same actor overwrites the snapshot.
type Follower struct {
	ID      string
	Domain  string
	ActorID string

	// LastFollow is the full Follow activity as last received, with the
	// resolved actor object embedded and object ids still bridge-wrapped.
	// Outbound fan-out renders from this snapshot.
	LastFollow json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FollowerID builds the composite record key.
func FollowerID(domain, actorID string) string {
	return domain + " " + actorID
}
