package domain

import (
	"encoding/json"
	"time"
)

// Response is the delivery record for one translated activity or mention.
// There is at most one per (source, target) pair; repeated deliveries for
// the same pair update the status and snapshot in place. Records are never
// deleted — they double as the idempotency and audit log.
type Response struct {
	ID        string
	Source    string
	Target    string
	Direction Direction
	Protocol  Protocol
	Status    DeliveryStatus

	// SourceAS2 is the AS2/AS1 JSON actually delivered.
	SourceAS2 json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResponseID builds the composite record key.
func ResponseID(source, target string) string {
	return source + " " + target
}
