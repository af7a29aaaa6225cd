package domain

// Direction says which way a delivery crossed the bridge.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func (d Direction) String() string { return string(d) }

func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Protocol is the wire protocol a delivery was translated into.
type Protocol string

const (
	ProtocolActivityPub Protocol = "activitypub"
	ProtocolOStatus     Protocol = "ostatus"
)

func (p Protocol) String() string { return string(p) }

func (p Protocol) IsValid() bool {
	return p == ProtocolActivityPub || p == ProtocolOStatus
}

// DeliveryStatus is the lifecycle state of a delivery record.
type DeliveryStatus string

const (
	StatusNew      DeliveryStatus = "new"
	StatusComplete DeliveryStatus = "complete"
	StatusFailed   DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// ActivityKind is the closed set of inbound activity shapes the bridge
// handles. Classification happens once at ingress; everything downstream
// dispatches on the kind, not on the raw type string.
type ActivityKind string

const (
	KindReply  ActivityKind = "reply"
	KindLike   ActivityKind = "like"
	KindFollow ActivityKind = "follow"
)
