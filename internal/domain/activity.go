package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActivityStreams constants.
const (
	ContextAS2     = "https://www.w3.org/ns/activitystreams"
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

// Activity is a loosely typed ActivityStreams 2.0 JSON object. Inbound
// activities keep fields this bridge does not understand, and delivery
// snapshots must round-trip them, so the representation stays a map with
// typed accessors rather than a fixed struct.
type Activity map[string]any

// ParseActivity decodes an AS2 JSON body.
func ParseActivity(body []byte) (Activity, error) {
	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("parse activity: %w: %v", ErrValidation, err)
	}
	if a == nil {
		return nil, fmt.Errorf("parse activity: empty body: %w", ErrValidation)
	}
	return a, nil
}

// Str returns the string value of a top-level field, or "".
func (a Activity) Str(key string) string {
	s, _ := a[key].(string)
	return s
}

// Type returns the AS2 type field.
func (a Activity) Type() string { return a.Str("type") }

// ID returns the AS2 id field.
func (a Activity) ID() string { return a.Str("id") }

// URL returns the AS2 url field.
func (a Activity) URL() string { return a.Str("url") }

// SourceID is the identifier used to key delivery records and build the
// render-proxy URL: the activity's url, falling back to its id, with any
// fragment marker replaced so the result stays a fetchable URL.
func (a Activity) SourceID() string {
	id := a.URL()
	if id == "" {
		id = a.ID()
	}
	return strings.ReplaceAll(id, "#", "__")
}

// Object returns the embedded object as an Activity, or nil when the
// object field is absent or a bare id string.
func (a Activity) Object() Activity {
	if m, ok := a["object"].(map[string]any); ok {
		return Activity(m)
	}
	return nil
}

// ObjectID returns the object's id whether the field is a bare string or
// an embedded object.
func (a Activity) ObjectID() string {
	switch v := a["object"].(type) {
	case string:
		return v
	case map[string]any:
		return Activity(v).ID()
	}
	return ""
}

// Actor returns the embedded actor object, or nil when the actor field is
// absent or a bare id string.
func (a Activity) Actor() Activity {
	if m, ok := a["actor"].(map[string]any); ok {
		return Activity(m)
	}
	return nil
}

// ActorID returns the actor's id whether the field is a bare string or an
// embedded object.
func (a Activity) ActorID() string {
	switch v := a["actor"].(type) {
	case string:
		return v
	case map[string]any:
		return Activity(v).ID()
	}
	return ""
}

// SetActor replaces the actor field with an embedded object.
func (a Activity) SetActor(actor Activity) {
	a["actor"] = map[string]any(actor)
}

// InReplyTo returns the first reply-target URL. AS1 allows a list of
// objects here and AS2 allows a bare string; both shapes are accepted.
func (a Activity) InReplyTo() string {
	return firstURL(a["inReplyTo"])
}

// AttributedTo returns the first author reference, whatever its shape.
func (a Activity) AttributedTo() string {
	return firstURL(a["attributedTo"])
}

// firstURL extracts a URL from a string, an object with url/id, or the
// first element of a list of either.
func firstURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		o := Activity(t)
		if u := o.URL(); u != "" {
			return u
		}
		return o.ID()
	case []any:
		if len(t) > 0 {
			return firstURL(t[0])
		}
	}
	return ""
}

// Clone returns a deep copy via a JSON round trip.
func (a Activity) Clone() Activity {
	b, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var out Activity
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// JSON serializes the activity.
func (a Activity) JSON() ([]byte, error) {
	return json.Marshal(a)
}

// objectTypes are AS2 object types accepted as bare reply objects, without
// a Create wrapper.
var objectTypes = map[string]bool{
	"Note":    true,
	"Article": true,
	"Comment": true,
	"Image":   true,
	"Video":   true,
	"Audio":   true,
}

// Classified is the result of the single ingress classification step.
type Classified struct {
	Kind    ActivityKind
	RawType string

	// Activity is the full activity as received (Create wrapper included);
	// it becomes the delivery-record snapshot.
	Activity Activity

	// Object is what the handler operates on: the unwrapped Create object
	// for replies, the activity itself otherwise.
	Object Activity

	// Target is the delivery target URL, before redirect unwrapping.
	Target string
}

// Classify maps an inbound activity onto the closed set of handled kinds.
// Returns ErrUnsupportedActivity for anything outside it.
func Classify(a Activity) (*Classified, error) {
	t := a.Type()
	switch {
	case t == "Create":
		obj := a.Object()
		if obj == nil {
			return nil, fmt.Errorf("create activity has no embedded object: %w", ErrValidation)
		}
		target := obj.InReplyTo()
		if target == "" {
			return nil, fmt.Errorf("reply object has no inReplyTo: %w", ErrValidation)
		}
		return &Classified{Kind: KindReply, RawType: t, Activity: a, Object: obj, Target: target}, nil

	case t == "Like" || t == "Announce":
		target := a.ObjectID()
		if target == "" {
			return nil, fmt.Errorf("%s activity has no object: %w", strings.ToLower(t), ErrValidation)
		}
		return &Classified{Kind: KindLike, RawType: t, Activity: a, Object: a, Target: target}, nil

	case t == "Follow":
		target := a.ObjectID()
		if target == "" {
			return nil, fmt.Errorf("follow activity has no object: %w", ErrValidation)
		}
		return &Classified{Kind: KindFollow, RawType: t, Activity: a, Object: a, Target: target}, nil

	case objectTypes[t] || (t == "" && a.InReplyTo() != ""):
		target := a.InReplyTo()
		if target == "" {
			return nil, fmt.Errorf("reply object has no inReplyTo: %w", ErrValidation)
		}
		return &Classified{Kind: KindReply, RawType: t, Activity: a, Object: a, Target: target}, nil

	default:
		return nil, fmt.Errorf("%q: %w", t, ErrUnsupportedActivity)
	}
}
