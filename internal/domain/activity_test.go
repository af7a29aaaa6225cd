package domain

import (
	"errors"
	"testing"
)

func TestParseActivity_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseActivity([]byte("not json")); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := ParseActivity([]byte("null")); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for null body, got %v", err)
	}
}

func TestClassify_CreateUnwrapsToObject(t *testing.T) {
	t.Parallel()

	a := Activity{
		"type": "Create",
		"id":   "http://this/reply/as2",
		"object": map[string]any{
			"type":      "Note",
			"id":        "http://this/reply/id",
			"url":       "http://this/reply",
			"inReplyTo": "http://orig/post",
		},
	}

	c, err := Classify(a)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindReply {
		t.Errorf("Kind = %q, want reply", c.Kind)
	}
	if c.Target != "http://orig/post" {
		t.Errorf("Target = %q", c.Target)
	}
	if c.Object.SourceID() != "http://this/reply" {
		t.Errorf("SourceID = %q, want object url", c.Object.SourceID())
	}
	// snapshot keeps the Create wrapper
	if c.Activity.Type() != "Create" {
		t.Errorf("snapshot type = %q", c.Activity.Type())
	}
}

func TestClassify_BareNote(t *testing.T) {
	t.Parallel()

	a := Activity{
		"type":      "Note",
		"id":        "http://this/reply/id",
		"inReplyTo": "http://orig/post",
	}

	c, err := Classify(a)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindReply || c.Target != "http://orig/post" {
		t.Errorf("got kind=%q target=%q", c.Kind, c.Target)
	}
}

func TestClassify_LikeAndAnnounce(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{"Like", "Announce"} {
		a := Activity{
			"type":   typ,
			"id":     "http://this/like#ok",
			"object": "http://orig/post",
			"actor":  "http://orig/actor",
		}
		c, err := Classify(a)
		if err != nil {
			t.Fatalf("Classify(%s): %v", typ, err)
		}
		if c.Kind != KindLike {
			t.Errorf("%s: Kind = %q", typ, c.Kind)
		}
		if c.Target != "http://orig/post" {
			t.Errorf("%s: Target = %q", typ, c.Target)
		}
		if c.Object.SourceID() != "http://this/like__ok" {
			t.Errorf("%s: SourceID = %q, want fragment escaped", typ, c.Object.SourceID())
		}
	}
}

func TestClassify_Follow(t *testing.T) {
	t.Parallel()

	a := Activity{
		"type":   "Follow",
		"id":     "https://mastodon.example/6d1a",
		"actor":  "https://mastodon.example/users/swentel",
		"object": "https://fed.example.com/realize.be",
	}

	c, err := Classify(a)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindFollow {
		t.Errorf("Kind = %q", c.Kind)
	}
	if c.Target != "https://fed.example.com/realize.be" {
		t.Errorf("Target = %q", c.Target)
	}
}

func TestClassify_Unsupported(t *testing.T) {
	t.Parallel()

	a := Activity{
		"type":   "Block",
		"id":     "https://xoxo.zone/users/aaronpk#follows/40",
		"actor":  "https://xoxo.zone/users/aaronpk",
		"object": "http://target.example/",
	}

	if _, err := Classify(a); !errors.Is(err, ErrUnsupportedActivity) {
		t.Errorf("expected ErrUnsupportedActivity, got %v", err)
	}
}

func TestActivity_ActorAndObjectAccessors(t *testing.T) {
	t.Parallel()

	a := Activity{
		"actor": map[string]any{"id": "http://orig/actor", "inbox": "http://follower/inbox"},
		"object": map[string]any{"id": "http://orig/post"},
	}
	if a.ActorID() != "http://orig/actor" {
		t.Errorf("ActorID = %q", a.ActorID())
	}
	if a.Actor().Str("inbox") != "http://follower/inbox" {
		t.Errorf("Actor().inbox = %q", a.Actor().Str("inbox"))
	}
	if a.ObjectID() != "http://orig/post" {
		t.Errorf("ObjectID = %q", a.ObjectID())
	}

	b := Activity{"actor": "http://orig/actor", "object": "http://orig/post"}
	if b.ActorID() != "http://orig/actor" || b.ObjectID() != "http://orig/post" {
		t.Errorf("string accessors: actor=%q object=%q", b.ActorID(), b.ObjectID())
	}
	if b.Actor() != nil {
		t.Error("Actor() should be nil for bare id")
	}
}

func TestActivity_InReplyToShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		val  any
		want string
	}{
		{"string", "http://orig/post", "http://orig/post"},
		{"list of strings", []any{"http://orig/post", "http://other"}, "http://orig/post"},
		{"list of objects", []any{map[string]any{"url": "http://orig/post"}}, "http://orig/post"},
		{"object with id only", map[string]any{"id": "http://orig/post"}, "http://orig/post"},
		{"absent", nil, ""},
	}
	for _, tc := range cases {
		a := Activity{}
		if tc.val != nil {
			a["inReplyTo"] = tc.val
		}
		if got := a.InReplyTo(); got != tc.want {
			t.Errorf("%s: InReplyTo = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestActivity_CloneIsDeep(t *testing.T) {
	t.Parallel()

	a := Activity{"actor": map[string]any{"id": "http://orig/actor"}}
	b := a.Clone()
	b.Actor()["id"] = "changed"
	if a.ActorID() != "http://orig/actor" {
		t.Error("Clone shares nested maps with the original")
	}
}
