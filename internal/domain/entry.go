package domain

// Entry is the intermediate object model for outbound content: an
// ActivityStreams 1 style view of a microformats2 h-entry. The outbound
// processor massages it into AS2 for ActivityPub delivery or hands it to
// the Atom renderer for Salmon delivery.
type Entry struct {
	ID        string
	URL       string
	Name      string
	Content   string
	Published string
	Author    *Card
	InReplyTo []Reference
	Tags      []Reference
	Photo     string
}

// Card is a person reference (h-card / AS1 author).
type Card struct {
	Name  string
	URL   string
	Photo string
}

// Reference points at another object by id and/or URL.
type Reference struct {
	ID  string
	URL string
}
