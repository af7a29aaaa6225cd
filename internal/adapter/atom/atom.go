// Package atom renders AS1 entries as Atom XML for Salmon delivery and
// extracts typed links from remote Atom feeds during endpoint discovery.
package atom

import (
	"encoding/xml"
	"fmt"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

const (
	nsAtom    = "http://www.w3.org/2005/Atom"
	nsThread  = "http://purl.org/syndication/thread/1.0"
	nsActivit = "http://activitystrea.ms/spec/1.0/"
)

// Salmon link rels seen in the wild, in preference order.
var salmonRels = []string{
	"salmon",
	"http://salmon-protocol.org/ns/salmon-replies",
	"http://salmon-protocol.org/ns/salmon-mention",
}

type entryXML struct {
	XMLName   xml.Name     `xml:"entry"`
	NSAtom    string       `xml:"xmlns,attr"`
	NSThread  string       `xml:"xmlns:thr,attr"`
	NSAct     string       `xml:"xmlns:activity,attr"`
	ID        string       `xml:"id"`
	Title     string       `xml:"title,omitempty"`
	Verb      string       `xml:"activity:verb"`
	Author    *authorXML   `xml:"author,omitempty"`
	Published string       `xml:"published,omitempty"`
	Content   *contentXML  `xml:"content,omitempty"`
	InReplyTo []replyXML   `xml:"thr:in-reply-to"`
	Links     []linkXML    `xml:"link"`
}

type authorXML struct {
	Name string `xml:"name,omitempty"`
	URI  string `xml:"uri,omitempty"`
}

type contentXML struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type replyXML struct {
	Ref  string `xml:"ref,attr"`
	Href string `xml:"href,attr,omitempty"`
}

type linkXML struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// Render serializes an entry as a standalone Atom entry document. Replies
// carry thr:in-reply-to elements and mentioned people rel=mention links,
// which is what OStatus receivers key reply notification off.
func Render(entry *domain.Entry) ([]byte, error) {
	if entry.ID == "" && entry.URL == "" {
		return nil, fmt.Errorf("atom: entry has no id or url: %w", domain.ErrValidation)
	}

	doc := entryXML{
		NSAtom:    nsAtom,
		NSThread:  nsThread,
		NSAct:     nsActivit,
		ID:        entry.ID,
		Title:     entry.Name,
		Verb:      "http://activitystrea.ms/schema/1.0/post",
		Published: entry.Published,
	}
	if doc.ID == "" {
		doc.ID = entry.URL
	}
	if entry.URL != "" {
		doc.Links = append(doc.Links, linkXML{Rel: "alternate", Href: entry.URL})
	}
	if entry.Content != "" {
		doc.Content = &contentXML{Type: "html", Body: entry.Content}
	}
	if entry.Author != nil {
		doc.Author = &authorXML{Name: entry.Author.Name, URI: entry.Author.URL}
	}
	for _, ref := range entry.InReplyTo {
		doc.InReplyTo = append(doc.InReplyTo, replyXML{Ref: ref.URL, Href: ref.URL})
	}
	for _, tag := range entry.Tags {
		if tag.URL != "" {
			doc.Links = append(doc.Links, linkXML{Rel: "mention", Href: tag.URL})
		}
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("atom: marshal entry: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// feedXML has no XMLName so it accepts both <feed> documents and
// standalone <entry> documents.
type feedXML struct {
	Links   []linkXML      `xml:"link"`
	Authors []feedAuthor   `xml:"author"`
	Entries []struct {
		Links   []linkXML    `xml:"link"`
		Authors []feedAuthor `xml:"author"`
	} `xml:"entry"`
}

type feedAuthor struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
	URI   string `xml:"uri"`
}

// Author identifies the feed's author for Webfinger account guessing.
type Author struct {
	Name  string
	Email string
	URI   string
}

// SalmonEndpoint extracts the feed's Salmon endpoint, checking feed-level
// links first and then entry-level ones. Returns domain.ErrNoSalmonEndpoint
// when the feed declares none.
func SalmonEndpoint(feed []byte) (string, error) {
	var doc feedXML
	if err := xml.Unmarshal(feed, &doc); err != nil {
		return "", fmt.Errorf("atom: parse feed: %w", err)
	}

	links := doc.Links
	for _, e := range doc.Entries {
		links = append(links, e.Links...)
	}
	for _, rel := range salmonRels {
		for _, l := range links {
			if l.Rel == rel && l.Href != "" {
				return l.Href, nil
			}
		}
	}
	return "", domain.ErrNoSalmonEndpoint
}

// FeedAuthor extracts the author of a feed, checking feed-level authors
// first and then entry-level ones. Returns the zero Author when the feed
// names none.
func FeedAuthor(feed []byte) (Author, error) {
	var doc feedXML
	if err := xml.Unmarshal(feed, &doc); err != nil {
		return Author{}, fmt.Errorf("atom: parse feed: %w", err)
	}

	authors := doc.Authors
	for _, e := range doc.Entries {
		authors = append(authors, e.Authors...)
	}
	for _, a := range authors {
		if a.Name != "" || a.Email != "" || a.URI != "" {
			return Author{Name: a.Name, Email: a.Email, URI: a.URI}, nil
		}
	}
	return Author{}, nil
}
