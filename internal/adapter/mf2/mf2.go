// Package mf2 parses microformats2 HTML: h-entries into the bridge's AS1
// entry model, representative h-cards for actor documents, and rel links
// for Webmention and Atom discovery.
package mf2

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"willnorris.com/go/microformats"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

// ParseEntry finds the first h-entry in an HTML document and converts it
// to the AS1 entry model. base resolves relative URLs.
func ParseEntry(html []byte, base *url.URL) (*domain.Entry, error) {
	data := microformats.Parse(bytes.NewReader(html), base)

	mf := findFirst(data.Items, "h-entry")
	if mf == nil {
		return nil, fmt.Errorf("%s: no h-entry found: %w", base, domain.ErrValidation)
	}

	entry := &domain.Entry{
		ID:        propString(mf, "uid"),
		URL:       propString(mf, "url"),
		Name:      propString(mf, "name"),
		Content:   propHTML(mf, "content"),
		Published: propString(mf, "published"),
		Photo:     propString(mf, "photo"),
	}
	if entry.Content == "" {
		entry.Content = propString(mf, "content")
	}
	if entry.ID == "" {
		entry.ID = entry.URL
	}
	if entry.URL == "" && base != nil {
		entry.URL = base.String()
	}

	for _, v := range mf.Properties["in-reply-to"] {
		if u := anyURL(v); u != "" {
			entry.InReplyTo = append(entry.InReplyTo, domain.Reference{URL: u})
		}
	}

	if card := propCard(mf, "author"); card != nil {
		entry.Author = card
	}

	return entry, nil
}

// RepresentativeCard finds the page's representative h-card: the first
// h-card whose url matches the page URL, falling back to the first h-card
// with any url or name. Returns domain.ErrValidation when the page has no
// h-card at all.
func RepresentativeCard(html []byte, page *url.URL) (*domain.Card, error) {
	data := microformats.Parse(bytes.NewReader(html), page)

	var first *domain.Card
	for _, item := range flatten(data.Items) {
		if !hasType(item, "h-card") {
			continue
		}
		card := toCard(item)
		if card == nil {
			continue
		}
		if page != nil && sameURL(card.URL, page.String()) {
			return card, nil
		}
		if first == nil {
			first = card
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%s: no representative h-card found: %w", page, domain.ErrValidation)
	}
	return first, nil
}

// WebmentionEndpoint extracts the rel=webmention endpoint from an HTML
// document, resolved against base. Returns domain.ErrNoWebmentionTarget
// when the page declares none.
func WebmentionEndpoint(html []byte, base *url.URL) (string, error) {
	data := microformats.Parse(bytes.NewReader(html), base)
	for _, rel := range []string{"webmention", "http://webmention.org/"} {
		if urls := data.Rels[rel]; len(urls) > 0 {
			return urls[0], nil
		}
	}
	return "", fmt.Errorf("%s: %w", base, domain.ErrNoWebmentionTarget)
}

// AtomLink extracts the rel=alternate Atom feed link from an HTML
// document, resolved against base. Returns domain.ErrNoAtomLink when the
// page declares none.
func AtomLink(html []byte, base *url.URL) (string, error) {
	data := microformats.Parse(bytes.NewReader(html), base)
	for u, rel := range data.RelURLs {
		if rel.Type == "application/atom+xml" && contains(rel.Rels, "alternate") {
			return u, nil
		}
	}
	// some sites declare the feed without a type attribute
	for _, u := range data.Rels["alternate"] {
		if strings.Contains(u, "atom") || strings.Contains(u, "feed") {
			return u, nil
		}
	}
	return "", fmt.Errorf("%s: %w", base, domain.ErrNoAtomLink)
}

// findFirst walks items depth-first for the first microformat of a type.
func findFirst(items []*microformats.Microformat, typ string) *microformats.Microformat {
	for _, item := range items {
		if hasType(item, typ) {
			return item
		}
		if found := findFirst(item.Children, typ); found != nil {
			return found
		}
		for _, vals := range item.Properties {
			for _, v := range vals {
				if child, ok := v.(*microformats.Microformat); ok && hasType(child, typ) {
					return child
				}
			}
		}
	}
	return nil
}

// flatten returns items and all their children, depth-first.
func flatten(items []*microformats.Microformat) []*microformats.Microformat {
	var out []*microformats.Microformat
	for _, item := range items {
		out = append(out, item)
		out = append(out, flatten(item.Children)...)
	}
	return out
}

func hasType(mf *microformats.Microformat, typ string) bool {
	return contains(mf.Type, typ)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// propString returns the first plain value of a property, unwrapping the
// value/html maps e-* properties produce and the Value of nested items.
func propString(mf *microformats.Microformat, key string) string {
	for _, v := range mf.Properties[key] {
		if s := anyString(v); s != "" {
			return s
		}
	}
	return ""
}

// propHTML returns the first html rendering of an e-* property.
func propHTML(mf *microformats.Microformat, key string) string {
	for _, v := range mf.Properties[key] {
		switch t := v.(type) {
		case map[string]string:
			if s := t["html"]; s != "" {
				return s
			}
		case map[string]any:
			if s, _ := t["html"].(string); s != "" {
				return s
			}
		}
	}
	return ""
}

func propCard(mf *microformats.Microformat, key string) *domain.Card {
	for _, v := range mf.Properties[key] {
		switch t := v.(type) {
		case *microformats.Microformat:
			if card := toCard(t); card != nil {
				return card
			}
		case string:
			if t == "" {
				continue
			}
			// bare author value: URL or name
			if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
				return &domain.Card{URL: t}
			}
			return &domain.Card{Name: t}
		}
	}
	return nil
}

func toCard(mf *microformats.Microformat) *domain.Card {
	card := &domain.Card{
		Name:  propString(mf, "name"),
		URL:   propString(mf, "url"),
		Photo: propString(mf, "photo"),
	}
	if card.Name == "" && mf.Value != "" {
		card.Name = mf.Value
	}
	if card.Name == "" && card.URL == "" {
		return nil
	}
	return card
}

func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]string:
		return t["value"]
	case map[string]any:
		s, _ := t["value"].(string)
		return s
	case *microformats.Microformat:
		return t.Value
	}
	return ""
}

func anyURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]string:
		return t["value"]
	case map[string]any:
		s, _ := t["value"].(string)
		return s
	case *microformats.Microformat:
		if u := propString(t, "url"); u != "" {
			return u
		}
		return t.Value
	}
	return ""
}

// sameURL compares URLs ignoring a trailing slash difference.
func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/") && a != ""
}
