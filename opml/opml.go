// Package opml converts between OPML subscription lists and feed profiles.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/robertmeta/feed-push/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements (feeds).
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or category in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns one profile per feed outline.
// Profile names are derived from the outline text, or the feed host when
// untitled, and made unique within the document.
func Parse(r io.Reader) ([]model.Profile, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	profiles := extractProfiles(doc.Body.Outlines)

	used := make(map[string]int, len(profiles))
	for i := range profiles {
		base := profiles[i].Name
		used[base]++
		if n := used[base]; n > 1 {
			profiles[i].Name = fmt.Sprintf("%s-%d", base, n)
		}
	}
	return profiles, nil
}

// extractProfiles walks outlines depth first; category outlines only
// contribute their children.
func extractProfiles(outlines []Outline) []model.Profile {
	var profiles []model.Profile

	for _, outline := range outlines {
		if outline.XMLUrl != "" {
			title, text := outline.Title, outline.Text
			if title == "" {
				title = text
			}
			if text == "" {
				text = title
			}
			profiles = append(profiles, model.Profile{
				Name:    nameFor(text, outline.XMLUrl),
				FeedURL: outline.XMLUrl,
				Banner:  title,
			})
		}

		if len(outline.Outlines) > 0 {
			profiles = append(profiles, extractProfiles(outline.Outlines)...)
		}
	}

	return profiles
}

func nameFor(title, feedURL string) string {
	if name := slug(title); name != "" {
		return name
	}
	if u, err := url.Parse(feedURL); err == nil {
		if name := slug(u.Hostname()); name != "" {
			return name
		}
	}
	return "feed"
}

// slug lowercases s and joins its letter and digit runs with dashes.
func slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "-")
}

// Generate writes an OPML document listing the profiles' feeds.
func Generate(w io.Writer, profiles []model.Profile) error {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "feed-push profiles",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	for _, p := range profiles {
		title := p.Banner
		if title == "" {
			title = p.Name
		}
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Type:   "rss",
			Text:   p.Name,
			Title:  title,
			XMLUrl: p.FeedURL,
		})
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}

	return nil
}
