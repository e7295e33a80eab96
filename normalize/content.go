package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/robertmeta/feed-push/model"
)

// minTextLen is the rune count a forwarded body must exceed to be shown.
const minTextLen = 2

// Classification is the outcome of Classify for one entry.
type Classification struct {
	IsForward bool
	Text      string
}

// Classifier separates original posts from forwards and extracts their
// display text according to a profile's policy.
type Classifier struct {
	markers       []string
	prefixes      []*regexp.Regexp
	mode          model.Mode
	placeholder   string
	summaryMaxLen int
}

// NewClassifier builds a Classifier from a profile. Unset profile fields
// take their defaults.
func NewClassifier(p model.Profile) (*Classifier, error) {
	p = p.WithDefaults()

	prefixes := make([]*regexp.Regexp, 0, len(p.ForwardPrefixPatterns))
	for i, pattern := range p.ForwardPrefixPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid forward prefix pattern at index %d: %w", i, err)
		}
		prefixes = append(prefixes, re)
	}

	return &Classifier{
		markers:       p.PlaceholderMarkers,
		prefixes:      prefixes,
		mode:          p.Mode,
		placeholder:   p.NoTextPlaceholder,
		summaryMaxLen: p.SummaryMaxLen,
	}, nil
}

// IsForward reports whether the title is empty or a placeholder.
// Marker matching is case-sensitive.
func (c *Classifier) IsForward(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return true
	}
	for _, marker := range c.markers {
		if marker != "" && strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// Classify decides whether the entry is a forward and returns its display
// text. The text never contains HTML tags or http(s) URLs.
func (c *Classifier) Classify(e model.Entry) Classification {
	if !c.IsForward(e.Title) {
		return Classification{Text: collapse(StripURLs(StripTags(e.Title)))}
	}

	if text := c.forwardText(e.Content); text != "" {
		return Classification{IsForward: true, Text: text}
	}
	if c.mode == model.ModeSummary {
		if text := c.forwardText(e.Summary); text != "" {
			return Classification{IsForward: true, Text: truncate(text, c.summaryMaxLen)}
		}
	}
	return Classification{IsForward: true, Text: c.placeholder}
}

// forwardText cleans an HTML body and returns "" when too little is left.
func (c *Classifier) forwardText(body string) string {
	text := strings.TrimSpace(StripURLs(HTMLText(body)))
	text = c.stripPrefix(text)
	text = collapse(text)
	if utf8.RuneCountInString(text) <= minTextLen {
		return ""
	}
	return text
}

// stripPrefix removes at most one leading boilerplate prefix.
func (c *Classifier) stripPrefix(text string) string {
	for _, re := range c.prefixes {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			return strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}
