// Package model defines the core data structures for feed-push.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// Entry is a single item read from the remote feed.
// Entries are snapshots of one fetch and are never persisted, apart from
// the link of the newest one.
type Entry struct {
	Link      string `json:"link"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"` // primary content body, usually HTML
	Summary   string `json:"summary,omitempty"` // RSS description or Atom summary
	Updated   string `json:"updated,omitempty"`
	Published string `json:"published,omitempty"`
}

// HasContent reports whether the entry carries a primary content body.
func (e *Entry) HasContent() bool {
	return strings.TrimSpace(e.Content) != ""
}

// Timestamp returns the raw updated timestamp, falling back to published.
func (e *Entry) Timestamp() string {
	if e.Updated != "" {
		return e.Updated
	}
	return e.Published
}

// DisplayItem is one rendered line of a digest.
type DisplayItem struct {
	Ordinal    int    `json:"ordinal"`
	Time       string `json:"time"`
	ForwardTag string `json:"forward_tag,omitempty"`
	Label      string `json:"label,omitempty"`
	Text       string `json:"text"`
	Link       string `json:"link"`
}

// IsForward reports whether the item came from a post without a real title.
func (d *DisplayItem) IsForward() bool {
	return d.ForwardTag != ""
}

// Mode selects how text is extracted from forwarded posts.
type Mode string

const (
	// ModeQuote uses only the content body and falls straight back to the
	// no-text placeholder.
	ModeQuote Mode = "quote"
	// ModeSummary tries the summary field before giving up.
	ModeSummary Mode = "summary"
)

const (
	DefaultMaxItems        = 300
	DefaultSummaryMaxLen   = 80
	DefaultSubjectTemplate = "{{.Profile}} digest | {{.Date}}"
)

// DefaultPlaceholderMarkers are title fragments that mark a post without
// original text.
var DefaultPlaceholderMarkers = []string{"[No Title]", "no title", "untitled", "- Post from "}

// DefaultForwardPrefixPatterns are boilerplate prefixes stripped from the
// start of a forwarded post's body.
var DefaultForwardPrefixPatterns = []string{`(?i)^RT:\s*`, `(?i)^RT\s+`, `(?i)^@\w+:\s*`}

// Theme holds the colours used by the digest template. Each value is a hex
// colour (#RGB or #RRGGBB) or a CSS colour name; empty takes the default.
type Theme struct {
	Banner  string `yaml:"banner" json:"banner"`
	Serial  string `yaml:"serial" json:"serial"`
	Time    string `yaml:"time" json:"time"`
	Forward string `yaml:"forward" json:"forward"`
	Text    string `yaml:"text" json:"text"`
	Link    string `yaml:"link" json:"link"`
}

// DefaultTheme is the palette of the original digest mail.
var DefaultTheme = Theme{
	Banner:  "#C8102E",
	Serial:  "#003366",
	Time:    "#FF8C00",
	Forward: "#E63946",
	Text:    "#1A1A1A",
	Link:    "#0066CC",
}

// Profile describes one feed and how its digest looks.
// Every feed variant is a Profile value rather than separate code.
type Profile struct {
	Name                  string   `yaml:"name" json:"name"`
	FeedURL               string   `yaml:"feed_url" json:"feed_url"`
	Mode                  Mode     `yaml:"mode,omitempty" json:"mode"`
	PlaceholderMarkers    []string `yaml:"placeholder_markers,omitempty" json:"placeholder_markers,omitempty"`
	ForwardPrefixPatterns []string `yaml:"forward_prefix_patterns,omitempty" json:"forward_prefix_patterns,omitempty"`
	MaxItems              int      `yaml:"max_items,omitempty" json:"max_items"`
	SummaryMaxLen         int      `yaml:"summary_max_len,omitempty" json:"summary_max_len"`
	Theme                 Theme    `yaml:"theme,omitempty" json:"theme"`
	SubjectTemplate       string   `yaml:"subject_template,omitempty" json:"subject_template"`
	Nickname              string   `yaml:"nickname,omitempty" json:"nickname"`
	Banner                string   `yaml:"banner,omitempty" json:"banner"`
	Label                 string   `yaml:"label,omitempty" json:"label,omitempty"`
	ForwardTag            string   `yaml:"forward_tag,omitempty" json:"forward_tag"`
	NoTextPlaceholder     string   `yaml:"no_text_placeholder,omitempty" json:"no_text_placeholder"`
	EmptyDigestText       string   `yaml:"empty_digest_text,omitempty" json:"empty_digest_text"`
	LinkText              string   `yaml:"link_text,omitempty" json:"link_text"`
}

// WithDefaults returns a copy of the profile with unset fields filled in.
func (p Profile) WithDefaults() Profile {
	if p.Mode == "" {
		p.Mode = ModeQuote
	}
	if p.PlaceholderMarkers == nil {
		p.PlaceholderMarkers = append([]string(nil), DefaultPlaceholderMarkers...)
	}
	if p.ForwardPrefixPatterns == nil {
		p.ForwardPrefixPatterns = append([]string(nil), DefaultForwardPrefixPatterns...)
	}
	if p.MaxItems == 0 {
		p.MaxItems = DefaultMaxItems
	}
	if p.SummaryMaxLen == 0 {
		p.SummaryMaxLen = DefaultSummaryMaxLen
	}
	p.Theme = p.Theme.withDefaults()
	if p.SubjectTemplate == "" {
		p.SubjectTemplate = DefaultSubjectTemplate
	}
	if p.Nickname == "" {
		p.Nickname = p.Name
	}
	if p.Banner == "" {
		p.Banner = p.Name
	}
	if p.ForwardTag == "" {
		p.ForwardTag = "[forwarded]"
	}
	if p.NoTextPlaceholder == "" {
		if p.Mode == ModeSummary {
			p.NoTextPlaceholder = "(no content)"
		} else {
			p.NoTextPlaceholder = "(no text)"
		}
	}
	if p.EmptyDigestText == "" {
		p.EmptyDigestText = "No items available."
	}
	if p.LinkText == "" {
		p.LinkText = "View original →"
	}
	return p
}

var colourPattern = regexp.MustCompile(`^(#[0-9A-Fa-f]{3}|#[0-9A-Fa-f]{6}|[A-Za-z]+)$`)

// Validate rejects colours the digest template would sanitize away.
func (t Theme) Validate() error {
	for _, c := range []struct{ name, value string }{
		{"banner", t.Banner},
		{"serial", t.Serial},
		{"time", t.Time},
		{"forward", t.Forward},
		{"text", t.Text},
		{"link", t.Link},
	} {
		if c.value != "" && !colourPattern.MatchString(c.value) {
			return fmt.Errorf("invalid %s colour %q", c.name, c.value)
		}
	}
	return nil
}

func (t Theme) withDefaults() Theme {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Banner, DefaultTheme.Banner)
	fill(&t.Serial, DefaultTheme.Serial)
	fill(&t.Time, DefaultTheme.Time)
	fill(&t.Forward, DefaultTheme.Forward)
	fill(&t.Text, DefaultTheme.Text)
	fill(&t.Link, DefaultTheme.Link)
	return t
}

// Validate checks if the profile has required fields and usable settings.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.FeedURL == "" {
		return errors.New("feed URL is required")
	}
	switch p.Mode {
	case "", ModeQuote, ModeSummary:
	default:
		return fmt.Errorf("unknown mode %q (expected %q or %q)", p.Mode, ModeQuote, ModeSummary)
	}
	if p.MaxItems < 0 {
		return errors.New("max items must be non-negative")
	}
	if p.SummaryMaxLen < 0 {
		return errors.New("summary max length must be non-negative")
	}
	for i, pattern := range p.ForwardPrefixPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid forward prefix pattern at index %d: %w", i, err)
		}
	}
	if err := p.Theme.Validate(); err != nil {
		return fmt.Errorf("theme: %w", err)
	}
	if p.SubjectTemplate != "" {
		if _, err := template.New("subject").Parse(p.SubjectTemplate); err != nil {
			return fmt.Errorf("invalid subject template: %w", err)
		}
	}
	return nil
}
