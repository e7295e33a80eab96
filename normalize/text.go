// Package normalize turns heterogeneous feed entries into display strings:
// a best-effort display time and a markup-free, URL-free display text.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern = regexp.MustCompile(`(?s)<.*?>`)
	// decodedTagPattern only matches things shaped like a tag, so decoded
	// comparisons such as "5 < 6" survive.
	decodedTagPattern = regexp.MustCompile(`<[A-Za-z/!][^>]*>`)
	urlPattern = regexp.MustCompile(`https?://\S+`)
)

// StripTags removes anything that looks like an HTML tag.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// StripURLs removes http(s) URLs up to the next whitespace.
func StripURLs(s string) string {
	return urlPattern.ReplaceAllString(s, "")
}

// HTMLText extracts the visible text of an HTML fragment.
// Entities are decoded; block boundaries and <br> become spaces. Tags that
// only appear after decoding, such as "&lt;b&gt;", are removed as well.
func HTMLText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return StripTags(fragment)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, div, li, blockquote, h1, h2, h3, h4, h5, h6").AfterHtml(" ")
	return decodedTagPattern.ReplaceAllString(doc.Text(), "")
}

// collapse normalizes to NFC and squeezes runs of whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// truncate cuts s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxLen])) + "..."
}
