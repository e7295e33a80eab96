// Package digest renders a batch of feed entries into one HTML document.
package digest

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/robertmeta/feed-push/model"
	"github.com/robertmeta/feed-push/normalize"
)

//go:embed digest.html
var digestHTML string

var digestTemplate = template.Must(template.New("digest").Parse(digestHTML))

// Renderer maps entries to display items and serialises them.
// It performs no network or disk I/O.
type Renderer struct {
	profile    model.Profile
	classifier *normalize.Classifier
}

// New creates a Renderer for the given profile.
func New(p model.Profile) (*Renderer, error) {
	p = p.WithDefaults()
	c, err := normalize.NewClassifier(p)
	if err != nil {
		return nil, err
	}
	return &Renderer{profile: p, classifier: c}, nil
}

// Items converts at most MaxItems entries into display items, keeping
// their order.
func (r *Renderer) Items(entries []model.Entry) []model.DisplayItem {
	if len(entries) > r.profile.MaxItems {
		entries = entries[:r.profile.MaxItems]
	}

	items := make([]model.DisplayItem, 0, len(entries))
	for i, e := range entries {
		c := r.classifier.Classify(e)
		item := model.DisplayItem{
			Ordinal: i + 1,
			Time:    normalize.DisplayTime(e),
			Label:   r.profile.Label,
			Text:    c.Text,
			Link:    e.Link,
		}
		if c.IsForward {
			item.ForwardTag = r.profile.ForwardTag
		}
		items = append(items, item)
	}
	return items
}

type digestData struct {
	Theme     model.Theme
	Banner    string
	EmptyText string
	LinkText  string
	Items     []model.DisplayItem
}

// Render returns the HTML digest for the entries.
func (r *Renderer) Render(entries []model.Entry) (string, error) {
	return r.RenderItems(r.Items(entries))
}

// RenderItems serialises already built display items.
func (r *Renderer) RenderItems(items []model.DisplayItem) (string, error) {
	data := digestData{
		Theme:     r.profile.Theme,
		Banner:    r.profile.Banner,
		EmptyText: r.profile.EmptyDigestText,
		LinkText:  r.profile.LinkText,
		Items:     items,
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}
