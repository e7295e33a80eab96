package opml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/feed-push/model"
)

func TestParseOPML_ValidFile(t *testing.T) {
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head>
    <title>Test Feeds</title>
  </head>
  <body>
    <outline text="Tech" title="Tech">
      <outline type="rss" text="Feed 1" title="Feed One" xmlUrl="https://example.com/feed1"/>
      <outline type="rss" text="Feed 2" title="Feed Two" xmlUrl="https://example.com/feed2"/>
    </outline>
    <outline type="rss" text="Trump Truth" xmlUrl="https://www.trumpstruth.org/feed"/>
  </body>
</opml>`

	profiles, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	require.Len(t, profiles, 3, "Should parse 3 feeds")

	assert.Equal(t, "feed-1", profiles[0].Name)
	assert.Equal(t, "https://example.com/feed1", profiles[0].FeedURL)
	assert.Equal(t, "Feed One", profiles[0].Banner)

	assert.Equal(t, "feed-2", profiles[1].Name)

	assert.Equal(t, "trump-truth", profiles[2].Name)
	assert.Equal(t, "Trump Truth", profiles[2].Banner, "text is used when title is missing")

	for _, p := range profiles {
		p := p.WithDefaults()
		assert.NoError(t, p.Validate())
	}
}

func TestParseOPML_NameFallbacks(t *testing.T) {
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline type="rss" xmlUrl="https://blog.example.com/atom.xml"/>
    <outline type="rss" text="Go Blog" xmlUrl="https://go.dev/blog/feed.atom"/>
    <outline type="rss" text="go blog!" xmlUrl="https://mirror.example.com/go.atom"/>
    <outline type="rss" text="···" xmlUrl="not a url %%"/>
  </body>
</opml>`

	profiles, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	require.Len(t, profiles, 4)

	assert.Equal(t, "blog-example-com", profiles[0].Name)
	assert.Equal(t, "go-blog", profiles[1].Name)
	assert.Equal(t, "go-blog-2", profiles[2].Name, "duplicate names are numbered")
	assert.Equal(t, "feed", profiles[3].Name)
}

func TestParseOPML_InvalidXML(t *testing.T) {
	invalidContent := `<invalid>xml</broken>`

	_, err := Parse(strings.NewReader(invalidContent))
	assert.Error(t, err, "Should error on invalid XML")
}

func TestParseOPML_EmptyFile(t *testing.T) {
	emptyContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Empty</title></head>
  <body></body>
</opml>`

	profiles, err := Parse(strings.NewReader(emptyContent))
	require.NoError(t, err)
	assert.Len(t, profiles, 0, "Empty OPML should return no feeds")
}

func TestParseOPML_MissingXmlUrl(t *testing.T) {
	// Outline without xmlUrl should be skipped
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline type="rss" text="Valid Feed" xmlUrl="https://example.com/feed"/>
    <outline type="rss" text="Invalid Feed"/>
  </body>
</opml>`

	profiles, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	require.Len(t, profiles, 1, "Should skip outlines without xmlUrl")
	assert.Equal(t, "https://example.com/feed", profiles[0].FeedURL)
}

func TestGenerateOPML(t *testing.T) {
	profiles := []model.Profile{
		{Name: "trumpstruth", FeedURL: "https://www.trumpstruth.org/feed", Banner: "Trump Truth"},
		{Name: "golang", FeedURL: "https://go.dev/blog/feed.atom"},
	}

	var buf strings.Builder
	err := Generate(&buf, profiles)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, output, `<opml version="2.0">`)
	assert.Contains(t, output, `xmlUrl="https://www.trumpstruth.org/feed"`)
	assert.Contains(t, output, `xmlUrl="https://go.dev/blog/feed.atom"`)
	assert.Contains(t, output, `title="Trump Truth"`)
	assert.Contains(t, output, `title="golang"`, "name is used when there is no banner")
}

func TestGenerateOPML_EmptyList(t *testing.T) {
	var buf strings.Builder
	err := Generate(&buf, nil)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `<opml version="2.0">`)
	assert.Contains(t, output, `<body>`)
	assert.Contains(t, output, `</body>`)
}

func TestRoundTrip(t *testing.T) {
	original := []model.Profile{
		{Name: "feed-1", FeedURL: "https://example.com/feed1", Banner: "Feed 1"},
		{Name: "feed-2", FeedURL: "https://example.com/feed2", Banner: "Second Feed"},
	}

	var buf strings.Builder
	require.NoError(t, Generate(&buf, original))

	parsed, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	for i := range original {
		assert.Equal(t, original[i].Name, parsed[i].Name)
		assert.Equal(t, original[i].FeedURL, parsed[i].FeedURL)
		assert.Equal(t, original[i].Banner, parsed[i].Banner)
	}
}

func TestGenerateOPML_SpecialCharacters(t *testing.T) {
	profiles := []model.Profile{
		{Name: "q", FeedURL: "https://example.com/feed?id=1&type=rss", Banner: "Feed with & < >"},
	}

	var buf strings.Builder
	require.NoError(t, Generate(&buf, profiles))
	assert.Contains(t, buf.String(), "&amp;")
}
