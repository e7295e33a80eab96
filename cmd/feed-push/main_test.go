package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/robertmeta/feed-push/config"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <item>
      <title>[No Title]</title>
      <link>https://example.com/2</link>
      <description>RT: hello from a forward</description>
    </item>
    <item>
      <title>An original post</title>
      <link>https://example.com/1</link>
    </item>
  </channel>
</rss>`

func run(t *testing.T, args ...string) error {
	t.Helper()
	// cli.Exit errors would otherwise terminate the test binary
	cli.OsExiter = func(int) {}
	return newApp().Run(append([]string{"feed-push", "--env-file", ""}, args...))
}

func TestPreview_FromFile(t *testing.T) {
	dir := t.TempDir()
	feedPath := filepath.Join(dir, "feed.xml")
	require.NoError(t, os.WriteFile(feedPath, []byte(rssFixture), 0644))
	outPath := filepath.Join(dir, "digest.html")
	statePath := filepath.Join(dir, "last_link.txt")

	require.NoError(t, run(t, "--state", statePath, "preview", "--file", feedPath, "--output", outPath))

	html, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "An original post")
	assert.Contains(t, string(html), "【转发贴】")
	assert.Contains(t, string(html), "https://example.com/2")

	_, err = os.Stat(statePath)
	assert.True(t, os.IsNotExist(err), "preview never writes state")
}

func TestStateReset(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "last_link.txt")
	require.NoError(t, os.WriteFile(statePath, []byte("https://example.com/1"), 0644))

	require.NoError(t, run(t, "--state", statePath, "state", "reset"))

	_, err := os.Stat(statePath)
	assert.True(t, os.IsNotExist(err))
}

func TestProfilesImport(t *testing.T) {
	dir := t.TempDir()
	opmlPath := filepath.Join(dir, "subs.opml")
	require.NoError(t, os.WriteFile(opmlPath, []byte(`<?xml version="1.0"?>
<opml version="2.0">
  <body>
    <outline text="Go Blog" xmlUrl="https://go.dev/blog/feed.atom"/>
  </body>
</opml>`), 0644))
	outPath := filepath.Join(dir, "profiles.yaml")

	require.NoError(t, run(t, "profiles", "import", "--output", outPath, opmlPath))

	f, err := config.LoadFile(outPath, nil)
	require.NoError(t, err)
	require.Len(t, f.Profiles, 1)
	assert.Equal(t, "go-blog", f.Profiles[0].Name)
	assert.Equal(t, "https://go.dev/blog/feed.atom", f.Profiles[0].FeedURL)
}

func TestProfilesImport_MissingArgument(t *testing.T) {
	assert.Error(t, run(t, "profiles", "import"))
}

func TestInvalidConfiguration(t *testing.T) {
	err := run(t, "--profile", "does-not-exist", "state", "show")
	assert.Error(t, err)
}
