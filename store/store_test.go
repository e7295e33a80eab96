package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Absent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "last_link.txt"))

	link, found, err := s.LastLink()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, link)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_link.txt")
	s := NewFileStore(path)

	require.NoError(t, s.SaveLastLink("https://example.com/post/1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/post/1", string(data), "file holds exactly the link")

	link, found, err := s.LastLink()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/post/1", link)

	// Overwrite
	require.NoError(t, s.SaveLastLink("https://example.com/post/2"))
	link, _, err = s.LastLink()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/post/2", link)
}

func TestFileStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_link.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://example.com/x\n"), 0644))

	link, found, err := NewFileStore(path).LastLink()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/x", link)
}

func TestFileStore_Unreadable(t *testing.T) {
	// A directory where the file should be cannot be read as a file
	path := t.TempDir()

	_, _, err := NewFileStore(path).LastLink()
	assert.Error(t, err)
}

func TestFileStore_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_link.txt")
	s := NewFileStore(path)

	require.NoError(t, s.Reset(), "resetting absent state is fine")
	require.NoError(t, s.SaveLastLink("https://example.com/x"))
	require.NoError(t, s.Reset())

	_, found, err := s.LastLink()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", "trumpstruth")
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.LastLink()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveLastLink("https://example.com/1"))
	require.NoError(t, s.SaveLastLink("https://example.com/2"))

	link, found, err := s.LastLink()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/2", link)

	updated, err := s.UpdatedAt()
	require.NoError(t, err)
	assert.False(t, updated.IsZero())

	require.NoError(t, s.Reset())
	_, found, err = s.LastLink()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := NewSQLiteStore(path, "a")
	require.NoError(t, err)
	require.NoError(t, a.SaveLastLink("https://a.example/1"))
	require.NoError(t, a.Close())

	b, err := NewSQLiteStore(path, "b")
	require.NoError(t, err)
	defer b.Close()

	_, found, err := b.LastLink()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s1, err := NewSQLiteStore(path, "p")
	require.NoError(t, err)
	require.NoError(t, s1.SaveLastLink("https://example.com/keep"))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path, "p")
	require.NoError(t, err)
	defer s2.Close()

	link, found, err := s2.LastLink()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/keep", link)
}

func TestNewSQLiteStore_RequiresKey(t *testing.T) {
	_, err := NewSQLiteStore(":memory:", "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", filepath.Join(dir, "last_link.txt"), "p")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(BackendSQLite, filepath.Join(dir, "state.db"), "p")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "", "p")
	assert.Error(t, err)
}

func TestDefaultPathFor(t *testing.T) {
	assert.Equal(t, "last_link.txt", DefaultPathFor(""))
	assert.Equal(t, "last_link.txt", DefaultPathFor(BackendFile))
	assert.Equal(t, "feed-push.db", DefaultPathFor(BackendSQLite))
}

func TestOpen_SQLiteDefaultPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s, err := Open(BackendSQLite, "", "p")
	require.NoError(t, err)
	require.NoError(t, s.SaveLastLink("https://example.com/1"))
	require.NoError(t, s.Close())

	_, err = os.Stat(DefaultSQLitePath)
	assert.NoError(t, err)
	_, err = os.Stat(DefaultPath)
	assert.True(t, os.IsNotExist(err), "sqlite does not reuse the text state file name")
}
