package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ai-productivity-app/assistant/conversation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func att(id string) models.Attachment {
	return models.Attachment{ID: id, Name: id + ".txt", Mimetype: "text/plain"}
}

func ids(atts []models.Attachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.ID)
	}
	return out
}

func TestAddRemoveKeepsOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(att("a")))
	require.NoError(t, a.Add(att("b")))
	require.NoError(t, a.Add(att("c")))

	assert.ErrorIs(t, a.Add(att("b")), ErrDuplicate)
	assert.True(t, a.Remove("b"))
	assert.False(t, a.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, ids(a.List()))
	assert.Equal(t, 2, a.Len())
}

func TestListReturnsCopy(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(att("a")))

	list := a.List()
	list[0].Name = "changed"

	assert.Equal(t, "a.txt", a.List()[0].Name)
}

func TestRestorePrependsInOriginalOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(att("a")))
	require.NoError(t, a.Add(att("b")))

	taken := a.Take()
	assert.Zero(t, a.Len())

	require.NoError(t, a.Add(att("c")))
	a.Restore(taken)

	assert.Equal(t, []string{"a", "b", "c"}, ids(a.List()))
}

func TestClosedRejectsAdd(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(att("a")))
	a.Close()

	assert.Zero(t, a.Len())
	assert.ErrorIs(t, a.Add(att("b")), ErrClosed)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text content\n"), 0o644))

	got, err := FromFile(path)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "notes.txt", got.Name)
	assert.Equal(t, int64(19), got.Size)
	assert.True(t, strings.HasPrefix(got.Mimetype, "text/plain"))
	assert.True(t, strings.HasPrefix(got.URL, "file://"))

	local, err := LocalPath(got)
	require.NoError(t, err)
	assert.Equal(t, path, local)
}

func TestFromFileRejectsDirectory(t *testing.T) {
	_, err := FromFile(t.TempDir())
	assert.Error(t, err)
}
