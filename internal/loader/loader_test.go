package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Notes\n\nsome markdown")
	writeFile(t, dir, "sub/plain.txt", "plain text")
	writeFile(t, dir, "ignored.bin", "binary junk")

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	require.Equal(t, "notes.md", docs[0].ID)
	require.Contains(t, docs[0].Text, "some markdown")
	require.Equal(t, "md", docs[0].Metadata["format"])

	require.Equal(t, "sub/plain.txt", docs[1].ID)
	require.Equal(t, "plain text", docs[1].Text)
	require.Equal(t, "txt", docs[1].Metadata["format"])
}

func TestLoadDir_StableIDsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "second")
	writeFile(t, dir, "a.md", "first")

	first, err := LoadDir(dir)
	require.NoError(t, err)
	second, err := LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "a.md", first[0].ID)
	require.Equal(t, "b.md", first[1].ID)
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestLoadFile_DefaultID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.txt", "content")

	doc, err := LoadFile(filepath.Join(dir, "doc.txt"))
	require.NoError(t, err)
	require.Equal(t, "doc.txt", doc.ID)
	require.Equal(t, "content", doc.Text)
}
