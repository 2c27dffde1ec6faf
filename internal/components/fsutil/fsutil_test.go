package fsutil

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func listDir(t testing.TB, fs afero.Fs, dir string) []string {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	dest := filepath.Join("out", "doc", "page.jpg")

	err := WriteFileAtomic(fs, dest, bytes.NewBufferString("first"))
	require.NoError(t, err)
	err = WriteFileAtomic(fs, dest, bytes.NewBufferString("second"))
	require.NoError(t, err)

	contents, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	require.Equal(t, "second", string(contents))
	require.Equal(t, []string{"page.jpg"}, listDir(t, fs, filepath.Join("out", "doc")))
}

func TestDiscardLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	dest := filepath.Join("out", "results.csv")

	f, err := CreateAtomic(fs, dest)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, f.Discard())
	require.NoError(t, f.Commit())

	exists, err := afero.Exists(fs, dest)
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, listDir(t, fs, "out"))
}
