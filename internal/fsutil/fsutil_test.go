package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "7.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"id":"7"}`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"id":"7"}`, string(data))

	// Overwrite replaces the whole content.
	require.NoError(t, WriteFileAtomic(path, []byte(`{}`), 0o644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))
}

func TestConfineRelPath_AllowsNested(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(root, "cache")))

	got, err := ConfineRelPath(root, "cache/tts-abc.mp3")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(got))
	require.Contains(t, got, "tts-abc.mp3")
}

func TestConfineRelPath_RejectsEscapes(t *testing.T) {
	root := t.TempDir()

	_, err := ConfineRelPath(root, "../outside.mp3")
	require.Error(t, err)

	_, err = ConfineRelPath(root, "/etc/passwd")
	require.Error(t, err)

	_, err = ConfineRelPath(root, "a\\..\\b")
	require.Error(t, err)

	_, err = ConfineRelPath(root, "cache/../../outside")
	require.Error(t, err)
}

func TestConfineRelPath_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ConfineRelPath(root, "link/file.mp3")
	require.Error(t, err)
}
