package alerts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesOnlyExpiredClips(t *testing.T) {
	dir := t.TempDir()
	expired := filepath.Join(dir, "tts-aaa.mp3")
	fresh := filepath.Join(dir, "tts-bbb.mp3")
	foreign := filepath.Join(dir, "keep.mp3")
	seedFile(t, expired)
	seedFile(t, fresh)
	seedFile(t, foreign)

	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(expired, old, old))
	require.NoError(t, os.Chtimes(foreign, old, old))

	s := NewSweeper(dir)
	require.NoError(t, s.Start())
	s.Stop()

	require.NoFileExists(t, expired)
	require.FileExists(t, fresh)
	require.FileExists(t, foreign)
}

func TestSweeper_MissingDirIsFine(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, s.Start())
	s.Stop()
}
