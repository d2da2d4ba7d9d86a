package alerts

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

func seedFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("mp3bytes"), 0o644))
}

func testResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	r, err := NewResolver(root)
	require.NoError(t, err)
	return r
}

func TestResolver_ResolvesBuiltinFile(t *testing.T) {
	root := t.TempDir()
	seedFile(t, filepath.Join(root, "alarm.mp3"))
	r := testResolver(t, root)

	require.DirExists(t, filepath.Join(root, "cache"))

	res, err := r.Resolve(Request{Type: " Alarm "})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, SourceFile, res.Source)
	require.Equal(t, "alarm", res.Type)
	require.Equal(t, "Alarm", res.Title)
	require.Equal(t, "alarm.mp3", res.RelPath)
	require.Equal(t, filepath.Join(root, "alarm.mp3"), res.AbsPath)
}

func TestResolver_UnknownOrMissingResolvesToNil(t *testing.T) {
	r := testResolver(t, t.TempDir())

	res, err := r.Resolve(Request{Type: "doorbell"})
	require.NoError(t, err)
	require.Nil(t, res)

	// Known type, but no media file on disk.
	res, err = r.Resolve(Request{Type: "bell"})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestResolver_TTSKeysBySHA1(t *testing.T) {
	r := testResolver(t, t.TempDir())

	res, err := r.Resolve(Request{Type: "tts", Text: "Dinner is ready", Language: "en"})
	require.NoError(t, err)
	require.NotNil(t, res)

	want := fmt.Sprintf("tts-%x.mp3", sha1.Sum([]byte("en|Dinner is ready")))
	require.Equal(t, SourceTTS, res.Source)
	require.Equal(t, filepath.Join("cache", want), res.RelPath)
	require.Equal(t, "Dinner is ready", res.Title)
	require.Equal(t, "Dinner is ready", res.Text)
	require.Equal(t, "en", res.Language)

	other, err := r.Resolve(Request{Type: "tts", Text: "Dinner is ready", Language: "de"})
	require.NoError(t, err)
	require.NotEqual(t, res.RelPath, other.RelPath)

	_, err = r.Resolve(Request{Type: "tts", Text: "   "})
	require.Error(t, err)
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestResolver_TTSRefreshesCachedClipAge(t *testing.T) {
	root := t.TempDir()
	r := testResolver(t, root)

	name := fmt.Sprintf("tts-%x.mp3", sha1.Sum([]byte("|Hello")))
	clip := filepath.Join(root, "cache", name)
	seedFile(t, clip)
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(clip, old, old))

	_, err := r.Resolve(Request{Type: "tts", Text: "Hello"})
	require.NoError(t, err)

	info, err := os.Stat(clip)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
}

func TestResolver_ManifestOverridesAndAdds(t *testing.T) {
	root := t.TempDir()
	seedFile(t, filepath.Join(root, "alarm.mp3"))
	seedFile(t, filepath.Join(root, "chime.mp3"))
	manifest := `titles:
  alarm: Wake Up
types:
  chime:
    file: chime.mp3
    title: Door Chime
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "alerts.yaml"), []byte(manifest), 0o644))

	r := testResolver(t, root)

	res, err := r.Resolve(Request{Type: "alarm"})
	require.NoError(t, err)
	require.Equal(t, "Wake Up", res.Title)

	res, err = r.Resolve(Request{Type: "chime"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "Door Chime", res.Title)
	require.Equal(t, "chime.mp3", res.RelPath)
}

func TestResolver_MalformedManifestKeepsBuiltins(t *testing.T) {
	root := t.TempDir()
	seedFile(t, filepath.Join(root, "alarm.mp3"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alerts.yaml"), []byte("{{not yaml"), 0o644))

	r := testResolver(t, root)

	res, err := r.Resolve(Request{Type: "alarm"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "Alarm", res.Title)
}

func TestResolver_ManifestCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	manifest := `types:
  evil:
    file: ../../secret.mp3
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "alerts.yaml"), []byte(manifest), 0o644))

	r := testResolver(t, root)

	res, err := r.Resolve(Request{Type: "evil"})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestResolver_ServePathConfinesRequests(t *testing.T) {
	root := t.TempDir()
	seedFile(t, filepath.Join(root, "alarm.mp3"))
	r := testResolver(t, root)

	abs, err := r.ServePath("alarm.mp3")
	require.NoError(t, err)
	require.Equal(t, "alarm.mp3", filepath.Base(abs))

	_, err = r.ServePath("../alarm.mp3")
	require.Error(t, err)
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = r.ServePath("nope.mp3")
	require.Error(t, err)
	require.True(t, apperrors.IsLookupMiss(err))
}
