// Package alerts maps alert type keys to media files under the public
// alerts root. File-backed types come from the built-in set plus an
// optional manifest; TTS clips are keyed into a cache subtree that a
// periodic sweep keeps bounded.
package alerts

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/fsutil"
	"github.com/msaudio/audioserver-go/internal/log"
)

const (
	SourceFile = "file"
	SourceTTS  = "tts"
)

const (
	manifestName = "alerts.yaml"
	cacheSubdir  = "cache"
)

// Request names the alert to resolve. Text and Language only matter for
// the tts type.
type Request struct {
	Type     string
	Text     string
	Language string
}

// Resource is one resolved alert asset. RelPath is relative to the alerts
// root and safe to append to the serving URL base.
type Resource struct {
	Source   string
	Type     string
	Title    string
	AbsPath  string
	RelPath  string
	Text     string
	Language string
}

type alertType struct {
	file  string
	title string
}

func builtinAlertTypes() map[string]alertType {
	return map[string]alertType{
		"alarm":     {file: "alarm.mp3", title: "Alarm"},
		"bell":      {file: "bell.mp3", title: "Bell"},
		"buzzer":    {file: "buzzer.mp3", title: "Buzzer"},
		"firealarm": {file: "firealarm.mp3", title: "Fire Alarm"},
	}
}

type manifest struct {
	Titles map[string]string       `yaml:"titles"`
	Types  map[string]manifestType `yaml:"types"`
}

type manifestType struct {
	File  string `yaml:"file"`
	Title string `yaml:"title"`
}

// Resolver resolves alert requests against one media root.
type Resolver struct {
	root   string
	types  map[string]alertType
	logger zerolog.Logger
}

// NewResolver prepares the cache subtree and loads the optional manifest.
// A malformed manifest is logged and ignored; the built-ins always work.
func NewResolver(root string) (*Resolver, error) {
	logger := log.WithComponent("alerts")
	if err := fsutil.EnsureDir(filepath.Join(root, cacheSubdir)); err != nil {
		return nil, err
	}
	types := builtinAlertTypes()
	applyManifest(root, types, logger)
	return &Resolver{root: root, types: types, logger: logger}, nil
}

// CacheDir is where generated TTS clips live.
func (r *Resolver) CacheDir() string {
	return filepath.Join(r.root, cacheSubdir)
}

// Resolve maps one request to its media resource. Unknown types and types
// whose media file vanished resolve to nil.
func (r *Resolver) Resolve(req Request) (*Resource, error) {
	key := strings.ToLower(strings.TrimSpace(req.Type))
	if key == "tts" {
		return r.resolveTTS(req)
	}

	t, ok := r.types[key]
	if !ok {
		return nil, nil
	}
	abs := filepath.Join(r.root, t.file)
	if err := fsutil.IsRegularFile(abs); err != nil {
		r.logger.Warn().Str("type", key).Str("path", abs).Msg("alert media file missing")
		return nil, nil
	}
	return &Resource{
		Source:  SourceFile,
		Type:    key,
		Title:   t.title,
		AbsPath: abs,
		RelPath: t.file,
	}, nil
}

func (r *Resolver) resolveTTS(req Request) (*Resource, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("tts alert needs text")
	}
	lang := strings.TrimSpace(req.Language)

	sum := sha1.Sum([]byte(lang + "|" + text))
	rel := filepath.Join(cacheSubdir, fmt.Sprintf("tts-%x.mp3", sum))
	abs := filepath.Join(r.root, rel)
	r.touch(abs)

	return &Resource{
		Source:   SourceTTS,
		Type:     "tts",
		Title:    text,
		AbsPath:  abs,
		RelPath:  rel,
		Text:     text,
		Language: lang,
	}, nil
}

// touch refreshes a cached clip's age so phrases in active use survive
// the sweep. Clips not generated yet are simply absent.
func (r *Resolver) touch(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil && !os.IsNotExist(err) {
		r.logger.Debug().Err(err).Str("path", path).Msg("tts cache touch failed")
	}
}

// ServePath confines a request path to the alerts root and verifies it
// names a regular file. Backs the alerts HTTP route.
func (r *Resolver) ServePath(rel string) (string, error) {
	abs, err := fsutil.ConfineRelPath(r.root, rel)
	if err != nil {
		return "", apperrors.NewValidationError(fmt.Sprintf("bad alert path %q", rel))
	}
	if err := fsutil.IsRegularFile(abs); err != nil {
		return "", apperrors.NewLookupMiss("alert media", rel)
	}
	return abs, nil
}

func applyManifest(root string, types map[string]alertType, logger zerolog.Logger) {
	data, err := os.ReadFile(filepath.Join(root, manifestName))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("alerts manifest unreadable, using built-ins")
		}
		return
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		logger.Warn().Err(err).Msg("alerts manifest malformed, using built-ins")
		return
	}

	for key, title := range m.Titles {
		key = strings.ToLower(strings.TrimSpace(key))
		if t, ok := types[key]; ok && title != "" {
			t.title = title
			types[key] = t
		}
	}
	for key, mt := range m.Types {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || key == "tts" || mt.File == "" {
			continue
		}
		if _, err := fsutil.ConfineRelPath(root, mt.File); err != nil {
			logger.Warn().Str("type", key).Str("file", mt.File).Msg("alerts manifest entry escapes the media root, skipped")
			continue
		}
		title := mt.Title
		if title == "" {
			title = key
		}
		types[key] = alertType{file: mt.File, title: title}
	}
}
