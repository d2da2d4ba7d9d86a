package musicassistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/content"
	"github.com/msaudio/audioserver-go/internal/ident"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/player"
)

var _ content.Adapter = (*contentAdapter)(nil)

// contentAdapter executes the play-this-URI verbs the backend driver leaves
// unhandled: favorites, playlists and announcements all land here.
type contentAdapter struct {
	svc      *Service
	playerID string
	logger   zerolog.Logger
}

func newContentAdapter(svc *Service, cfg config.ZoneConfig) *contentAdapter {
	return &contentAdapter{
		svc:      svc,
		playerID: cfg.PlayerID,
		logger:   log.WithComponent("musicassistant").With().Int("zone", cfg.ID).Logger(),
	}
}

func (a *contentAdapter) Handles(verb string) bool {
	switch verb {
	case "serviceplay", "playlistplay", "announce":
		return true
	}
	return false
}

func (a *contentAdapter) Execute(ctx context.Context, zoneID int, cmd backend.Command) (bool, error) {
	switch cmd.Verb {
	case "serviceplay", "playlistplay":
		return true, a.playMedia(ctx, mediaTarget(cmd))
	case "announce":
		return true, a.announce(ctx, cmd)
	}
	return false, nil
}

func (a *contentAdapter) playMedia(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("no media id given")
	}
	_, err := a.svc.client.Call(ctx, "player_queues/play_media", map[string]any{
		"queue_id": a.playerID,
		"media":    []string{playableURI(target)},
		"option":   "replace",
	})
	return err
}

func (a *contentAdapter) announce(ctx context.Context, cmd backend.Command) error {
	url := mediaTarget(cmd)
	if url == "" {
		return fmt.Errorf("no announcement url given")
	}
	args := map[string]any{
		"player_id": a.playerID,
		"url":       url,
	}
	if v, ok := announceVolume(cmd); ok {
		args["volume_level"] = v
	}
	_, err := a.svc.client.Call(ctx, "players/cmd/play_announcement", args)
	return err
}

// mediaTarget extracts the media id of a play command: the payload id when
// present, the joined path arguments otherwise. Joining restores slashes in
// raw stream URLs that the path grammar split.
func mediaTarget(cmd backend.Command) string {
	if cmd.Payload != nil {
		for _, key := range []string{"audiopath", "url", "id", "uri"} {
			if v, ok := cmd.Payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return strings.Join(cmd.Args, "/")
}

// playableURI converts a canonical id into the uri dialect the server
// plays. Raw http(s) streams and unrecognised ids pass through untouched.
func playableURI(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	id := ident.Parse(target)
	if id.IsZero() || id.ItemID == "" {
		return target
	}
	switch id.Kind {
	case ident.KindAlbums, ident.KindArtists, ident.KindTracks:
		return target
	}
	return maProviderArg(canonicalProvider(id.Provider)) + "://" + id.Kind + "/" + id.ItemID
}

func announceVolume(cmd backend.Command) (int, bool) {
	if cmd.Payload == nil {
		return 0, false
	}
	switch v := cmd.Payload["volume"].(type) {
	case float64:
		return player.ClampVolume(int(v)), true
	case int:
		return player.ClampVolume(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return player.ClampVolume(n), true
		}
	}
	return 0, false
}
