package beolink

import (
	"strings"

	"github.com/msaudio/audioserver-go/internal/player"
)

// notificationFrame is one line of the notification stream.
type notificationFrame struct {
	Notification notification `json:"notification"`
}

type notification struct {
	Timestamp string    `json:"timestamp,omitempty"`
	Type      string    `json:"type"`
	Kind      string    `json:"kind,omitempty"`
	Data      notifData `json:"data"`
}

// notifData is the union of every notification payload this driver reads.
// The device sends far more fields; unknown ones are ignored.
type notifData struct {
	// PROGRESS_INFORMATION
	State         string  `json:"state,omitempty"`
	Position      float64 `json:"position,omitempty"`
	TotalDuration float64 `json:"totalDuration,omitempty"`

	// VOLUME
	Speaker *speakerVolume `json:"speaker,omitempty"`

	// SOURCE
	PrimaryExperience *struct {
		Source *sourceInfo `json:"source,omitempty"`
	} `json:"primaryExperience,omitempty"`
	Source *sourceInfo `json:"source,omitempty"`

	// NOW_PLAYING_NET_RADIO and NOW_PLAYING_STORED_MUSIC
	Name            string       `json:"name,omitempty"`
	LiveDescription string       `json:"liveDescription,omitempty"`
	Artist          string       `json:"artist,omitempty"`
	Album           string       `json:"album,omitempty"`
	Duration        float64      `json:"duration,omitempty"`
	Image           []imageEntry `json:"image,omitempty"`
	TrackImage      []imageEntry `json:"trackImage,omitempty"`
}

type speakerVolume struct {
	Level int  `json:"level"`
	Muted bool `json:"muted"`
	Range *struct {
		Minimum int `json:"minimum"`
		Maximum int `json:"maximum"`
	} `json:"range,omitempty"`
}

type imageEntry struct {
	URL  string `json:"url,omitempty"`
	Size string `json:"size,omitempty"`
}

type sourceInfo struct {
	ID           string `json:"id,omitempty"`
	FriendlyName string `json:"friendlyName,omitempty"`
	SourceType   struct {
		Type string `json:"type,omitempty"`
	} `json:"sourceType"`
}

// Notification types the dispatch table handles.
const (
	notifProgress    = "PROGRESS_INFORMATION"
	notifVolume      = "VOLUME"
	notifSource      = "SOURCE"
	notifNetRadio    = "NOW_PLAYING_NET_RADIO"
	notifStoredMusic = "NOW_PLAYING_STORED_MUSIC"
	notifShutdown    = "SHUTDOWN"
)

// modeForState maps the device transport state. Unknown states report false
// and leave the mode untouched.
func modeForState(state string) (player.PlayMode, bool) {
	switch strings.ToLower(state) {
	case "play", "playing":
		return player.ModePlay, true
	case "pause", "paused":
		return player.ModePause, true
	case "stop", "stopped", "idle":
		return player.ModeStop, true
	}
	return "", false
}

// audioTypeForSource classifies a source type token. The second return
// reports whether the source is an auxiliary line input.
func audioTypeForSource(sourceType string) (player.AudioType, bool) {
	t := strings.ToUpper(sourceType)
	switch {
	case strings.Contains(t, "LINE") || strings.Contains(t, "AUX"):
		return player.AudioTypeLineIn, true
	case strings.Contains(t, "RADIO") || strings.Contains(t, "TUNEIN"):
		return player.AudioTypeRadio, false
	case strings.Contains(t, "SPOTIFY"):
		return player.AudioTypeSpotify, false
	case strings.Contains(t, "BLUETOOTH"):
		return player.AudioTypeBluetooth, false
	case strings.Contains(t, "AIRPLAY"):
		return player.AudioTypeAirPlay, false
	}
	return player.AudioTypeFile, false
}

// scaleToPercent maps a device volume level into 0..100 using the device's
// reported range. A degenerate range passes the level through clamped.
func scaleToPercent(level, min, max int) int {
	if max <= min {
		return player.ClampVolume(level)
	}
	return player.ClampVolume((level - min) * 100 / (max - min))
}

// scaleFromPercent maps a 0..100 volume onto the device range.
func scaleFromPercent(percent, min, max int) int {
	percent = player.ClampVolume(percent)
	if max <= min {
		return percent
	}
	return min + percent*(max-min)/100
}

func firstImageURL(images []imageEntry) string {
	for _, img := range images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}
