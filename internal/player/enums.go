package player

import "strings"

// AudioType classifies what a zone is currently playing. The numeric values
// are part of the miniserver wire contract and must not change.
type AudioType int

const (
	AudioTypeFile      AudioType = 0
	AudioTypeRadio     AudioType = 1
	AudioTypePlaylist  AudioType = 2
	AudioTypeLineIn    AudioType = 3
	AudioTypeAirPlay   AudioType = 4
	AudioTypeSpotify   AudioType = 5
	AudioTypeBluetooth AudioType = 6
	AudioTypeSoundsuit AudioType = 7
)

// AudioTypeForPath derives the audio type from a playback URI. Unknown
// schemes fall back to file.
func AudioTypeForPath(path string) AudioType {
	lower := strings.ToLower(path)
	switch {
	case lower == "":
		return AudioTypeFile
	case strings.HasPrefix(lower, "spotify"):
		return AudioTypeSpotify
	case strings.HasPrefix(lower, "airplay"):
		return AudioTypeAirPlay
	case strings.HasPrefix(lower, "bluetooth"), strings.HasPrefix(lower, "bt:"):
		return AudioTypeBluetooth
	case strings.HasPrefix(lower, "linein"), strings.HasPrefix(lower, "aux"):
		return AudioTypeLineIn
	case strings.HasPrefix(lower, "soundsuit"):
		return AudioTypeSoundsuit
	case strings.HasPrefix(lower, "radio:"), strings.HasPrefix(lower, "tunein:"), strings.HasPrefix(lower, "radiobrowser"):
		return AudioTypeRadio
	case strings.HasPrefix(lower, "playlist:"), strings.Contains(lower, ":playlist:"):
		return AudioTypePlaylist
	default:
		return AudioTypeFile
	}
}

// PlayMode is the transport state shown to the miniserver.
type PlayMode string

const (
	ModePlay   PlayMode = "play"
	ModePause  PlayMode = "pause"
	ModeStop   PlayMode = "stop"
	ModeResume PlayMode = "resume"
)

// PowerState tracks device availability.
type PowerState string

const (
	PowerOn        PowerState = "on"
	PowerOff       PowerState = "off"
	PowerStarting  PowerState = "starting"
	PowerUpdating  PowerState = "updating"
	PowerRebooting PowerState = "rebooting"
	PowerOffline   PowerState = "offline"
)

// RepeatMode uses the miniserver's numeric encoding: none=0, queue=1, track=3.
type RepeatMode int

const (
	RepeatNone  RepeatMode = 0
	RepeatQueue RepeatMode = 1
	RepeatTrack RepeatMode = 3
)

// ParseRepeat maps the many repeat spellings the miniserver and UIs send to a
// single mode. Unknown tokens map to RepeatNone.
func ParseRepeat(token string) RepeatMode {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "1", "all", "queue", "playlist", "true", "yes", "on":
		return RepeatQueue
	case "2", "3", "one", "track", "single":
		return RepeatTrack
	default:
		return RepeatNone
	}
}

// ParseShuffle interprets a shuffle argument. The second return reports
// whether the token was empty, which means "toggle current state".
func ParseShuffle(token string) (value bool, toggle bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "":
		return false, true
	case "enable", "true", "1", "yes", "on":
		return true, false
	default:
		return false, false
	}
}

// ClampVolume bounds a volume value to the 0..100 range.
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
