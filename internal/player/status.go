package player

import "fmt"

// NumericBool serializes as 0/1 because the miniserver treats booleans as
// numbers on several fields (observed: plshuffle).
type NumericBool bool

// MarshalJSON implements json.Marshaler.
func (b NumericBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts 0/1, true/false and their quoted forms.
func (b *NumericBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "1", "true", `"1"`, `"true"`:
		*b = true
	case "0", "false", `"0"`, `"false"`, "null", `""`:
		*b = false
	default:
		return fmt.Errorf("numeric bool: unexpected value %q", string(data))
	}
	return nil
}

// PlayerRef identifies a sync-group member on the wire.
type PlayerRef struct {
	PlayerID int `json:"playerid"`
}

// Status is the normalized player snapshot for one zone. Field names and
// value encodings match what the miniserver expects; see the enum types for
// the fixed numeric mappings.
type Status struct {
	PlayerID   int         `json:"playerid"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album"`
	CoverURL   string      `json:"coverurl"`
	Station    string      `json:"station"`
	AudioType  AudioType   `json:"audiotype"`
	AudioPath  string      `json:"audiopath"`
	Mode       PlayMode    `json:"mode"`
	PlRepeat   RepeatMode  `json:"plrepeat"`
	PlShuffle  NumericBool `json:"plshuffle"`
	Duration   int         `json:"duration"`
	Time       int         `json:"time"`
	PositionMS int64       `json:"position_ms"`
	DurationMS int64       `json:"duration_ms"`
	Power      PowerState  `json:"power"`
	Volume     int         `json:"volume"`
	Muted      bool        `json:"muted"`
	QIndex     int         `json:"qindex"`
	QID        string      `json:"qid"`

	Players     []PlayerRef `json:"players"`
	SyncedZones []int       `json:"syncedzones"`

	DefaultVolume int    `json:"defaultvolume"`
	MaxVolume     int    `json:"maxvolume"`
	TTSVolume     int    `json:"ttsvolume"`
	AlarmVolume   int    `json:"alarmvolume"`
	EventVolume   int    `json:"eventvolume"`
	SourceName    string `json:"sourcename"`
}

// NewStatus returns the baseline snapshot for a zone that has not reported
// anything yet.
func NewStatus(zoneID int) *Status {
	return &Status{
		PlayerID:    zoneID,
		Mode:        ModeStop,
		Power:       PowerOn,
		Players:     []PlayerRef{},
		SyncedZones: []int{},
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Status) Clone() *Status {
	out := *s
	out.Players = append([]PlayerRef(nil), s.Players...)
	out.SyncedZones = append([]int(nil), s.SyncedZones...)
	return &out
}

// Update is a partial status report from a backend. Nil fields mean "no
// change"; slice fields use pointers so an explicit empty slice clears
// membership while nil leaves it alone.
type Update struct {
	Title      *string
	Artist     *string
	Album      *string
	CoverURL   *string
	Station    *string
	AudioType  *AudioType
	AudioPath  *string
	Mode       *PlayMode
	PlRepeat   *RepeatMode
	PlShuffle  *bool
	Duration   *int
	Time       *int
	PositionMS *int64
	DurationMS *int64
	Power      *PowerState
	Volume     *int
	Muted      *bool
	QIndex     *int
	QID        *string

	Players     *[]PlayerRef
	SyncedZones *[]int

	SourceName *string
}

// Apply merges the update into the status field-by-field and reports whether
// anything actually changed. Volume is clamped on the way in.
func (s *Status) Apply(u *Update) bool {
	if u == nil {
		return false
	}
	changed := false

	if u.Title != nil && s.Title != *u.Title {
		s.Title = *u.Title
		changed = true
	}
	if u.Artist != nil && s.Artist != *u.Artist {
		s.Artist = *u.Artist
		changed = true
	}
	if u.Album != nil && s.Album != *u.Album {
		s.Album = *u.Album
		changed = true
	}
	if u.CoverURL != nil && s.CoverURL != *u.CoverURL {
		s.CoverURL = *u.CoverURL
		changed = true
	}
	if u.Station != nil && s.Station != *u.Station {
		s.Station = *u.Station
		changed = true
	}
	if u.AudioType != nil && s.AudioType != *u.AudioType {
		s.AudioType = *u.AudioType
		changed = true
	}
	if u.AudioPath != nil && s.AudioPath != *u.AudioPath {
		s.AudioPath = *u.AudioPath
		changed = true
	}
	if u.Mode != nil && s.Mode != *u.Mode {
		s.Mode = *u.Mode
		changed = true
	}
	if u.PlRepeat != nil && s.PlRepeat != *u.PlRepeat {
		s.PlRepeat = *u.PlRepeat
		changed = true
	}
	if u.PlShuffle != nil && bool(s.PlShuffle) != *u.PlShuffle {
		s.PlShuffle = NumericBool(*u.PlShuffle)
		changed = true
	}
	if u.Duration != nil && s.Duration != *u.Duration {
		s.Duration = *u.Duration
		changed = true
	}
	if u.Time != nil && s.Time != *u.Time {
		s.Time = *u.Time
		changed = true
	}
	if u.PositionMS != nil && s.PositionMS != *u.PositionMS {
		s.PositionMS = *u.PositionMS
		changed = true
	}
	if u.DurationMS != nil && s.DurationMS != *u.DurationMS {
		s.DurationMS = *u.DurationMS
		changed = true
	}
	if u.Power != nil && s.Power != *u.Power {
		s.Power = *u.Power
		changed = true
	}
	if u.Volume != nil {
		v := ClampVolume(*u.Volume)
		if s.Volume != v {
			s.Volume = v
			changed = true
		}
	}
	if u.Muted != nil && s.Muted != *u.Muted {
		s.Muted = *u.Muted
		changed = true
	}
	if u.QIndex != nil && s.QIndex != *u.QIndex {
		s.QIndex = *u.QIndex
		changed = true
	}
	if u.QID != nil && s.QID != *u.QID {
		s.QID = *u.QID
		changed = true
	}
	if u.Players != nil && !playerRefsEqual(s.Players, *u.Players) {
		s.Players = append([]PlayerRef(nil), (*u.Players)...)
		changed = true
	}
	if u.SyncedZones != nil && !intsEqual(s.SyncedZones, *u.SyncedZones) {
		s.SyncedZones = append([]int(nil), (*u.SyncedZones)...)
		changed = true
	}
	if u.SourceName != nil && s.SourceName != *u.SourceName {
		s.SourceName = *u.SourceName
		changed = true
	}
	return changed
}

func playerRefsEqual(a, b []PlayerRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Pointer helpers keep backend update construction readable.

func String(v string) *string            { return &v }
func Int(v int) *int                     { return &v }
func Int64(v int64) *int64               { return &v }
func Bool(v bool) *bool                  { return &v }
func Mode(v PlayMode) *PlayMode          { return &v }
func Power(v PowerState) *PowerState     { return &v }
func Audio(v AudioType) *AudioType       { return &v }
func Repeat(v RepeatMode) *RepeatMode    { return &v }
func Players(v []PlayerRef) *[]PlayerRef { return &v }
func Zones(v []int) *[]int               { return &v }
