package player

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_Apply_PartialUpdate(t *testing.T) {
	s := NewStatus(7)
	s.Title = "old title"
	s.Volume = 30

	changed := s.Apply(&Update{
		Title:  String("new title"),
		Mode:   Mode(ModePlay),
		Volume: Int(45),
	})

	require.True(t, changed)
	require.Equal(t, "new title", s.Title)
	require.Equal(t, ModePlay, s.Mode)
	require.Equal(t, 45, s.Volume)
	// Untouched fields keep their previous values.
	require.Equal(t, 7, s.PlayerID)
}

func TestStatus_Apply_NoChangeReturnsFalse(t *testing.T) {
	s := NewStatus(3)
	s.Title = "same"
	s.Volume = 20

	changed := s.Apply(&Update{Title: String("same"), Volume: Int(20)})
	require.False(t, changed)

	changed = s.Apply(nil)
	require.False(t, changed)

	changed = s.Apply(&Update{})
	require.False(t, changed)
}

func TestStatus_Apply_VolumeClamped(t *testing.T) {
	s := NewStatus(1)

	s.Apply(&Update{Volume: Int(150)})
	require.Equal(t, 100, s.Volume)

	s.Apply(&Update{Volume: Int(-10)})
	require.Equal(t, 0, s.Volume)
}

func TestStatus_Apply_MembershipSlices(t *testing.T) {
	s := NewStatus(5)

	changed := s.Apply(&Update{
		Players:     Players([]PlayerRef{{PlayerID: 5}, {PlayerID: 6}}),
		SyncedZones: Zones([]int{5, 6}),
	})
	require.True(t, changed)
	require.Equal(t, []int{5, 6}, s.SyncedZones)

	// Identical membership is a no-op.
	changed = s.Apply(&Update{SyncedZones: Zones([]int{5, 6})})
	require.False(t, changed)

	// Explicit empty slice clears, nil leaves alone.
	changed = s.Apply(&Update{SyncedZones: Zones([]int{})})
	require.True(t, changed)
	require.Empty(t, s.SyncedZones)
}

func TestStatus_Clone_Independent(t *testing.T) {
	s := NewStatus(2)
	s.SyncedZones = []int{2, 3}

	c := s.Clone()
	c.SyncedZones[0] = 99
	c.Title = "clone"

	require.Equal(t, 2, s.SyncedZones[0])
	require.Empty(t, s.Title)
}

func TestNumericBool_Marshal(t *testing.T) {
	type wrap struct {
		Shuffle NumericBool `json:"plshuffle"`
	}

	b, err := json.Marshal(wrap{Shuffle: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"plshuffle":1}`, string(b))

	b, err = json.Marshal(wrap{Shuffle: false})
	require.NoError(t, err)
	require.JSONEq(t, `{"plshuffle":0}`, string(b))
}

func TestNumericBool_Unmarshal(t *testing.T) {
	var w struct {
		Shuffle NumericBool `json:"plshuffle"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"plshuffle":1}`), &w))
	require.True(t, bool(w.Shuffle))

	require.NoError(t, json.Unmarshal([]byte(`{"plshuffle":false}`), &w))
	require.False(t, bool(w.Shuffle))

	require.Error(t, json.Unmarshal([]byte(`{"plshuffle":"maybe"}`), &w))
}
