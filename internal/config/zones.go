package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// VolumeConfig carries the per-zone volume policy shown to the miniserver.
// Zero values mean "not configured" and fall back to defaults.
type VolumeConfig struct {
	Default int `json:"default"`
	Max     int `json:"max"`
	TTS     int `json:"tts"`
	Alarm   int `json:"alarm"`
	Event   int `json:"event"`
}

// Normalize fills unset volume fields with workable defaults.
func (v VolumeConfig) Normalize() VolumeConfig {
	if v.Default == 0 {
		v.Default = 25
	}
	if v.Max == 0 {
		v.Max = 100
	}
	if v.TTS == 0 {
		v.TTS = 30
	}
	if v.Alarm == 0 {
		v.Alarm = 50
	}
	if v.Event == 0 {
		v.Event = 40
	}
	return v
}

// ZoneConfig describes one zone from the admin config file. The file is
// admin-written; only the documented subset is read here, everything else is
// ignored.
type ZoneConfig struct {
	ID       int          `json:"id"`
	Name     string       `json:"name"`
	Backend  string       `json:"backend"`
	IP       string       `json:"ip"`
	PlayerID string       `json:"playerid"`
	Source   string       `json:"source"`
	Username string       `json:"username"`
	Password string       `json:"password"`
	Volumes  VolumeConfig `json:"volumes"`
}

type zonesFile struct {
	Zones []ZoneConfig `json:"zones"`
}

// LoadZones reads the zone list from the admin config file. A missing file
// yields an empty list (zones can arrive later via hot reload); a malformed
// file is an error.
func LoadZones(path string) ([]ZoneConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ZoneConfig{}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var parsed zonesFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	seen := make(map[int]bool, len(parsed.Zones))
	zones := make([]ZoneConfig, 0, len(parsed.Zones))
	for _, z := range parsed.Zones {
		if z.ID <= 0 {
			return nil, fmt.Errorf("config file %s: zone with missing or non-positive id", path)
		}
		if seen[z.ID] {
			return nil, fmt.Errorf("config file %s: duplicate zone id %d", path, z.ID)
		}
		seen[z.ID] = true
		z.Volumes = z.Volumes.Normalize()
		zones = append(zones, z)
	}
	return zones, nil
}
