package favorites

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/fsutil"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// favoritesListName is the display name written into every favorites file
// that does not already carry one.
const favoritesListName = "Favorites"

// record pairs a typed favorite with the raw keys of its persisted form, so
// fields this schema does not know about survive every rewrite.
type record struct {
	item  provider.FavoriteItem
	extra map[string]json.RawMessage
}

func (r record) clone() record {
	extra := make(map[string]json.RawMessage, len(r.extra))
	for k, v := range r.extra {
		extra[k] = append(json.RawMessage(nil), v...)
	}
	return record{item: r.item, extra: extra}
}

// zoneFile is the in-memory form of one zone's favorites file.
type zoneFile struct {
	name  string
	ts    int64
	items []record
	extra map[string]json.RawMessage
}

func newZoneFile() *zoneFile {
	return &zoneFile{name: favoritesListName, extra: map[string]json.RawMessage{}}
}

func decodeZoneFile(data []byte) (*zoneFile, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parsing favorites file: %w", err)
	}

	zf := &zoneFile{name: favoritesListName, extra: top}
	if raw, ok := top["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			zf.name = name
		}
	}
	if raw, ok := top["ts"]; ok {
		_ = json.Unmarshal(raw, &zf.ts)
	}

	rawItems, ok := top["items"]
	if !ok {
		return zf, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(rawItems, &list); err != nil {
		return nil, fmt.Errorf("parsing favorites items: %w", err)
	}
	for i, raw := range list {
		var item provider.FavoriteItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("parsing favorite %d: %w", i, err)
		}
		full := map[string]json.RawMessage{}
		_ = json.Unmarshal(raw, &full)
		zf.items = append(zf.items, record{item: item, extra: full})
	}
	return zf, nil
}

// encodeZoneFile serializes the file with the typed fields layered over each
// record's raw form. Map-based encoding keeps key order deterministic, so
// writing the same state twice yields the same bytes.
func encodeZoneFile(zoneID int, zf *zoneFile) ([]byte, error) {
	out := make(map[string]any, len(zf.extra)+6)
	for k, v := range zf.extra {
		out[k] = v
	}

	items := make([]map[string]any, 0, len(zf.items))
	for _, rec := range zf.items {
		m := make(map[string]any, len(rec.extra)+4)
		for k, v := range rec.extra {
			m[k] = v
		}
		typedRaw, err := json.Marshal(rec.item)
		if err != nil {
			return nil, err
		}
		var typed map[string]json.RawMessage
		if err := json.Unmarshal(typedRaw, &typed); err != nil {
			return nil, err
		}
		for k, v := range typed {
			m[k] = v
		}
		items = append(items, m)
	}

	out["id"] = strconv.Itoa(zoneID)
	out["name"] = zf.name
	out["start"] = 0
	out["totalitems"] = len(zf.items)
	out["ts"] = zf.ts
	out["items"] = items
	return json.MarshalIndent(out, "", "  ")
}

// resequence restores the slot and id invariants after any mutation: slots
// run 1..n and id = BaseFavoriteID + slot - 1.
func resequence(zf *zoneFile) {
	for i := range zf.items {
		zf.items[i].item.Slot = i + 1
		zf.items[i].item.ID = provider.BaseFavoriteID + uint(i)
	}
}

// Store owns the per-zone favorites files under one directory.
type Store struct {
	dir   string
	locks *zoneLocks
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, locks: newZoneLocks()}
}

func (s *Store) path(zoneID int) string {
	return filepath.Join(s.dir, strconv.Itoa(zoneID)+".json")
}

// With loads the zone's file under its lock and hands it to fn. When fn
// reports dirty, the file is resequenced and written back atomically. The
// returned count is the item count after fn ran.
func (s *Store) With(zoneID int, fn func(zf *zoneFile) (dirty bool, err error)) (int, error) {
	var count int
	err := s.locks.withZone(zoneID, func() error {
		zf, err := s.load(zoneID)
		if err != nil {
			return err
		}
		dirty, err := fn(zf)
		if err != nil {
			return err
		}
		if dirty {
			resequence(zf)
			if err := s.save(zoneID, zf); err != nil {
				return err
			}
		}
		count = len(zf.items)
		return nil
	})
	return count, err
}

func (s *Store) load(zoneID int) (*zoneFile, error) {
	data, err := os.ReadFile(s.path(zoneID))
	if err != nil {
		if os.IsNotExist(err) {
			return newZoneFile(), nil
		}
		return nil, apperrors.NewResourceError(fmt.Sprintf("reading favorites for zone %d", zoneID), err)
	}
	zf, err := decodeZoneFile(data)
	if err != nil {
		// A corrupt file is surfaced, never silently replaced.
		return nil, apperrors.NewResourceError(fmt.Sprintf("favorites file for zone %d is corrupt", zoneID), err)
	}
	return zf, nil
}

func (s *Store) save(zoneID int, zf *zoneFile) error {
	zf.ts = time.Now().UnixMilli()
	data, err := encodeZoneFile(zoneID, zf)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("encoding favorites for zone %d", zoneID), err)
	}
	if err := fsutil.EnsureDir(s.dir); err != nil {
		return apperrors.NewResourceError("creating favorites directory", err)
	}
	if err := fsutil.WriteFileAtomic(s.path(zoneID), data, 0o644); err != nil {
		return apperrors.NewResourceError(fmt.Sprintf("writing favorites for zone %d", zoneID), err)
	}
	return nil
}

// Verify reports the invariant violations in an encoded favorites file:
// non-contiguous slots, ids off the slot-derived value and a stale
// totalitems counter.
func Verify(data []byte) ([]string, error) {
	zf, err := decodeZoneFile(data)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, rec := range zf.items {
		if rec.item.Slot != i+1 {
			out = append(out, fmt.Sprintf("item %d: slot %d, want %d", i, rec.item.Slot, i+1))
		}
		if want := provider.BaseFavoriteID + uint(i); rec.item.ID != want {
			out = append(out, fmt.Sprintf("item %d: id %d, want %d", i, rec.item.ID, want))
		}
	}
	if raw, ok := zf.extra["totalitems"]; ok {
		var total int
		if err := json.Unmarshal(raw, &total); err == nil && total != len(zf.items) {
			out = append(out, fmt.Sprintf("totalitems %d, want %d", total, len(zf.items)))
		}
	}
	return out, nil
}

// Repair rewrites an encoded favorites file with the slot and id invariants
// restored. Unknown keys are preserved.
func Repair(zoneID int, data []byte) ([]byte, error) {
	zf, err := decodeZoneFile(data)
	if err != nil {
		return nil, err
	}
	resequence(zf)
	return encodeZoneFile(zoneID, zf)
}
