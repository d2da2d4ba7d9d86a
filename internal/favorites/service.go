// Package favorites is the persistent per-zone favorites store: one JSON
// file per zone with contiguous slot numbering, slot-derived ids, provider
// metadata enrichment and change events on every mutation.
package favorites

import (
	"context"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/ident"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// Publisher is the push-event sink for roomfavchanged_event frames.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Service exposes the favorites operations backed by the file store.
type Service struct {
	store  *Store
	enrich *enricher
	events Publisher
	logger zerolog.Logger
}

func NewService(store *Store, resolve ResolverFunc, events Publisher) *Service {
	logger := log.WithComponent("favorites")
	return &Service{
		store:  store,
		enrich: newEnricher(resolve, logger),
		events: events,
		logger: logger,
	}
}

// Get returns one page of the zone's favorites; limit <= 0 returns
// everything from start. Metadata learned during enrichment is persisted, so
// a later read is complete without provider lookups.
func (s *Service) Get(ctx context.Context, zoneID, start, limit int) (*provider.FavoriteResponse, error) {
	var snap *zoneFile
	_, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		dirty := false
		for i := range zf.items {
			if s.enrich.apply(ctx, &zf.items[i].item) {
				dirty = true
			}
		}
		snap = zf
		return dirty, nil
	})
	if err != nil {
		return nil, err
	}
	return buildResponse(zoneID, snap, start, limit), nil
}

// Add appends a favorite. An absent sourceID is derived from the title as a
// slug, so hand-entered favorites still get a stable cache key.
func (s *Service) Add(ctx context.Context, zoneID int, title, sourceID string) (*provider.FavoriteResponse, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.NewValidationError("favorite title is required")
	}
	if sourceID == "" {
		sourceID = slugify(title)
	}

	var snap *zoneFile
	count, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		item := newFavorite(title, sourceID)
		s.enrich.apply(ctx, &item)
		zf.items = append(zf.items, record{item: item, extra: map[string]json.RawMessage{}})
		snap = zf
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("zone", zoneID).Str("sourceId", sourceID).Msg("favorite added")
	s.emitChanged(zoneID, count)
	return buildResponse(zoneID, snap, 0, 0), nil
}

// Delete removes the favorite with the given id and closes the slot gap.
func (s *Service) Delete(zoneID int, id uint) error {
	count, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		kept := make([]record, 0, len(zf.items))
		found := false
		for _, rec := range zf.items {
			if rec.item.ID == id {
				found = true
				continue
			}
			kept = append(kept, rec)
		}
		if !found {
			return false, apperrors.NewLookupMiss("favorite", strconv.FormatUint(uint64(id), 10))
		}
		zf.items = kept
		return true, nil
	})
	if err != nil {
		return err
	}
	s.emitChanged(zoneID, count)
	return nil
}

// Reorder moves the mentioned ids to the front in the given order; every
// other item keeps its relative position behind them. Unknown ids are
// ignored.
func (s *Service) Reorder(zoneID int, orderedIDs []uint) error {
	count, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		zf.items = reorderRecords(zf.items, orderedIDs)
		return true, nil
	})
	if err != nil {
		return err
	}
	s.emitChanged(zoneID, count)
	return nil
}

func reorderRecords(items []record, orderedIDs []uint) []record {
	index := make(map[uint]int, len(items))
	for i, rec := range items {
		index[rec.item.ID] = i
	}
	taken := make(map[int]bool, len(orderedIDs))
	out := make([]record, 0, len(items))
	for _, id := range orderedIDs {
		i, ok := index[id]
		if !ok || taken[i] {
			continue
		}
		taken[i] = true
		out = append(out, items[i])
	}
	for i, rec := range items {
		if !taken[i] {
			out = append(out, rec)
		}
	}
	return out
}

// SetPlus sets the plus flag on the favorite with the given id.
func (s *Service) SetPlus(zoneID int, id uint, plus bool) error {
	count, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		for i := range zf.items {
			if zf.items[i].item.ID == id {
				zf.items[i].item.Plus = plus
				return true, nil
			}
		}
		return false, apperrors.NewLookupMiss("favorite", strconv.FormatUint(uint64(id), 10))
	})
	if err != nil {
		return err
	}
	s.emitChanged(zoneID, count)
	return nil
}

// Copy overwrites each destination zone's favorites with the source zone's
// list. The source lock is released before any destination lock is taken; a
// destination equal to the source is skipped.
func (s *Service) Copy(sourceZone int, destZones []int) error {
	var src []record
	_, err := s.store.With(sourceZone, func(zf *zoneFile) (bool, error) {
		src = make([]record, 0, len(zf.items))
		for _, rec := range zf.items {
			src = append(src, rec.clone())
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	for _, dest := range destZones {
		if dest == sourceZone {
			continue
		}
		items := make([]record, 0, len(src))
		for _, rec := range src {
			items = append(items, rec.clone())
		}
		count, err := s.store.With(dest, func(zf *zoneFile) (bool, error) {
			zf.items = items
			zf.extra = map[string]json.RawMessage{}
			return true, nil
		})
		if err != nil {
			return err
		}
		s.logger.Info().Int("from", sourceZone).Int("to", dest).Int("count", count).Msg("favorites copied")
		s.emitChanged(dest, count)
	}
	return nil
}

// GetForPlayback returns the favorite with the given id, or nil when the
// zone has no such favorite. Playback resolution treats absence as a lookup
// miss, not an error.
func (s *Service) GetForPlayback(zoneID int, id uint) (*provider.FavoriteItem, error) {
	var found *provider.FavoriteItem
	_, err := s.store.With(zoneID, func(zf *zoneFile) (bool, error) {
		for _, rec := range zf.items {
			if rec.item.ID == id {
				item := rec.item
				found = &item
				break
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Service) emitChanged(zoneID, count int) {
	s.events.Publish(broadcast.EventRoomFav, map[string]any{
		"count":    count,
		"playerid": zoneID,
	})
}

func newFavorite(title, sourceID string) provider.FavoriteItem {
	id := ident.Parse(sourceID)
	return provider.FavoriteItem{
		Name:      title,
		Title:     title,
		AudioPath: sourceID,
		SourceID:  sourceID,
		Type:      int(player.AudioTypeForPath(sourceID)),
		Service:   id.Kind,
		Provider:  id.Provider,
		RawID:     id.ItemID,
	}
}

func buildResponse(zoneID int, zf *zoneFile, start, limit int) *provider.FavoriteResponse {
	items := make([]provider.FavoriteItem, 0, len(zf.items))
	for _, rec := range zf.items {
		items = append(items, rec.item)
	}
	return &provider.FavoriteResponse{
		ID:         strconv.Itoa(zoneID),
		Name:       zf.name,
		Start:      start,
		TotalItems: len(items),
		TS:         zf.ts,
		Items:      pageItems(items, start, limit),
	}
}

func pageItems(items []provider.FavoriteItem, start, limit int) []provider.FavoriteItem {
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return []provider.FavoriteItem{}
	}
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]provider.FavoriteItem{}, items[start:end]...)
}

// slugify derives a stable source id from a display title.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
