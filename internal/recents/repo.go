// Package recents keeps the server-side play history: one row per play
// transition, capped per zone, answering getrecent when the active media
// provider carries no history of its own.
package recents

import (
	"database/sql"
	"errors"
	"time"

	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// maxPerZone caps the stored history per zone; older rows are pruned on
// insert.
const maxPerZone = 200

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository stores and serves play-history rows.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

func NewRepository(pair DBPair) *Repository {
	return &Repository{reader: pair.Reader(), writer: pair.Writer()}
}

// Insert appends one history row. When the zone's newest row already holds
// the same audiopath the row is refreshed in place, so pause/resume cycles
// and repeated status merges do not pile up duplicates.
func (r *Repository) Insert(zoneID int, item provider.RecentItem) error {
	if item.AudioPath == "" {
		return nil
	}
	now := nowISO()

	var lastID int64
	var lastPath string
	err := r.reader.QueryRow(`
		SELECT id, audiopath FROM play_history
		WHERE zone_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, zoneID).Scan(&lastID, &lastPath)
	switch {
	case err == nil && lastPath == item.AudioPath:
		_, err = r.writer.Exec(`
			UPDATE play_history
			SET title = ?, artist = ?, album = ?, station = ?, audiotype = ?, coverurl = ?, played_at = ?
			WHERE id = ?
		`, item.Title, item.Artist, item.Album, item.Station, int(item.AudioType), item.CoverURL, now, lastID)
		return err
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = r.writer.Exec(`
		INSERT INTO play_history (zone_id, audiopath, title, artist, album, station, audiotype, coverurl, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, zoneID, item.AudioPath, item.Title, item.Artist, item.Album, item.Station, int(item.AudioType), item.CoverURL, now)
	if err != nil {
		return err
	}
	return r.prune(zoneID)
}

// List returns the zone's newest entries, newest first.
func (r *Repository) List(zoneID, limit int) ([]provider.RecentItem, error) {
	if limit <= 0 || limit > maxPerZone {
		limit = maxPerZone
	}

	rows, err := r.reader.Query(`
		SELECT audiopath, title, artist, album, station, audiotype, coverurl, played_at
		FROM play_history
		WHERE zone_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, zoneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []provider.RecentItem{}
	for rows.Next() {
		var item provider.RecentItem
		var title, artist, album, station, coverURL sql.NullString
		var audioType int
		if err := rows.Scan(&item.AudioPath, &title, &artist, &album, &station, &audioType, &coverURL, &item.PlayedAt); err != nil {
			return nil, err
		}
		item.Title = title.String
		item.Artist = artist.String
		item.Album = album.String
		item.Station = station.String
		item.CoverURL = coverURL.String
		item.AudioType = player.AudioType(audioType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Clear wipes the zone's history.
func (r *Repository) Clear(zoneID int) error {
	_, err := r.writer.Exec("DELETE FROM play_history WHERE zone_id = ?", zoneID)
	return err
}

// prune drops everything but the zone's newest maxPerZone rows.
func (r *Repository) prune(zoneID int) error {
	_, err := r.writer.Exec(`
		DELETE FROM play_history
		WHERE zone_id = ? AND id NOT IN (
			SELECT id FROM play_history
			WHERE zone_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, zoneID, zoneID, maxPerZone)
	return err
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
