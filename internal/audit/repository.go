// Package audit keeps the command trail: one row per accepted miniserver
// command, written off the dispatch path and pruned after thirty days.
package audit

import (
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Outcome classifies how a recorded command ended.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Event is one recorded command as served by getaudit.
type Event struct {
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	Surface   string         `json:"surface"`
	ZoneID    int            `json:"zone_id,omitempty"`
	Command   string         `json:"command"`
	Outcome   Outcome        `json:"outcome"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// Entry is one command to record. A zero ZoneID means the command had no
// zone, as with the cfg surface.
type Entry struct {
	Surface   string
	ZoneID    int
	Command   string
	Outcome   Outcome
	RequestID string
	Message   string
	Payload   map[string]any
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

func NewRepository(pair DBPair) *Repository {
	return &Repository{reader: pair.Reader(), writer: pair.Writer()}
}

// Insert writes one event row, generating its id and timestamp.
func (r *Repository) Insert(e Entry) error {
	outcome := e.Outcome
	if outcome == "" {
		outcome = OutcomeOK
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (event_id, timestamp, surface, zone_id, command, outcome, request_id, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), nowISO(), e.Surface, nullableZone(e.ZoneID), e.Command, string(outcome), nullable(e.RequestID), e.Message, string(payloadJSON))
	return err
}

// List returns the newest events, newest first. The limit is clamped to
// maxListLimit; zero or negative asks for the default page.
func (r *Repository) List(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.reader.Query(`
		SELECT event_id, timestamp, surface, zone_id, command, outcome, request_id, message, payload
		FROM audit_events
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var zoneID sql.NullInt64
		var outcome string
		var requestID sql.NullString
		var payloadJSON string
		if err := rows.Scan(&ev.EventID, &ev.Timestamp, &ev.Surface, &zoneID, &ev.Command, &outcome, &requestID, &ev.Message, &payloadJSON); err != nil {
			return nil, err
		}
		if zoneID.Valid {
			ev.ZoneID = int(zoneID.Int64)
		}
		ev.Outcome = Outcome(outcome)
		ev.RequestID = requestID.String
		if err := json.Unmarshal([]byte(payloadJSON), &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Prune deletes events older than the cutoff. Returns rows deleted.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(
		"DELETE FROM audit_events WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableZone(id int) any {
	if id <= 0 {
		return nil
	}
	return id
}
