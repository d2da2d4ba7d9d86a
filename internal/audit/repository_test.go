package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/db"
)

func testPair(t *testing.T) *db.DBPair {
	t.Helper()
	pair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return pair
}

func testRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(testPair(t))
}

func TestRepository_InsertAppliesDefaults(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Insert(Entry{Surface: "ws", Command: "audio/cfg/getradios"}))

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.NotEmpty(t, ev.EventID)
	require.NotEmpty(t, ev.Timestamp)
	require.Equal(t, "ws", ev.Surface)
	require.Equal(t, "audio/cfg/getradios", ev.Command)
	require.Equal(t, OutcomeOK, ev.Outcome)
	require.Zero(t, ev.ZoneID)
	require.Empty(t, ev.RequestID)
	require.NotNil(t, ev.Payload)
	require.Empty(t, ev.Payload)
}

func TestRepository_RoundTripsFullEntry(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Insert(Entry{
		Surface:   "http",
		ZoneID:    7,
		Command:   "audio/7/volume/+5",
		Outcome:   OutcomeError,
		RequestID: "req-1",
		Message:   "volume: bad level",
		Payload:   map[string]any{"verb": "volume", "arg": "+5"},
	}))

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, 7, ev.ZoneID)
	require.Equal(t, OutcomeError, ev.Outcome)
	require.Equal(t, "req-1", ev.RequestID)
	require.Equal(t, "volume: bad level", ev.Message)
	require.Equal(t, "volume", ev.Payload["verb"])
	require.Equal(t, "+5", ev.Payload["arg"])
}

func TestRepository_ListNewestFirstWithLimit(t *testing.T) {
	repo := testRepo(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(Entry{
			Surface: "ws",
			Command: fmt.Sprintf("audio/1/test/%d", i),
		}))
	}

	events, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "audio/1/test/4", events[0].Command)
	require.Equal(t, "audio/1/test/3", events[1].Command)

	events, err = repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 5)
}

func TestRepository_PruneDropsExpiredRows(t *testing.T) {
	pair := testPair(t)
	repo := NewRepository(pair)

	stale := time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339)
	_, err := pair.Writer().Exec(`
		INSERT INTO audit_events (event_id, timestamp, surface, command)
		VALUES (?, ?, ?, ?)
	`, "stale-1", stale, "ws", "audio/1/play")
	require.NoError(t, err)
	require.NoError(t, repo.Insert(Entry{Surface: "ws", Command: "audio/1/pause"}))

	removed, err := repo.Prune(time.Now().UTC().AddDate(0, 0, -retentionDays))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "audio/1/pause", events[0].Command)
}
