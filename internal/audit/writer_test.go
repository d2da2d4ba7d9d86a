package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriter_PersistsOffTheCallPath(t *testing.T) {
	repo := testRepo(t)
	w := NewWriter(repo)
	t.Cleanup(w.Close)

	w.Record(Entry{Surface: "ws", ZoneID: 1, Command: "audio/1/play"})

	require.Eventually(t, func() bool {
		events, err := repo.List(0)
		return err == nil && len(events) == 1
	}, 3*time.Second, 10*time.Millisecond)

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Equal(t, "audio/1/play", events[0].Command)
	require.Equal(t, 1, events[0].ZoneID)
}

func TestWriter_CloseDrainsQueue(t *testing.T) {
	repo := testRepo(t)
	w := NewWriter(repo)

	for i := 0; i < 10; i++ {
		w.Record(Entry{Surface: "ws", Command: fmt.Sprintf("audio/1/test/%d", i)})
	}
	w.Close()

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 10)

	// Records after Close are dropped, commandless entries always are.
	w.Record(Entry{Surface: "ws", Command: "audio/1/late"})
	w.Close()

	events, err = repo.List(0)
	require.NoError(t, err)
	require.Len(t, events, 10)
}

func TestPruner_RemovesExpiredRowsOnStart(t *testing.T) {
	pair := testPair(t)
	repo := NewRepository(pair)

	stale := time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339)
	_, err := pair.Writer().Exec(`
		INSERT INTO audit_events (event_id, timestamp, surface, command)
		VALUES (?, ?, ?, ?)
	`, "stale-1", stale, "ws", "audio/1/play")
	require.NoError(t, err)

	p := NewPruner(repo)
	require.NoError(t, p.Start())
	t.Cleanup(p.Stop)

	events, err := repo.List(0)
	require.NoError(t, err)
	require.Empty(t, events)
}
