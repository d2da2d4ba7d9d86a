package groups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTracker() *Tracker {
	t := NewTracker()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t.now = func() time.Time { return fixed }
	return t
}

func TestTracker_Upsert_NormalizesMembers(t *testing.T) {
	tr := newTestTracker()

	rec, changed := tr.Upsert(Upsert{
		Leader:  5,
		Members: []int{9, 6, 5, 6},
		Backend: "musicassistant",
		Source:  SourceBackend,
	})

	require.True(t, changed)
	require.Equal(t, []int{5, 6, 9}, rec.Members)
	require.Equal(t, 5, rec.Leader)
}

func TestTracker_Upsert_IdempotentReturnsUnchanged(t *testing.T) {
	tr := newTestTracker()
	u := Upsert{Leader: 5, Members: []int{5, 6}, Backend: "musicassistant", Source: SourceBackend}

	_, changed := tr.Upsert(u)
	require.True(t, changed)

	_, changed = tr.Upsert(u)
	require.False(t, changed)

	// Member order must not matter.
	_, changed = tr.Upsert(Upsert{Leader: 5, Members: []int{6, 5}, Backend: "musicassistant", Source: SourceBackend})
	require.False(t, changed)
}

func TestTracker_Upsert_SingleMemberCollapses(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6}, Backend: "musicassistant", Source: SourceBackend})

	rec, changed := tr.Upsert(Upsert{Leader: 5, Members: []int{5}, Backend: "musicassistant", Source: SourceBackend})
	require.True(t, changed)
	require.Nil(t, rec)
	require.Nil(t, tr.ByLeader(5))
	require.Nil(t, tr.ByZone(6))

	// Collapsing an unknown group is a no-op.
	rec, changed = tr.Upsert(Upsert{Leader: 11, Members: []int{11}})
	require.False(t, changed)
	require.Nil(t, rec)
}

func TestTracker_Upsert_MovesMemberBetweenGroups(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 1, Members: []int{1, 2, 3}, Backend: "musicassistant", Source: SourceBackend})

	// Zone 3 moves under a new leader.
	_, changed := tr.Upsert(Upsert{Leader: 4, Members: []int{4, 3}, Backend: "musicassistant", Source: SourceBackend})
	require.True(t, changed)

	require.Equal(t, 4, tr.ByZone(3).Leader)
	require.Equal(t, []int{1, 2}, tr.ByLeader(1).Members)
}

func TestTracker_Upsert_AbsorbingLeaderDissolvesItsGroup(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 1, Members: []int{1, 2}, Backend: "musicassistant", Source: SourceBackend})

	// Zone 1 becomes a plain member of zone 5's group.
	_, changed := tr.Upsert(Upsert{Leader: 5, Members: []int{5, 1}, Backend: "musicassistant", Source: SourceBackend})
	require.True(t, changed)

	require.Nil(t, tr.ByLeader(1))
	require.Nil(t, tr.ByZone(2))
	require.Equal(t, 5, tr.ByZone(1).Leader)
}

func TestTracker_ExternalIDSwap(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6}, Backend: "musicassistant", ExternalID: "grp-a", Source: SourceBackend})
	require.NotNil(t, tr.ByExternalID("grp-a"))

	_, changed := tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6}, Backend: "musicassistant", ExternalID: "grp-b", Source: SourceBackend})
	require.True(t, changed)
	require.Nil(t, tr.ByExternalID("grp-a"))
	require.Equal(t, 5, tr.ByExternalID("grp-b").Leader)
}

func TestTracker_RemoveByLeader_ClearsAllIndices(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6, 7}, Backend: "musicassistant", ExternalID: "grp", Source: SourceBackend})

	require.True(t, tr.RemoveByLeader(5))
	for _, zone := range []int{5, 6, 7} {
		require.Nil(t, tr.ByZone(zone), "zone %d", zone)
	}
	require.Nil(t, tr.ByExternalID("grp"))

	require.False(t, tr.RemoveByLeader(5))
}

func TestTracker_RemoveZone(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6, 7}, Backend: "musicassistant", Source: SourceBackend})

	// Removing a plain member keeps the group alive.
	require.True(t, tr.RemoveZone(7))
	require.Equal(t, []int{5, 6}, tr.ByLeader(5).Members)

	// Removing the second-to-last member collapses the group.
	require.True(t, tr.RemoveZone(6))
	require.Nil(t, tr.ByLeader(5))

	require.False(t, tr.RemoveZone(99))
}

func TestTracker_RemoveZone_LeaderDissolvesGroup(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6, 7}, Backend: "musicassistant", Source: SourceBackend})

	require.True(t, tr.RemoveZone(5))
	require.Nil(t, tr.ByZone(6))
	require.Nil(t, tr.ByZone(7))
}

func TestTracker_AllAndClear(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 9, Members: []int{9, 10}, Backend: "musicassistant", Source: SourceBackend})
	tr.Upsert(Upsert{Leader: 2, Members: []int{2, 3}, Backend: "beolink", Source: SourceManual})

	all := tr.All()
	require.Len(t, all, 2)
	require.Equal(t, 2, all[0].Leader)
	require.Equal(t, 9, all[1].Leader)

	tr.Clear()
	require.Empty(t, tr.All())
	require.Nil(t, tr.ByZone(9))
}

func TestTracker_ReturnsCopies(t *testing.T) {
	tr := newTestTracker()
	tr.Upsert(Upsert{Leader: 5, Members: []int{5, 6}, Backend: "musicassistant", Source: SourceBackend})

	rec := tr.ByLeader(5)
	rec.Members[0] = 999

	require.Equal(t, []int{5, 6}, tr.ByLeader(5).Members)
}
