// Package groups tracks multi-zone playback groups. The tracker is the
// single source of truth for group topology; backends report what the vendor
// believes and the tracker diffs it so no-op updates never reach the
// broadcast plane.
package groups

import (
	"sort"
	"sync"
	"time"
)

// Source records who created a group.
type Source string

const (
	SourceManual  Source = "manual"
	SourceBackend Source = "backend"
)

// Record describes one sync group. Members always hold the leader first,
// followed by the remaining zones in ascending order.
type Record struct {
	Leader     int
	Members    []int
	Backend    string
	ExternalID string
	Source     Source
	UpdatedAt  time.Time
}

func (r *Record) clone() *Record {
	out := *r
	out.Members = append([]int(nil), r.Members...)
	return &out
}

// Tracker maintains the group topology with three lookup indices: by leader,
// by member zone and by vendor-side external id.
type Tracker struct {
	mu               sync.RWMutex
	groupsByLeader   map[int]*Record
	leaderByZone     map[int]int
	leaderByExternal map[string]int

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		groupsByLeader:   make(map[int]*Record),
		leaderByZone:     make(map[int]int),
		leaderByExternal: make(map[string]int),
		now:              time.Now,
	}
}

// Upsert installs or updates a group and reports whether the topology
// actually changed. Groups that collapse to a single member are removed.
// Every member belongs to exactly one group, so members are pulled out of
// any other group they were part of.
type Upsert struct {
	Leader     int
	Members    []int
	Backend    string
	ExternalID string
	Source     Source
}

func (t *Tracker) Upsert(u Upsert) (*Record, bool) {
	members := normalizeMembers(u.Leader, u.Members)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(members) <= 1 {
		return nil, t.removeByLeaderLocked(u.Leader)
	}

	changed := false
	// Detach members from any other group first. A member that leads
	// another group dissolves it.
	for _, zone := range members {
		leader, ok := t.leaderByZone[zone]
		if !ok || leader == u.Leader {
			continue
		}
		if leader == zone {
			if t.removeByLeaderLocked(leader) {
				changed = true
			}
		} else if t.detachZoneLocked(leader, zone) {
			changed = true
		}
	}

	existing := t.groupsByLeader[u.Leader]
	if existing != nil &&
		intsEqual(existing.Members, members) &&
		existing.Backend == u.Backend &&
		existing.ExternalID == u.ExternalID &&
		existing.Source == u.Source {
		return existing.clone(), changed
	}

	if existing != nil && existing.ExternalID != "" && existing.ExternalID != u.ExternalID {
		delete(t.leaderByExternal, existing.ExternalID)
	}

	rec := &Record{
		Leader:     u.Leader,
		Members:    members,
		Backend:    u.Backend,
		ExternalID: u.ExternalID,
		Source:     u.Source,
		UpdatedAt:  t.now(),
	}
	t.groupsByLeader[u.Leader] = rec
	for _, zone := range members {
		t.leaderByZone[zone] = u.Leader
	}
	if u.ExternalID != "" {
		t.leaderByExternal[u.ExternalID] = u.Leader
	}
	return rec.clone(), true
}

// RemoveByLeader dissolves the group led by leader.
func (t *Tracker) RemoveByLeader(leader int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeByLeaderLocked(leader)
}

// RemoveZone takes a single zone out of whatever group it belongs to. A
// leader leaving dissolves its group; a group left with one member
// collapses.
func (t *Tracker) RemoveZone(zoneID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	leader, ok := t.leaderByZone[zoneID]
	if !ok {
		return false
	}
	if leader == zoneID {
		return t.removeByLeaderLocked(leader)
	}
	return t.detachZoneLocked(leader, zoneID)
}

// ByZone returns the group containing zoneID, or nil.
func (t *Tracker) ByZone(zoneID int) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	leader, ok := t.leaderByZone[zoneID]
	if !ok {
		return nil
	}
	if rec, ok := t.groupsByLeader[leader]; ok {
		return rec.clone()
	}
	return nil
}

// ByLeader returns the group led by leader, or nil.
func (t *Tracker) ByLeader(leader int) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.groupsByLeader[leader]; ok {
		return rec.clone()
	}
	return nil
}

// ByExternalID resolves a vendor-side group handle, or nil.
func (t *Tracker) ByExternalID(externalID string) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	leader, ok := t.leaderByExternal[externalID]
	if !ok {
		return nil
	}
	if rec, ok := t.groupsByLeader[leader]; ok {
		return rec.clone()
	}
	return nil
}

// All returns every group, ordered by leader for stable output.
func (t *Tracker) All() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Record, 0, len(t.groupsByLeader))
	for _, rec := range t.groupsByLeader {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Leader < out[j].Leader })
	return out
}

// Clear drops every group, e.g. when a backend loses its connection and the
// topology must be relearned.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groupsByLeader = make(map[int]*Record)
	t.leaderByZone = make(map[int]int)
	t.leaderByExternal = make(map[string]int)
}

func (t *Tracker) removeByLeaderLocked(leader int) bool {
	rec, ok := t.groupsByLeader[leader]
	if !ok {
		return false
	}
	for _, zone := range rec.Members {
		if t.leaderByZone[zone] == leader {
			delete(t.leaderByZone, zone)
		}
	}
	if rec.ExternalID != "" {
		delete(t.leaderByExternal, rec.ExternalID)
	}
	delete(t.groupsByLeader, leader)
	return true
}

func (t *Tracker) detachZoneLocked(leader, zoneID int) bool {
	rec, ok := t.groupsByLeader[leader]
	if !ok {
		return false
	}
	remaining := make([]int, 0, len(rec.Members))
	for _, m := range rec.Members {
		if m != zoneID {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == len(rec.Members) {
		return false
	}
	delete(t.leaderByZone, zoneID)
	if len(remaining) <= 1 {
		rec.Members = remaining
		return t.removeByLeaderLocked(leader)
	}
	rec.Members = remaining
	rec.UpdatedAt = t.now()
	return true
}

// normalizeMembers dedupes and sorts, leader first.
func normalizeMembers(leader int, members []int) []int {
	seen := map[int]bool{leader: true}
	rest := make([]int, 0, len(members))
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			rest = append(rest, m)
		}
	}
	sort.Ints(rest)
	return append([]int{leader}, rest...)
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
