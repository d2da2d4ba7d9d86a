package favorites

import "sync"

// zoneLocks hands out one mutex per zone so mutations of the same favorites
// file serialize while different zones proceed in parallel. Cross-zone
// operations must never hold two of these at once.
type zoneLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newZoneLocks() *zoneLocks {
	return &zoneLocks{locks: make(map[int]*sync.Mutex)}
}

func (z *zoneLocks) forZone(zoneID int) *sync.Mutex {
	z.mu.Lock()
	defer z.mu.Unlock()
	m, ok := z.locks[zoneID]
	if !ok {
		m = &sync.Mutex{}
		z.locks[zoneID] = m
	}
	return m
}

// withZone runs fn while holding the zone's lock.
func (z *zoneLocks) withZone(zoneID int, fn func() error) error {
	m := z.forZone(zoneID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
