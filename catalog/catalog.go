package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	// EventElementsSuperseded fires when a newer epoch replaced the active
	// element set for a satellite.
	EventElementsSuperseded EventType = iota
)

// Event is emitted to subscribers when the active elements change.
type Event struct {
	Type     EventType
	Elements model.OrbitalElementSet
	// Previous holds the epoch that was replaced; zero for first insert.
	Previous time.Time
}

// Catalog is an in-memory, thread-safe store of the active orbital element
// set per satellite. Element sets are immutable: an upsert with a newer epoch
// replaces the active set wholesale, never mutates it.
type Catalog struct {
	mu sync.RWMutex

	active map[uint32]model.OrbitalElementSet

	subs []func(Event)
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{active: make(map[uint32]model.OrbitalElementSet)}
}

// Upsert installs the element set as the active one for its satellite if its
// epoch is newer than the currently active epoch. Equal or older epochs are
// ignored. It reports whether the set became active.
func (c *Catalog) Upsert(set model.OrbitalElementSet) bool {
	c.mu.Lock()

	prev, exists := c.active[set.SatelliteID]
	if exists && !set.Epoch.After(prev.Epoch) {
		c.mu.Unlock()
		return false
	}
	c.active[set.SatelliteID] = set

	event := Event{Type: EventElementsSuperseded, Elements: set}
	if exists {
		event.Previous = prev.Epoch
	}
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return true
}

// Active returns the active element set for the satellite, if any.
func (c *Catalog) Active(id uint32) (model.OrbitalElementSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.active[id]
	return set, ok
}

// All returns a snapshot of every active element set, ordered by satellite id.
func (c *Catalog) All() []model.OrbitalElementSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(func(model.OrbitalElementSet) bool { return true })
}

// Constellation returns a snapshot of the active element sets carrying the
// given constellation tag, ordered by satellite id.
func (c *Catalog) Constellation(tag string) []model.OrbitalElementSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(func(set model.OrbitalElementSet) bool {
		return set.Constellation == tag
	})
}

// Size returns the number of satellites with an active element set.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// StaleBy lists satellites whose active epoch is older than maxAge at t,
// ordered by satellite id.
func (c *Catalog) StaleBy(t time.Time, maxAge time.Duration) []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []uint32
	for id, set := range c.active {
		if set.Age(t) > maxAge {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
		idx = -1
	}
}

func (c *Catalog) snapshotLocked(keep func(model.OrbitalElementSet) bool) []model.OrbitalElementSet {
	res := make([]model.OrbitalElementSet, 0, len(c.active))
	for _, set := range c.active {
		if keep(set) {
			res = append(res, set)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SatelliteID < res[j].SatelliteID })
	return res
}
