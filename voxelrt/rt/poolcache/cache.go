package poolcache

import (
	"sync"
	"sync/atomic"

	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// LoadState is the closed sum of states a brick's cache entry can be in.
type LoadState int

const (
	NotLoaded LoadState = iota
	Pending
	Loading
	Loaded
)

type entry struct {
	mu    sync.Mutex
	state LoadState
	slot  uint32 // valid iff state == Loaded
}

// Cache is the CPU-side mirror of pool residency plus the brick_id -> slot
// indirection table uploaded to the shader each frame.
//
// Concurrency follows the two-level locking pattern used elsewhere in this
// codebase for concurrent maps-of-structs: a Cache-wide RWMutex (mapMu) guards
// structural changes to the entry map (insert of a never-seen BrickID),
// while each entry's own mutex guards its state transitions -- so a reader
// checking one brick's residency never blocks a writer transitioning a
// different brick's state.
type Cache struct {
	pool *Pool

	mapMu   sync.RWMutex
	entries map[svo.BrickID]*entry

	requests  atomic.Uint64
	hits      atomic.Uint64
}

func NewCache(pool *Pool) *Cache {
	return &Cache{pool: pool, entries: make(map[svo.BrickID]*entry)}
}

func (c *Cache) getOrCreate(id svo.BrickID) *entry {
	c.mapMu.RLock()
	e, ok := c.entries[id]
	c.mapMu.RUnlock()
	if ok {
		return e
	}

	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e
	}
	e = &entry{}
	c.entries[id] = e
	return e
}

// BeginFrame resets the per-frame counters and advances the pool's frame.
func (c *Cache) BeginFrame() {
	c.pool.BeginFrame()
	c.requests.Store(0)
	c.hits.Store(0)
}

// Request records a demand for brickID, transitioning NotLoaded -> Pending.
// Returns true if this call caused the transition (i.e. the brick was in
// NotLoaded: never seen, or evicted since).
func (c *Cache) Request(id svo.BrickID) bool {
	c.requests.Add(1)
	e := c.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Loaded {
		c.hits.Add(1)
		return false
	}
	if e.state != NotLoaded {
		return false
	}
	e.state = Pending
	return true
}

// State returns the current cache state (and, if Loaded, the slot) for id.
func (c *Cache) State(id svo.BrickID) (LoadState, uint32) {
	c.mapMu.RLock()
	e, ok := c.entries[id]
	c.mapMu.RUnlock()
	if !ok {
		return NotLoaded, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.slot
}

// BeginLoading transitions Pending -> Loading; called by a worker popping a
// pending brick off the load queue.
func (c *Cache) BeginLoading(id svo.BrickID) {
	e := c.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Pending {
		e.state = Loading
	}
}

// MarkLoaded transitions Loading -> Loaded{slot} and writes the indirection
// entry. It is idempotent: calling it twice with the same slot is a no-op.
func (c *Cache) MarkLoaded(id svo.BrickID, slotIdx uint32) {
	e := c.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Loaded
	e.slot = slotIdx
}

// MarkEvicted resets the cache entry for a brick evicted from the pool and
// writes the BRICK_NOT_LOADED sentinel in effect (callers read State and
// find NotLoaded, which indirection-table packers render as NotResident).
func (c *Cache) MarkEvicted(id svo.BrickID) {
	e := c.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = NotLoaded
	e.slot = 0
}

// IndirectionEntry returns the value the shader's indirection table should
// carry for id: the pool slot if Loaded, NotResident otherwise.
func (c *Cache) IndirectionEntry(id svo.BrickID) uint32 {
	state, slot := c.State(id)
	if state != Loaded {
		return NotResident
	}
	return slot
}

// Stats are the per-frame counters reset at BeginFrame.
type Stats struct {
	Requests uint64
	Hits     uint64
	HitRate  float64
}

func (c *Cache) Stats() Stats {
	req := c.requests.Load()
	hits := c.hits.Load()
	rate := 0.0
	if req > 0 {
		rate = float64(hits) / float64(req)
	}
	return Stats{Requests: req, Hits: hits, HitRate: rate}
}
