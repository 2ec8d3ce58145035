// Package poolcache implements the fixed-capacity GPU brick pool and its
// CPU-side cache: LRU slot allocation, the brick_id -> slot indirection
// table, and the per-frame hit-rate counters the streaming orchestrator
// reports.
package poolcache

import (
	"sync"

	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// NotResident is the sentinel indirection-table value meaning "this brick
// has no pool slot" -- used both for BRICK_NOT_LOADED (cache state) and
// BRICK_NOT_RESIDENT (shader-side lookup failure); the two names in the
// core's vocabulary collapse to one sentinel value here.
const NotResident uint32 = 0xFFFFFFFF

// slot is one entry of the fixed-capacity pool.
type slot struct {
	occupying svo.BrickID
	lastFrame uint64
	inUse     bool
}

// Pool is the fixed-capacity GPU brick pool. All bookkeeping is CPU-side;
// the actual byte upload is the caller's responsibility via AllocateSlot's
// returned slot index and SlotByteOffset.
type Pool struct {
	mu    sync.Mutex
	slots []slot
	index map[svo.BrickID]uint32 // brick id -> slot index, only for occupied slots
	free  []uint32
	frame uint64
}

// NewPool constructs a pool of the given capacity. Capacity should already
// be clamped to the device's reported buffer limit by the caller.
func NewPool(capacity int) *Pool {
	p := &Pool{
		slots: make([]slot, capacity),
		index: make(map[svo.BrickID]uint32, capacity),
		free:  make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free[i] = uint32(capacity - 1 - i) // pop from the end gives ascending slot order
	}
	return p
}

func (p *Pool) Capacity() int { return len(p.slots) }

// BeginFrame bumps the pool's frame counter. Must be called before any
// GetSlot/AllocateSlot call in a frame so the LRU last-access counter is
// monotonic per frame.
func (p *Pool) BeginFrame() {
	p.mu.Lock()
	p.frame++
	p.mu.Unlock()
}

// GetSlot returns the slot currently holding brickID, touching its LRU
// timestamp, or false if not resident.
func (p *Pool) GetSlot(id svo.BrickID) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index[id]
	if !ok {
		return 0, false
	}
	p.slots[idx].lastFrame = p.frame
	return idx, true
}

// AllocateSlot returns the slot for brickID, reusing an existing slot,
// popping a free slot, or evicting the least-recently-used slot (ties
// broken toward the smallest slot index). evicted is valid iff ok and an
// eviction occurred.
func (p *Pool) AllocateSlot(id svo.BrickID) (slotIdx uint32, evicted svo.BrickID, didEvict bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, present := p.index[id]; present {
		p.slots[idx].lastFrame = p.frame
		return idx, svo.BrickID{}, false, true
	}

	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.slots[idx] = slot{occupying: id, lastFrame: p.frame, inUse: true}
		p.index[id] = idx
		return idx, svo.BrickID{}, false, true
	}

	victim, found := p.findLRUVictim()
	if !found {
		return 0, svo.BrickID{}, false, false
	}
	old := p.slots[victim].occupying
	delete(p.index, old)
	p.slots[victim] = slot{occupying: id, lastFrame: p.frame, inUse: true}
	p.index[id] = victim
	return victim, old, true, true
}

// findLRUVictim scans in-use slots for the minimum lastFrame, breaking ties
// toward the smallest index (the loop's natural ascending order already
// guarantees this: a strict `<` keeps the first -- smallest-index --
// minimum seen).
func (p *Pool) findLRUVictim() (uint32, bool) {
	best := uint32(0)
	bestFrame := uint64(0)
	found := false
	for i := range p.slots {
		if !p.slots[i].inUse {
			continue
		}
		if !found || p.slots[i].lastFrame < bestFrame {
			best = uint32(i)
			bestFrame = p.slots[i].lastFrame
			found = true
		}
	}
	return best, found
}

// Release frees a slot without waiting for LRU pressure (used when a chunk
// holding bricks is explicitly unloaded).
func (p *Pool) Release(id svo.BrickID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index[id]
	if !ok {
		return
	}
	delete(p.index, id)
	p.slots[idx] = slot{}
	p.free = append(p.free, idx)
}

func (p *Pool) LoadedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.index)
}

// SlotByteOffset is the pool payload buffer offset for a slot, matching the
// GPU brick-pool payload layout (512 bytes per slot record).
const BrickPayloadBytes = 512

func SlotByteOffset(slotIdx uint32) uint64 { return uint64(slotIdx) * BrickPayloadBytes }
