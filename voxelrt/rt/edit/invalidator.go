package edit

import (
	"sync"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
)

// Invalidator tracks a generation counter per chunk: every time an edit (or
// a rebuild triggered by one) touches a chunk, its generation increments.
// Consumers that cache a per-chunk build artifact compare against the
// generation they built from to decide whether to rebuild.
type Invalidator struct {
	mu          sync.Mutex
	generations map[hierarchy.ChunkCoord]uint64
}

func NewInvalidator() *Invalidator {
	return &Invalidator{generations: make(map[hierarchy.ChunkCoord]uint64)}
}

// Bump increments chunk's generation and returns the new value.
func (inv *Invalidator) Bump(chunk hierarchy.ChunkCoord) uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g := inv.generations[chunk] + 1
	inv.generations[chunk] = g
	return g
}

// BumpAll bumps every chunk in chunks, in order, typically called with a
// batch of Overlay.TakeDirtyChunks results.
func (inv *Invalidator) BumpAll(chunks []hierarchy.ChunkCoord) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, c := range chunks {
		inv.generations[c]++
	}
}

// Generation returns chunk's current generation (0 if never bumped).
func (inv *Invalidator) Generation(chunk hierarchy.ChunkCoord) uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.generations[chunk]
}

// IsStale reports whether builtGeneration no longer matches chunk's current
// generation, i.e. the caller's cached build is out of date.
func (inv *Invalidator) IsStale(chunk hierarchy.ChunkCoord, builtGeneration uint64) bool {
	return inv.Generation(chunk) != builtGeneration
}
