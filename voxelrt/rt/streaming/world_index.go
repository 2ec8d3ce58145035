package streaming

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
)

// defaultCacheRadiusChunks is the local-cache radius around the camera (8
// chunks == 32m), matching the dense-iteration working set other systems
// (culling, LOD selection) walk every frame without a map lookup.
const defaultCacheRadiusChunks = 8

// WorldIndex is the spatial lookup binding chunk coordinates to their
// streaming Handle and SuperChunk container. An index-wide RWMutex guards
// the two maps; each Handle's own locking (see chunk_handle.go) covers
// further concurrent state transitions once looked up.
type WorldIndex struct {
	mu          sync.RWMutex
	superChunks map[hierarchy.SuperChunkCoord]*SuperChunk
	chunks      map[hierarchy.ChunkCoord]*Handle

	localCache   []hierarchy.ChunkCoord
	cacheCenter  mgl32.Vec3
	cacheRadius  int32
}

func NewWorldIndex() *WorldIndex {
	return &WorldIndex{
		superChunks: make(map[hierarchy.SuperChunkCoord]*SuperChunk),
		chunks:      make(map[hierarchy.ChunkCoord]*Handle),
		cacheRadius: defaultCacheRadiusChunks,
	}
}

// AddChunk registers handle, creating its owning SuperChunk and flipping the
// corresponding presence bit if this is the SuperChunk's first sight of it.
func (w *WorldIndex) AddChunk(handle *Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	coord := handle.Coord
	w.chunks[coord] = handle

	superCoord, lx, ly, lz := hierarchy.SuperChunkOf(coord)
	sc, ok := w.superChunks[superCoord]
	if !ok {
		sc = NewSuperChunk(superCoord)
		w.superChunks[superCoord] = sc
	}
	sc.ChunkMask.SetPresent(lx, ly, lz, true)
}

func (w *WorldIndex) RemoveChunk(coord hierarchy.ChunkCoord) (*Handle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.chunks[coord]
	if ok {
		delete(w.chunks, coord)
	}
	return h, ok
}

func (w *WorldIndex) GetChunk(coord hierarchy.ChunkCoord) (*Handle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.chunks[coord]
	return h, ok
}

func (w *WorldIndex) ChunkAtPosition(pos mgl32.Vec3) (*Handle, bool) {
	return w.GetChunk(hierarchy.WorldToChunk(pos))
}

// UpdateLocalCache recomputes the dense working set of registered chunks
// (in any load state) within cacheRadius of cameraPos.
func (w *WorldIndex) UpdateLocalCache(cameraPos mgl32.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cacheCenter = cameraPos
	w.localCache = w.localCache[:0]

	center := hierarchy.WorldToChunk(cameraPos)
	r := w.cacheRadius
	for x := center.X - r; x <= center.X+r; x++ {
		for y := center.Y - r; y <= center.Y+r; y++ {
			for z := center.Z - r; z <= center.Z+r; z++ {
				coord := hierarchy.NewChunkCoord(x, y, z)
				if _, ok := w.chunks[coord]; ok {
					w.localCache = append(w.localCache, coord)
				}
			}
		}
	}
}

// LocalChunks returns the handles for the current local-cache working set.
func (w *WorldIndex) LocalChunks() []*Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Handle, 0, len(w.localCache))
	for _, coord := range w.localCache {
		if h, ok := w.chunks[coord]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (w *WorldIndex) AllChunkCoords() []hierarchy.ChunkCoord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]hierarchy.ChunkCoord, 0, len(w.chunks))
	for c := range w.chunks {
		out = append(out, c)
	}
	return out
}

func (w *WorldIndex) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}

func (w *WorldIndex) SuperChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.superChunks)
}

// ChunksInAABB returns every registered chunk handle whose coordinate falls
// within the chunk-grid bounding box of the given world-space box.
func (w *WorldIndex) ChunksInAABB(min, max mgl32.Vec3) []*Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()

	minC := hierarchy.WorldToChunk(min)
	maxC := hierarchy.WorldToChunk(max)

	var out []*Handle
	for x := minC.X; x <= maxC.X; x++ {
		for y := minC.Y; y <= maxC.Y; y++ {
			for z := minC.Z; z <= maxC.Z; z++ {
				if h, ok := w.chunks[hierarchy.NewChunkCoord(x, y, z)]; ok {
					out = append(out, h)
				}
			}
		}
	}
	return out
}

func (w *WorldIndex) GetSuperChunk(coord hierarchy.SuperChunkCoord) (*SuperChunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sc, ok := w.superChunks[coord]
	return sc, ok
}
