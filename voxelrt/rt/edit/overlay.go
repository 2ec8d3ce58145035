package edit

import (
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// Overlay is the in-memory spatial index of active edits: a mutable layer a
// builder consults ahead of (and in preference to) generated terrain.
// Overlay itself satisfies svo.Classifier, wrapping an optional Base -- a
// region or point with no edits defers entirely to Base, so composition is
// "free" wherever the player hasn't touched the world.
type Overlay struct {
	Base svo.Classifier

	mu         sync.RWMutex
	edits      map[uint64]Delta
	chunkIndex map[hierarchy.ChunkCoord][]uint64
	dirty      []hierarchy.ChunkCoord
	nextID     atomic.Uint64
}

// NewOverlay builds an empty overlay over base. base may be nil, in which
// case Classify/Evaluate fall back to reporting svo.Empty / svo.EmptyVoxel
// wherever no edit applies.
func NewOverlay(base svo.Classifier) *Overlay {
	o := &Overlay{
		Base:       base,
		edits:      make(map[uint64]Delta),
		chunkIndex: make(map[hierarchy.ChunkCoord][]uint64),
	}
	o.nextID.Store(1)
	return o
}

// AddEdit records op at frame and returns its assigned id.
func (o *Overlay) AddEdit(op Op, frame uint32) uint64 {
	id := o.nextID.Add(1) - 1 // nextID starts at 1, so the first assigned id is 1
	delta := NewDelta(id, frame, op)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.edits[id] = delta
	for _, chunk := range delta.AffectedChunks {
		o.chunkIndex[chunk] = append(o.chunkIndex[chunk], id)
		o.markDirtyLocked(chunk)
	}
	return id
}

// RemoveEdit deletes the edit with id, if present, returning it.
func (o *Overlay) RemoveEdit(id uint64) (Delta, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delta, ok := o.edits[id]
	if !ok {
		return Delta{}, false
	}
	delete(o.edits, id)
	for _, chunk := range delta.AffectedChunks {
		ids := o.chunkIndex[chunk]
		for i, existing := range ids {
			if existing == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		o.chunkIndex[chunk] = ids
		o.markDirtyLocked(chunk)
	}
	return delta, true
}

func (o *Overlay) markDirtyLocked(chunk hierarchy.ChunkCoord) {
	for _, c := range o.dirty {
		if c == chunk {
			return
		}
	}
	o.dirty = append(o.dirty, chunk)
}

// EditsForChunk returns the edits indexed against chunk, in no particular order.
func (o *Overlay) EditsForChunk(chunk hierarchy.ChunkCoord) []Delta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := o.chunkIndex[chunk]
	out := make([]Delta, 0, len(ids))
	for _, id := range ids {
		if d, ok := o.edits[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// EditsInRegion returns every edit whose affected region intersects region.
func (o *Overlay) EditsInRegion(region Region) []Delta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []Delta
	for _, d := range o.edits {
		if d.AffectedRegion().Intersects(region) {
			out = append(out, d)
		}
	}
	return out
}

// TakeDirtyChunks returns and clears the set of chunks that have changed
// since the last call.
func (o *Overlay) TakeDirtyChunks() []hierarchy.ChunkCoord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.dirty
	o.dirty = nil
	return out
}

func (o *Overlay) HasDirtyChunks() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.dirty) > 0
}

func (o *Overlay) EditCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.edits)
}

// Clear removes every edit, marking every previously-indexed chunk dirty.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for chunk := range o.chunkIndex {
		o.markDirtyLocked(chunk)
	}
	o.edits = make(map[uint64]Delta)
	o.chunkIndex = make(map[hierarchy.ChunkCoord][]uint64)
}

// EvaluateAt applies latest-write-wins across every edit touching pos.
func (o *Overlay) EvaluateAt(pos mgl32.Vec3) (svo.Voxel, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.evaluateAtLocked(pos)
}

func (o *Overlay) evaluateAtLocked(pos mgl32.Vec3) (svo.Voxel, bool) {
	var (
		found   bool
		bestID  uint64
		bestVox svo.Voxel
	)
	for _, d := range o.edits {
		v, ok := d.EvaluateAt(pos)
		if !ok {
			continue
		}
		if !found || d.ID > bestID {
			found, bestID, bestVox = true, d.ID, v
		}
	}
	return bestVox, found
}

// Classify satisfies svo.Classifier: if any edit's region intersects the
// queried region, the result is always Mixed (forcing the builder to
// descend further and eventually call Evaluate), since an edit's presence
// can't in general be summarized as one uniform Full voxel. With no
// intersecting edits, classification defers entirely to Base.
func (o *Overlay) Classify(region svo.AABB) (svo.Hint, svo.Voxel) {
	edits := o.EditsInRegion(Region{Min: mgl32.Vec3(region.Min), Max: mgl32.Vec3(region.Max)})
	if len(edits) == 0 {
		if o.Base != nil {
			return o.Base.Classify(region)
		}
		return svo.Empty, svo.Voxel{}
	}
	return svo.Mixed, svo.Voxel{}
}

// Evaluate satisfies svo.Classifier: an edit covering pos wins over Base.
func (o *Overlay) Evaluate(pos [3]float32) svo.Voxel {
	p := mgl32.Vec3(pos)
	if v, ok := o.EvaluateAt(p); ok {
		return v
	}
	if o.Base != nil {
		return o.Base.Evaluate(pos)
	}
	return svo.EmptyVoxel
}
