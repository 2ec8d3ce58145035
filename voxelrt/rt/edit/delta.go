// Package edit implements the runtime edit overlay: per-voxel and per-region
// modifications layered on top of generated terrain, plus their persistence
// as an append-only log and the chunk-invalidation bookkeeping that tells
// the streaming orchestrator which chunks need rebuilding.
package edit

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// pointEditHalfExtent is the half-extent of the tiny AABB synthesized for a
// single-voxel edit, and also the tolerance evaluate_at uses to match a
// sample position back to the edited voxel center.
const pointEditHalfExtent = 0.004

// OpKind is the closed sum of edit operation kinds, and also the .rked
// on-disk tag byte.
type OpKind uint8

const (
	OpSetVoxel OpKind = iota
	OpClearVoxel
	OpFillRegion
	OpClearRegion
)

// Region is an axis-aligned box in world space, reused both for a
// FillRegion/ClearRegion operation's target and for a point edit's
// synthesized affected-region.
type Region struct {
	Min, Max mgl32.Vec3
}

func (r Region) Contains(p mgl32.Vec3) bool {
	return p.X() >= r.Min.X() && p.X() <= r.Max.X() &&
		p.Y() >= r.Min.Y() && p.Y() <= r.Max.Y() &&
		p.Z() >= r.Min.Z() && p.Z() <= r.Max.Z()
}

func (r Region) Intersects(o Region) bool {
	return r.Min.X() <= o.Max.X() && r.Max.X() >= o.Min.X() &&
		r.Min.Y() <= o.Max.Y() && r.Max.Y() >= o.Min.Y() &&
		r.Min.Z() <= o.Max.Z() && r.Max.Z() >= o.Min.Z()
}

func (r Region) ToSVOAABB() svo.AABB {
	return svo.AABB{Min: [3]float32(r.Min), Max: [3]float32(r.Max)}
}

// Op is one edit operation. Which of the position/region/voxel fields are
// meaningful is selected by Kind -- mirroring a closed sum without Go sum
// types.
type Op struct {
	Kind     OpKind
	Position mgl32.Vec3 // SetVoxel, ClearVoxel
	Region   Region     // FillRegion, ClearRegion
	Voxel    svo.Voxel  // SetVoxel, FillRegion
}

func SetVoxel(pos mgl32.Vec3, v svo.Voxel) Op {
	return Op{Kind: OpSetVoxel, Position: pos, Voxel: v}
}

func ClearVoxel(pos mgl32.Vec3) Op {
	return Op{Kind: OpClearVoxel, Position: pos}
}

func FillRegion(region Region, v svo.Voxel) Op {
	return Op{Kind: OpFillRegion, Region: region, Voxel: v}
}

func ClearRegion(region Region) Op {
	return Op{Kind: OpClearRegion, Region: region}
}

// AffectedRegion returns the world-space box this operation touches: the
// operation's own region for the Fill/Clear variants, or a tiny box around
// Position for the point variants.
func (o Op) AffectedRegion() Region {
	switch o.Kind {
	case OpSetVoxel, OpClearVoxel:
		half := mgl32.Vec3{pointEditHalfExtent, pointEditHalfExtent, pointEditHalfExtent}
		return Region{Min: o.Position.Sub(half), Max: o.Position.Add(half)}
	default:
		return o.Region
	}
}

// Delta is one edit operation with its metadata: a unique id (insertion
// order defines "latest"), the frame it was applied on, and the set of
// chunks it touches.
type Delta struct {
	ID             uint64
	Frame          uint32
	Op             Op
	AffectedChunks []hierarchy.ChunkCoord
}

// NewDelta builds a Delta, computing AffectedChunks from the operation's
// region against the fixed chunk grid.
func NewDelta(id uint64, frame uint32, op Op) Delta {
	return Delta{ID: id, Frame: frame, Op: op, AffectedChunks: computeAffectedChunks(op)}
}

func computeAffectedChunks(op Op) []hierarchy.ChunkCoord {
	region := op.AffectedRegion()
	cs := hierarchy.ChunkSizeMeters

	minCX := floorDiv(region.Min.X(), cs)
	minCY := floorDiv(region.Min.Y(), cs)
	minCZ := floorDiv(region.Min.Z(), cs)
	maxCX := floorDiv(region.Max.X(), cs)
	maxCY := floorDiv(region.Max.Y(), cs)
	maxCZ := floorDiv(region.Max.Z(), cs)

	var chunks []hierarchy.ChunkCoord
	for x := minCX; x <= maxCX; x++ {
		for y := minCY; y <= maxCY; y++ {
			for z := minCZ; z <= maxCZ; z++ {
				chunks = append(chunks, hierarchy.NewChunkCoord(x, y, z))
			}
		}
	}
	return chunks
}

func floorDiv(v, size float32) int32 {
	return int32(mgl32.Floor(v / size))
}

func (d Delta) AffectedRegion() Region { return d.Op.AffectedRegion() }

// EvaluateAt reports the voxel this delta imposes at pos, and whether the
// delta affects pos at all.
func (d Delta) EvaluateAt(pos mgl32.Vec3) (svo.Voxel, bool) {
	switch d.Op.Kind {
	case OpSetVoxel:
		if withinPointTolerance(d.Op.Position, pos) {
			return d.Op.Voxel, true
		}
	case OpClearVoxel:
		if withinPointTolerance(d.Op.Position, pos) {
			return svo.EmptyVoxel, true
		}
	case OpFillRegion:
		if d.Op.Region.Contains(pos) {
			return d.Op.Voxel, true
		}
	case OpClearRegion:
		if d.Op.Region.Contains(pos) {
			return svo.EmptyVoxel, true
		}
	}
	return svo.Voxel{}, false
}

func withinPointTolerance(a, b mgl32.Vec3) bool {
	d := a.Sub(b)
	return absf(d.X()) < pointEditHalfExtent && absf(d.Y()) < pointEditHalfExtent && absf(d.Z()) < pointEditHalfExtent
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
