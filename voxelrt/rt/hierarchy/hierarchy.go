// Package hierarchy defines the fixed spatial tiers of the voxel world --
// SuperChunk (64m), Chunk (4m) and Brick (2x2x2 voxels) -- and the
// conversions between world space and each tier's integer grid.
package hierarchy

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// SuperChunkSizeMeters is the edge length of a SuperChunk.
	SuperChunkSizeMeters float32 = 64.0
	// ChunksPerSuperChunk is the number of chunks along one SuperChunk edge.
	ChunksPerSuperChunk uint32 = 16
	// ChunkSizeMeters is the edge length of a Chunk.
	ChunkSizeMeters float32 = 4.0
	// BrickSizeVoxels is the edge length of a brick, in voxels.
	BrickSizeVoxels uint32 = 2
	// VoxelsPerBrick is the voxel count of a single brick.
	VoxelsPerBrick uint32 = BrickSizeVoxels * BrickSizeVoxels * BrickSizeVoxels
	// VoxelsPerMeter is the voxel resolution.
	VoxelsPerMeter uint32 = 128
	// VoxelSizeMeters is the edge length of a single voxel, in meters.
	VoxelSizeMeters float32 = 1.0 / float32(VoxelsPerMeter)
	// VoxelsPerChunk is the voxel count along one chunk edge.
	VoxelsPerChunk uint32 = uint32(ChunkSizeMeters) * VoxelsPerMeter
	// BricksPerChunk is the brick count along one chunk edge.
	BricksPerChunk uint32 = VoxelsPerChunk / BrickSizeVoxels
	// MaxSVODepth is the number of SVO levels from chunk root to brick leaf.
	MaxSVODepth = 9

	// ChunkCoordBits is the bit width used to pack one axis of a chunk coordinate.
	ChunkCoordBits = 10
	// ChunkCoordBias centers the signed coordinate range within the unsigned field.
	ChunkCoordBias = 1 << (ChunkCoordBits - 1) // 512
	chunkCoordMask = (1 << ChunkCoordBits) - 1 // 0x3FF
)

// ChunkCoord is an integer chunk-grid coordinate.
type ChunkCoord struct {
	X, Y, Z int32
}

func NewChunkCoord(x, y, z int32) ChunkCoord { return ChunkCoord{x, y, z} }

// WorldOrigin returns the world-space minimum corner of the chunk.
func (c ChunkCoord) WorldOrigin() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(c.X) * ChunkSizeMeters,
		float32(c.Y) * ChunkSizeMeters,
		float32(c.Z) * ChunkSizeMeters,
	}
}

// SuperChunkCoord is an integer SuperChunk-grid coordinate.
type SuperChunkCoord struct {
	X, Y, Z int32
}

func NewSuperChunkCoord(x, y, z int32) SuperChunkCoord { return SuperChunkCoord{x, y, z} }

func (c SuperChunkCoord) WorldOrigin() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(c.X) * SuperChunkSizeMeters,
		float32(c.Y) * SuperChunkSizeMeters,
		float32(c.Z) * SuperChunkSizeMeters,
	}
}

func (c SuperChunkCoord) WorldCenter() mgl32.Vec3 {
	half := SuperChunkSizeMeters / 2
	o := c.WorldOrigin()
	return mgl32.Vec3{o.X() + half, o.Y() + half, o.Z() + half}
}

// WorldToChunk floors a world position down to its containing chunk coordinate.
func WorldToChunk(pos mgl32.Vec3) ChunkCoord {
	return ChunkCoord{
		floorDiv(pos.X(), ChunkSizeMeters),
		floorDiv(pos.Y(), ChunkSizeMeters),
		floorDiv(pos.Z(), ChunkSizeMeters),
	}
}

// WorldToSuperChunk floors a world position down to its containing SuperChunk coordinate.
func WorldToSuperChunk(pos mgl32.Vec3) SuperChunkCoord {
	return SuperChunkCoord{
		floorDiv(pos.X(), SuperChunkSizeMeters),
		floorDiv(pos.Y(), SuperChunkSizeMeters),
		floorDiv(pos.Z(), SuperChunkSizeMeters),
	}
}

// SuperChunkOf returns the SuperChunk coordinate owning this chunk, and the
// chunk's local index (0..15 per axis) within it.
func SuperChunkOf(c ChunkCoord) (super SuperChunkCoord, localX, localY, localZ uint32) {
	n := int32(ChunksPerSuperChunk)
	sx, lx := floorDivInt(c.X, n)
	sy, ly := floorDivInt(c.Y, n)
	sz, lz := floorDivInt(c.Z, n)
	return SuperChunkCoord{sx, sy, sz}, uint32(lx), uint32(ly), uint32(lz)
}

func floorDiv(v, size float32) int32 {
	return int32(mgl32.Floor(v / size))
}

func floorDivInt(v, n int32) (q, r int32) {
	q = v / n
	r = v % n
	if r < 0 {
		r += n
		q--
	}
	return
}

// PackChunkCoord packs a signed chunk coordinate into a single uint32 for the
// GPU feedback ring buffer: x:10 | y:10 | z:10, each biased by +512.
//
// Components must lie in [-512, 511]; out-of-range components are masked to
// their low 10 bits, matching the shader's wraparound behaviour rather than
// panicking -- the feedback path is advisory and must never fail a frame.
func PackChunkCoord(c ChunkCoord) uint32 {
	x := uint32(c.X+ChunkCoordBias) & chunkCoordMask
	y := uint32(c.Y+ChunkCoordBias) & chunkCoordMask
	z := uint32(c.Z+ChunkCoordBias) & chunkCoordMask
	return x | (y << ChunkCoordBits) | (z << (2 * ChunkCoordBits))
}

// UnpackChunkCoord is the exact inverse of PackChunkCoord for components that
// were within [-512, 511] when packed.
func UnpackChunkCoord(packed uint32) ChunkCoord {
	x := int32(packed&chunkCoordMask) - ChunkCoordBias
	y := int32((packed>>ChunkCoordBits)&chunkCoordMask) - ChunkCoordBias
	z := int32((packed>>(2*ChunkCoordBits))&chunkCoordMask) - ChunkCoordBias
	return ChunkCoord{x, y, z}
}
