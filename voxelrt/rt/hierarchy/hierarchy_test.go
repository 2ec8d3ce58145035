package hierarchy

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestWorldToChunk(t *testing.T) {
	assert.Equal(t, ChunkCoord{0, 0, 0}, WorldToChunk(mgl32.Vec3{0, 0, 0}))
	assert.Equal(t, ChunkCoord{1, 0, 0}, WorldToChunk(mgl32.Vec3{4.5, 0, 0}))
	assert.Equal(t, ChunkCoord{-1, 0, 0}, WorldToChunk(mgl32.Vec3{-0.1, 0, 0}))
}

func TestSuperChunkOf(t *testing.T) {
	super, lx, ly, lz := SuperChunkOf(ChunkCoord{17, -1, 33})
	assert.Equal(t, SuperChunkCoord{1, -1, 2}, super)
	assert.Equal(t, uint32(1), lx)
	assert.Equal(t, uint32(15), ly)
	assert.Equal(t, uint32(1), lz)
}

func TestPackChunkCoordRoundTrip(t *testing.T) {
	cases := []ChunkCoord{
		{0, 0, 0},
		{-100, -200, 300},
		{511, -512, 0},
		{-512, 511, -1},
	}
	for _, c := range cases {
		got := UnpackChunkCoord(PackChunkCoord(c))
		assert.Equal(t, c, got)
	}
}

func TestHierarchyRelationships(t *testing.T) {
	assert.Equal(t, ChunksPerSuperChunk, uint32(SuperChunkSizeMeters/ChunkSizeMeters))
	assert.Equal(t, uint32(512), VoxelsPerChunk)
	assert.Equal(t, uint32(256), BricksPerChunk)
}
