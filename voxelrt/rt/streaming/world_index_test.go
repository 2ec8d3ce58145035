package streaming

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/stretchr/testify/assert"
)

func TestAddAndGetChunk(t *testing.T) {
	w := NewWorldIndex()
	coord := hierarchy.NewChunkCoord(1, 2, 3)
	h := NewHandle(coord)
	w.AddChunk(h)

	got, ok := w.GetChunk(coord)
	assert.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, 1, w.ChunkCount())
	assert.Equal(t, 1, w.SuperChunkCount())

	superCoord, _, _, _ := hierarchy.SuperChunkOf(coord)
	sc, ok := w.GetSuperChunk(superCoord)
	assert.True(t, ok)
	assert.Equal(t, 1, sc.ChunkCount())
}

func TestChunkAtPosition(t *testing.T) {
	w := NewWorldIndex()
	coord := hierarchy.NewChunkCoord(0, 0, 0)
	w.AddChunk(NewHandle(coord))

	h, ok := w.ChunkAtPosition(mgl32.Vec3{1, 1, 1})
	assert.True(t, ok)
	assert.Equal(t, coord, h.Coord)
}

// TestLocalCache is scenario: 5x5x5 chunks loaded, cache radius 8 around
// origin should contain all of them.
func TestLocalCache(t *testing.T) {
	w := NewWorldIndex()
	for x := int32(-2); x <= 2; x++ {
		for y := int32(-2); y <= 2; y++ {
			for z := int32(-2); z <= 2; z++ {
				w.AddChunk(NewHandle(hierarchy.NewChunkCoord(x, y, z)))
			}
		}
	}
	assert.Equal(t, 125, w.ChunkCount())

	w.UpdateLocalCache(mgl32.Vec3{0, 0, 0})
	assert.Len(t, w.LocalChunks(), 125)
}

func TestRemoveChunk(t *testing.T) {
	w := NewWorldIndex()
	coord := hierarchy.NewChunkCoord(0, 0, 0)
	w.AddChunk(NewHandle(coord))

	h, ok := w.RemoveChunk(coord)
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = w.GetChunk(coord)
	assert.False(t, ok)
}

func TestChunksInAABB(t *testing.T) {
	w := NewWorldIndex()
	for x := int32(0); x < 3; x++ {
		w.AddChunk(NewHandle(hierarchy.NewChunkCoord(x, 0, 0)))
	}

	handles := w.ChunksInAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{hierarchy.ChunkSizeMeters * 2, 1, 1})
	assert.Len(t, handles, 3)
}
