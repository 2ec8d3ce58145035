package edit

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVoxelDeltaAffectsOwningChunkAndEvaluates(t *testing.T) {
	delta := NewDelta(1, 0, SetVoxel(mgl32.Vec3{5, 5, 5}, svo.NewVoxel(0, 0, 0, 1)))

	require.Contains(t, delta.AffectedChunks, hierarchy.NewChunkCoord(1, 1, 1))

	v, ok := delta.EvaluateAt(mgl32.Vec3{5, 5, 5})
	require.True(t, ok)
	assert.Equal(t, uint8(1), v.MaterialID)

	_, ok = delta.EvaluateAt(mgl32.Vec3{0, 0, 0})
	assert.False(t, ok)
}

func TestFillRegionDeltaSpansMultipleChunks(t *testing.T) {
	region := Region{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{8, 4, 4}}
	delta := NewDelta(2, 0, FillRegion(region, svo.NewVoxel(0, 0, 0, 5)))

	assert.Contains(t, delta.AffectedChunks, hierarchy.NewChunkCoord(0, 0, 0))
	assert.Contains(t, delta.AffectedChunks, hierarchy.NewChunkCoord(1, 0, 0))
}

func TestClearRegionDeltaEvaluatesEmpty(t *testing.T) {
	region := Region{Min: mgl32.Vec3{1, 1, 1}, Max: mgl32.Vec3{3, 3, 3}}
	delta := NewDelta(3, 0, ClearRegion(region))

	v, ok := delta.EvaluateAt(mgl32.Vec3{2, 2, 2})
	require.True(t, ok)
	assert.True(t, v.IsEmpty())
}
