package edit

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEditMarksChunkDirty(t *testing.T) {
	o := NewOverlay(nil)
	o.AddEdit(SetVoxel(mgl32.Vec3{2, 2, 2}, svo.NewVoxel(0, 0, 0, 1)), 0)

	assert.Equal(t, 1, o.EditCount())
	assert.True(t, o.HasDirtyChunks())
}

func TestEditsForChunk(t *testing.T) {
	o := NewOverlay(nil)
	o.AddEdit(SetVoxel(mgl32.Vec3{2, 2, 2}, svo.NewVoxel(0, 0, 0, 1)), 0) // chunk (0,0,0)
	o.AddEdit(SetVoxel(mgl32.Vec3{6, 2, 2}, svo.NewVoxel(0, 0, 0, 2)), 0) // chunk (1,0,0)

	edits := o.EditsForChunk(hierarchy.NewChunkCoord(0, 0, 0))
	require.Len(t, edits, 1)
}

// TestEvaluateLatestWins is scenario 5: set to material 1 then 5 at the same
// position; evaluate_at must return the later edit's value.
func TestEvaluateLatestWins(t *testing.T) {
	o := NewOverlay(nil)
	pos := mgl32.Vec3{2, 2, 2}
	o.AddEdit(SetVoxel(pos, svo.NewVoxel(0, 0, 0, 1)), 0)
	o.AddEdit(SetVoxel(pos, svo.NewVoxel(0, 0, 0, 5)), 1)

	v, ok := o.EvaluateAt(pos)
	require.True(t, ok)
	assert.Equal(t, uint8(5), v.MaterialID)
}

func TestRemoveEditReMarksDirty(t *testing.T) {
	o := NewOverlay(nil)
	id := o.AddEdit(SetVoxel(mgl32.Vec3{2, 2, 2}, svo.NewVoxel(0, 0, 0, 1)), 0)
	o.TakeDirtyChunks()
	require.False(t, o.HasDirtyChunks())

	_, ok := o.RemoveEdit(id)
	require.True(t, ok)
	assert.Equal(t, 0, o.EditCount())
	assert.True(t, o.HasDirtyChunks())
}

func TestClassifyDefersToBaseWithNoEdits(t *testing.T) {
	base := constClassifier{hint: svo.Full, voxel: svo.NewVoxel(1, 2, 3, 9)}
	o := NewOverlay(base)

	region := svo.AABB{Min: [3]float32{10, 10, 10}, Max: [3]float32{12, 12, 12}}
	hint, v := o.Classify(region)
	assert.Equal(t, svo.Full, hint)
	assert.Equal(t, uint8(9), v.MaterialID)
}

func TestClassifyMixedWhenEditIntersects(t *testing.T) {
	o := NewOverlay(nil)
	o.AddEdit(FillRegion(Region{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 4, 4}}, svo.NewVoxel(0, 0, 0, 1)), 0)

	inside := svo.AABB{Min: [3]float32{1, 1, 1}, Max: [3]float32{3, 3, 3}}
	hint, _ := o.Classify(inside)
	assert.Equal(t, svo.Mixed, hint)

	outside := svo.AABB{Min: [3]float32{10, 10, 10}, Max: [3]float32{12, 12, 12}}
	hint, _ = o.Classify(outside)
	assert.Equal(t, svo.Empty, hint)
}

type constClassifier struct {
	hint  svo.Hint
	voxel svo.Voxel
}

func (c constClassifier) Classify(svo.AABB) (svo.Hint, svo.Voxel) { return c.hint, c.voxel }
func (c constClassifier) Evaluate([3]float32) svo.Voxel           { return c.voxel }
