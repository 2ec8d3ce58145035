package svo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleVoxelClassifier reports Mixed for any region containing `at`,
// Empty otherwise, down to brick granularity where it evaluates `value` at
// `at` and EmptyVoxel everywhere else.
type singleVoxelClassifier struct {
	at    [3]float32
	value Voxel
}

func (s *singleVoxelClassifier) contains(r AABB) bool {
	for i := 0; i < 3; i++ {
		if s.at[i] < r.Min[i] || s.at[i] >= r.Max[i] {
			return false
		}
	}
	return true
}

func (s *singleVoxelClassifier) Classify(r AABB) (Hint, Voxel) {
	if !s.contains(r) {
		return Empty, Voxel{}
	}
	return Mixed, Voxel{}
}

func (s *singleVoxelClassifier) Evaluate(pos [3]float32) Voxel {
	d := [3]float32{pos[0] - s.at[0], pos[1] - s.at[1], pos[2] - s.at[2]}
	// nearest voxel center within the half-voxel grid cell containing `at`
	if absf(d[0]) <= 1.0/256 && absf(d[1]) <= 1.0/256 && absf(d[2]) <= 1.0/256 {
		return s.value
	}
	return EmptyVoxel
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestBuildSingleVoxel(t *testing.T) {
	c := &singleVoxelClassifier{at: [3]float32{0.5, 0.5, 0.5}, value: NewVoxel(0xFF, 0, 0, 1)}
	b := NewBuilder(ChunkMaxDepth)
	out := b.Build(c, [3]float32{0, 0, 0}, 4.0)

	require.False(t, out.Empty)
	require.Greater(t, out.NodeCount(), 0)
	root := out.Nodes[out.RootIndex]
	assert.NotZero(t, root.ChildValidMask, "root must have at least one valid child on the path to the voxel")
}

func TestBuildEmptyRegion(t *testing.T) {
	c := &singleVoxelClassifier{at: [3]float32{1000, 1000, 1000}}
	b := NewBuilder(ChunkMaxDepth)
	out := b.Build(c, [3]float32{0, 0, 0}, 4.0)
	assert.True(t, out.Empty)
	assert.Equal(t, 0, out.NodeCount())
	assert.Equal(t, 0, out.BrickCount())
}

// uniformClassifier reports Full everywhere -- exercises the
// terminal-leaf-at-root collapse.
type uniformClassifier struct{ value Voxel }

func (u *uniformClassifier) Classify(AABB) (Hint, Voxel) { return Full, u.value }
func (u *uniformClassifier) Evaluate([3]float32) Voxel   { return u.value }

func TestBuildUniformCollapsesToTerminalLeafRoot(t *testing.T) {
	c := &uniformClassifier{value: NewVoxel(0, 0xFF, 0, 2)}
	b := NewBuilder(ChunkMaxDepth)
	out := b.Build(c, [3]float32{0, 0, 0}, 4.0)

	require.False(t, out.Empty)
	require.Equal(t, 1, out.NodeCount())
	root := out.Nodes[out.RootIndex]
	assert.True(t, root.TerminalLeaf)
	assert.Equal(t, 1, out.BrickCount())
	assert.False(t, out.Bricks[root.BrickOffset].IsEmpty())
}

func TestChildSlotCanonicalOctantOrder(t *testing.T) {
	// octants 0,2,5 valid (bits 0,2,5): popcount below each must match a
	// manual count.
	mask := uint8(1<<0 | 1<<2 | 1<<5)
	assert.Equal(t, 0, ChildSlot(mask, 0))
	assert.Equal(t, 1, ChildSlot(mask, 2))
	assert.Equal(t, 2, ChildSlot(mask, 5))
	assert.Equal(t, 3, ChildSlot(mask, 7))
}
