package streaming

import (
	"testing"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/stretchr/testify/assert"
)

func TestChunkHandleStartsUnloaded(t *testing.T) {
	h := NewHandle(hierarchy.NewChunkCoord(0, 0, 0))
	assert.False(t, h.IsReady())

	h.StartLoading()
	assert.False(t, h.IsReady())
	assert.Equal(t, StateLoading, h.State().Kind)
}

func TestGenerationCounter(t *testing.T) {
	h := NewHandle(hierarchy.NewChunkCoord(0, 0, 0))
	assert.Equal(t, uint32(0), h.Generation())
	assert.Equal(t, uint32(1), h.IncrementGeneration())
	assert.Equal(t, uint32(1), h.Generation())
}

func TestPriority(t *testing.T) {
	h := NewHandle(hierarchy.NewChunkCoord(0, 0, 0))
	h.SetPriority(100)
	assert.Equal(t, uint32(100), h.Priority())
}

func TestResidentThenGpuResidentThenUnloadGpu(t *testing.T) {
	h := NewHandle(hierarchy.NewChunkCoord(0, 0, 0))
	h.SetResident(nil)
	assert.True(t, h.IsReady())
	assert.False(t, h.IsGpuReady())

	h.SetGpuResident(GpuChunkHandle{NodeCount: 3})
	assert.True(t, h.IsGpuReady())

	h.UnloadGpu()
	assert.True(t, h.IsReady())
	assert.False(t, h.IsGpuReady())
}
