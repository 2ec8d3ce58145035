package streaming

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestChunkEnqueues(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	o.BeginFrame(mgl32.Vec3{})

	o.RequestChunk(hierarchy.NewChunkCoord(0, 0, 0), PriorityHigh)
	assert.Equal(t, 1, o.QueueLength())
}

// TestGetPendingLoadsCapsAtMaxConcurrent is scenario 4: ten requests queued,
// only 4 (the default cap) come out per call.
func TestGetPendingLoadsCapsAtMaxConcurrent(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	o.BeginFrame(mgl32.Vec3{})

	for i := int32(0); i < 10; i++ {
		o.RequestChunk(hierarchy.NewChunkCoord(i, 0, 0), PriorityMedium)
	}

	pending := o.GetPendingLoads()
	assert.Len(t, pending, 4)
}

func TestMarkLoadedTransitionsResidency(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	coord := hierarchy.NewChunkCoord(0, 0, 0)

	o.loading[coord] = true
	o.MarkLoaded(coord)

	assert.True(t, o.IsResident(coord))
	assert.False(t, o.IsLoading(coord))
}

func TestPriorityOrdering(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	o.BeginFrame(mgl32.Vec3{})

	o.RequestChunk(hierarchy.NewChunkCoord(0, 0, 0), PriorityLow)
	o.RequestChunk(hierarchy.NewChunkCoord(1, 0, 0), PriorityCritical)
	o.RequestChunk(hierarchy.NewChunkCoord(2, 0, 0), PriorityMedium)

	pending := o.GetPendingLoads()
	require.NotEmpty(t, pending)
	assert.Equal(t, hierarchy.NewChunkCoord(1, 0, 0), pending[0])
}

func TestEnforceBudgetEvictsUnderTarget(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	for i := int32(0); i < 20; i++ {
		coord := hierarchy.NewChunkCoord(i, 0, 0)
		o.resident[coord] = true
		o.lastAccess[coord] = 0
	}

	evicted := o.EnforceBudget(o.budget.GpuBrickBudgetBytes * 2)
	assert.NotEmpty(t, evicted)
	for _, c := range evicted {
		assert.False(t, o.IsResident(c))
	}
}

func TestEnforceBudgetNoOpUnderTarget(t *testing.T) {
	o := NewOrchestrator(DefaultBudget())
	o.resident[hierarchy.NewChunkCoord(0, 0, 0)] = true

	evicted := o.EnforceBudget(1024)
	assert.Empty(t, evicted)
}
