package poolcache

import (
	"testing"

	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brickID(local uint32) svo.BrickID {
	return svo.BrickID{Chunk: svo.ChunkCoordKey{0, 0, 0}, Local: local}
}

// TestLRUEviction is scenario 3 of the testable-properties list: capacity 2,
// allocate A then B, touch A, allocate C -> B is evicted, A survives.
func TestLRUEviction(t *testing.T) {
	p := NewPool(2)
	a, b, cID := brickID(1), brickID(2), brickID(3)

	p.BeginFrame()
	slotA, _, _, ok := p.AllocateSlot(a)
	require.True(t, ok)
	slotB, _, _, ok := p.AllocateSlot(b)
	require.True(t, ok)
	require.NotEqual(t, slotA, slotB)

	p.BeginFrame()
	_, ok = p.GetSlot(a) // touch A
	require.True(t, ok)

	p.BeginFrame()
	slotC, evictedID, didEvict, ok := p.AllocateSlot(cID)
	require.True(t, ok)
	require.True(t, didEvict)
	assert.Equal(t, b, evictedID)
	assert.Equal(t, slotB, slotC, "C should reuse B's freed slot")

	_, stillA := p.GetSlot(a)
	assert.True(t, stillA)
	_, stillB := p.GetSlot(b)
	assert.False(t, stillB)
}

func TestLRUTieBreakSmallestSlotIndex(t *testing.T) {
	p := NewPool(3)
	p.BeginFrame()
	ids := []svo.BrickID{brickID(1), brickID(2), brickID(3)}
	var slots []uint32
	for _, id := range ids {
		s, _, _, ok := p.AllocateSlot(id)
		require.True(t, ok)
		slots = append(slots, s)
	}
	// All three share the same lastFrame (same BeginFrame call). Allocating
	// a 4th brick must evict the smallest slot index among the tied victims.
	smallest := slots[0]
	for _, s := range slots {
		if s < smallest {
			smallest = s
		}
	}
	_, evicted, didEvict, ok := p.AllocateSlot(brickID(4))
	require.True(t, ok)
	require.True(t, didEvict)
	assert.Equal(t, ids[indexOf(slots, smallest)], evicted)
}

func indexOf(s []uint32, v uint32) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestCacheUploadThenEvictRestoresPristineState(t *testing.T) {
	p := NewPool(4)
	c := NewCache(p)
	id := brickID(1)

	c.BeginFrame()
	assert.Equal(t, NotResident, c.IndirectionEntry(id))

	c.Request(id)
	c.BeginLoading(id)
	slot, _, _, ok := p.AllocateSlot(id)
	require.True(t, ok)
	c.MarkLoaded(id, slot)
	assert.Equal(t, slot, c.IndirectionEntry(id))

	p.Release(id)
	c.MarkEvicted(id)
	assert.Equal(t, NotResident, c.IndirectionEntry(id))
}

func TestLoadedCountNeverExceedsCapacity(t *testing.T) {
	p := NewPool(2)
	p.BeginFrame()
	for i := uint32(0); i < 5; i++ {
		_, _, _, ok := p.AllocateSlot(brickID(i))
		require.True(t, ok)
		assert.LessOrEqual(t, p.LoadedCount(), p.Capacity())
	}
}
