// Package streaming coordinates which chunks and bricks are resident in CPU
// and GPU memory: the spatial index, the per-chunk lazy-loading handle, the
// camera-driven load priority queue and budget enforcement, trajectory
// prediction for prefetching, and the async loader that turns a priority
// request into a resident chunk off the render thread.
package streaming

import (
	"sync"
	"sync/atomic"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// ChunkStateKind is the closed sum of states a chunk can be in.
type ChunkStateKind int

const (
	StateUnloaded ChunkStateKind = iota
	StateLoading
	StateResident
	StateGpuResident
)

// GpuChunkHandle locates a chunk's uploaded data within the GPU buffers.
type GpuChunkHandle struct {
	NodeBufferOffset uint32
	BrickPoolOffset  uint32
	NodeCount        uint32
	BrickCount       uint32
}

// ChunkState is the tagged payload for a chunk's current residency state.
type ChunkState struct {
	Kind     ChunkStateKind
	Progress float32    // meaningful iff Kind == StateLoading
	SVO      *svo.SVO   // meaningful iff Kind is StateResident or StateGpuResident
	Gpu      GpuChunkHandle // meaningful iff Kind == StateGpuResident
}

func (s ChunkState) IsReady() bool {
	return s.Kind == StateResident || s.Kind == StateGpuResident
}

func (s ChunkState) IsGpuReady() bool { return s.Kind == StateGpuResident }

// Handle is a thread-safe, lazily-loaded reference to one chunk's data.
// Readers take the RWMutex for read (never blocking other readers); the
// handful of state transitions below take it for write.
type Handle struct {
	Coord hierarchy.ChunkCoord

	mu    sync.RWMutex
	state ChunkState

	generation atomic.Uint32
	priority   atomic.Uint32
}

func NewHandle(coord hierarchy.ChunkCoord) *Handle {
	return &Handle{Coord: coord}
}

func NewResidentHandle(coord hierarchy.ChunkCoord, tree *svo.SVO) *Handle {
	h := &Handle{Coord: coord}
	h.state = ChunkState{Kind: StateResident, SVO: tree}
	return h
}

func (h *Handle) Generation() uint32 { return h.generation.Load() }

// IncrementGeneration bumps the generation, called after an edit invalidates
// this chunk's build.
func (h *Handle) IncrementGeneration() uint32 { return h.generation.Add(1) }

func (h *Handle) Priority() uint32        { return h.priority.Load() }
func (h *Handle) SetPriority(p uint32)     { h.priority.Store(p) }

func (h *Handle) State() ChunkState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) IsReady() bool    { return h.State().IsReady() }
func (h *Handle) IsGpuReady() bool { return h.State().IsGpuReady() }

func (h *Handle) StartLoading() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = ChunkState{Kind: StateLoading}
}

func (h *Handle) UpdateLoadingProgress(progress float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Kind == StateLoading {
		h.state.Progress = progress
	}
}

func (h *Handle) SetResident(tree *svo.SVO) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = ChunkState{Kind: StateResident, SVO: tree}
}

// SetGpuResident transitions Resident -> GpuResident, keeping the CPU SVO.
// A no-op if the handle isn't currently Resident.
func (h *Handle) SetGpuResident(gpu GpuChunkHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Kind != StateResident {
		return
	}
	h.state = ChunkState{Kind: StateGpuResident, SVO: h.state.SVO, Gpu: gpu}
}

// UnloadGpu drops the GPU handle but keeps the chunk CPU-resident.
func (h *Handle) UnloadGpu() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Kind != StateGpuResident {
		return
	}
	h.state = ChunkState{Kind: StateResident, SVO: h.state.SVO}
}

func (h *Handle) Unload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = ChunkState{Kind: StateUnloaded}
}
