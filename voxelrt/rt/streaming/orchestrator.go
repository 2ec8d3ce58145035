package streaming

import (
	"container/heap"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
)

// Priority is a streaming request's ordering weight: higher loads first.
type Priority float32

const (
	PriorityCritical Priority = 1000.0 // on-screen, close to camera
	PriorityHigh     Priority = 100.0  // on-screen, medium distance
	PriorityMedium   Priority = 10.0   // edge of screen or prefetch
	PriorityLow      Priority = 1.0    // background prefetch
)

// PriorityFromDistance buckets a camera distance into one of the four
// standard priority tiers.
func PriorityFromDistance(distance float32) Priority {
	switch {
	case distance < 10.0:
		return PriorityCritical
	case distance < 50.0:
		return PriorityHigh
	case distance < 200.0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Budget bounds GPU/CPU memory use for streamed data.
type Budget struct {
	GpuBrickBudgetBytes  uint64
	GpuNodeBudgetBytes   uint64
	CpuCacheBudgetBytes  uint64
	TargetUtilization    float32
}

func DefaultBudget() Budget {
	const gb = 1 << 30
	return Budget{
		GpuBrickBudgetBytes: 2 * gb,
		GpuNodeBudgetBytes:  512 << 20,
		CpuCacheBudgetBytes: 1 * gb,
		TargetUtilization:   0.9,
	}
}

// Stats are the per-frame counters reset at BeginFrame.
type Stats struct {
	BricksRequested  uint32
	BricksUploaded   uint32
	BricksEvicted    uint32
	ChunksLoaded     uint32
	GpuBrickUsage    uint64
	GpuNodeUsage     uint64
	CacheHitRate     float32
	AvgLoadLatencyMs float32
}

// request is one entry in the orchestrator's load priority queue.
type request struct {
	chunk        hierarchy.ChunkCoord
	priority     Priority
	requestFrame uint32
	index        int // heap bookkeeping
}

type requestQueue []*request

func (q requestQueue) Len() int            { return len(q) }
func (q requestQueue) Less(i, j int) bool  { return q[i].priority > q[j].priority } // max-heap
func (q requestQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *requestQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}
func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	r.index = -1
	*q = old[:n-1]
	return r
}

// defaultMaxConcurrentLoads caps how many chunks the loader pulls off the
// queue per frame, matching the async loader's default worker pool size.
const defaultMaxConcurrentLoads = 4

// Orchestrator coordinates GPU feedback requests and the chunk load queue:
// budget enforcement, priority ordering, and resident/loading bookkeeping.
// It holds no goroutines of its own; AsyncChunkLoader (async_loader.go) is
// the component that actually performs loads off the caller's queue.
type Orchestrator struct {
	budget Budget

	queue   requestQueue
	loading map[hierarchy.ChunkCoord]bool
	resident map[hierarchy.ChunkCoord]bool
	lastAccess map[hierarchy.ChunkCoord]uint32

	frame               uint32
	stats               Stats
	cameraPos           mgl32.Vec3
	maxConcurrentLoads  int
}

func NewOrchestrator(budget Budget) *Orchestrator {
	o := &Orchestrator{
		budget:             budget,
		loading:            make(map[hierarchy.ChunkCoord]bool),
		resident:           make(map[hierarchy.ChunkCoord]bool),
		lastAccess:         make(map[hierarchy.ChunkCoord]uint32),
		maxConcurrentLoads: defaultMaxConcurrentLoads,
	}
	heap.Init(&o.queue)
	return o
}

func (o *Orchestrator) BeginFrame(cameraPos mgl32.Vec3) {
	o.frame++
	o.cameraPos = cameraPos
	o.stats = Stats{}
}

// RequestChunk enqueues chunk at priority, unless it's already resident or
// already in flight.
func (o *Orchestrator) RequestChunk(chunk hierarchy.ChunkCoord, priority Priority) {
	if o.resident[chunk] || o.loading[chunk] {
		return
	}
	heap.Push(&o.queue, &request{chunk: chunk, priority: priority, requestFrame: o.frame})
	o.stats.BricksRequested++
}

// RequestChunksAround enqueues every chunk within radius meters of pos, with
// distance-derived priority.
func (o *Orchestrator) RequestChunksAround(pos mgl32.Vec3, radius float32) {
	center := hierarchy.WorldToChunk(pos)
	chunkRadius := int32(math.Ceil(float64(radius / hierarchy.ChunkSizeMeters)))

	for dx := -chunkRadius; dx <= chunkRadius; dx++ {
		for dy := -chunkRadius; dy <= chunkRadius; dy++ {
			for dz := -chunkRadius; dz <= chunkRadius; dz++ {
				coord := hierarchy.NewChunkCoord(center.X+dx, center.Y+dy, center.Z+dz)
				distance := coord.WorldOrigin().Add(mgl32.Vec3{hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2}).Sub(pos).Len()
				o.RequestChunk(coord, PriorityFromDistance(distance))
			}
		}
	}
}

// GetPendingLoads pops up to (maxConcurrentLoads - currently loading) chunks
// off the priority queue, moving them into the loading set.
func (o *Orchestrator) GetPendingLoads() []hierarchy.ChunkCoord {
	available := o.maxConcurrentLoads - len(o.loading)
	if available <= 0 {
		return nil
	}
	result := make([]hierarchy.ChunkCoord, 0, available)
	for len(result) < available && o.queue.Len() > 0 {
		r := heap.Pop(&o.queue).(*request)
		if o.resident[r.chunk] {
			continue
		}
		o.loading[r.chunk] = true
		result = append(result, r.chunk)
	}
	return result
}

func (o *Orchestrator) MarkLoaded(chunk hierarchy.ChunkCoord) {
	delete(o.loading, chunk)
	o.resident[chunk] = true
	o.lastAccess[chunk] = o.frame
	o.stats.ChunksLoaded++
}

func (o *Orchestrator) TouchChunk(chunk hierarchy.ChunkCoord) {
	if o.resident[chunk] {
		o.lastAccess[chunk] = o.frame
	}
}

func (o *Orchestrator) MarkUnloaded(chunk hierarchy.ChunkCoord) {
	delete(o.resident, chunk)
}

func (o *Orchestrator) IsResident(chunk hierarchy.ChunkCoord) bool { return o.resident[chunk] }
func (o *Orchestrator) IsLoading(chunk hierarchy.ChunkCoord) bool  { return o.loading[chunk] }

func (o *Orchestrator) Stats() Stats     { return o.stats }
func (o *Orchestrator) Budget() Budget   { return o.budget }
func (o *Orchestrator) ResidentCount() int { return len(o.resident) }
func (o *Orchestrator) QueueLength() int   { return o.queue.Len() }
func (o *Orchestrator) Frame() uint32      { return o.frame }

// bytesPerChunkEstimate is the assumed per-chunk GPU footprint used to
// translate a byte overage into a chunk eviction count.
const bytesPerChunkEstimate = 256 * 1024

// EnforceBudget evicts the resident chunks with the highest eviction score
// (distance-weighted plus staleness-weighted) until currentUsage projected
// against bytesPerChunkEstimate falls back under the budget's target
// utilization. Returns the evicted coordinates.
func (o *Orchestrator) EnforceBudget(currentUsage uint64) []hierarchy.ChunkCoord {
	target := uint64(float32(o.budget.GpuBrickBudgetBytes) * o.budget.TargetUtilization)
	if currentUsage <= target {
		return nil
	}

	chunksToEvict := int((currentUsage-target)/bytesPerChunkEstimate) + 1

	type candidate struct {
		coord hierarchy.ChunkCoord
		score float32
	}
	candidates := make([]candidate, 0, len(o.resident))
	for coord := range o.resident {
		center := coord.WorldOrigin().Add(mgl32.Vec3{hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2})
		distance := center.Sub(o.cameraPos).Len()
		staleness := o.frame - o.lastAccess[coord]
		score := distance*0.01 + float32(staleness)*0.1
		candidates = append(candidates, candidate{coord, score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if chunksToEvict > len(candidates) {
		chunksToEvict = len(candidates)
	}
	evicted := make([]hierarchy.ChunkCoord, 0, chunksToEvict)
	for _, c := range candidates[:chunksToEvict] {
		delete(o.resident, c.coord)
		delete(o.lastAccess, c.coord)
		evicted = append(evicted, c.coord)
		o.stats.BricksEvicted++
	}
	return evicted
}
