package streaming

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
)

// maxPositionHistory bounds the predictor's rolling window (~1s at 60fps).
const maxPositionHistory = 60

type positionSample struct {
	position mgl32.Vec3
	time     float32
}

// FrustumPrefetchConfig tunes frustum-direction prefetching.
type FrustumPrefetchConfig struct {
	ExpansionFactor float32
	MaxDepth        float32
	FovRadians      float32
}

func DefaultFrustumPrefetchConfig() FrustumPrefetchConfig {
	return FrustumPrefetchConfig{ExpansionFactor: 1.5, MaxDepth: 64.0, FovRadians: float32(math.Pi / 3)}
}

// EditRegionPrefetchConfig tunes prefetching around active edit regions.
type EditRegionPrefetchConfig struct {
	MarginChunks int32
	MaxRegions   int
}

func DefaultEditRegionPrefetchConfig() EditRegionPrefetchConfig {
	return EditRegionPrefetchConfig{MarginChunks: 2, MaxRegions: 16}
}

// Strategy weights combine the three prediction modes into one ranked list.
type Strategy struct {
	TemporalWeight   float32
	FrustumWeight    float32
	EditRegionWeight float32
}

func DefaultStrategy() Strategy {
	return Strategy{TemporalWeight: 1.0, FrustumWeight: 1.5, EditRegionWeight: 2.0}
}

// Predicted pairs a candidate chunk with its combined prefetch priority.
type Predicted struct {
	Chunk    hierarchy.ChunkCoord
	Priority float32
}

// EditRegion is a world-space box an active edit overlay reports as
// currently hot, for edit-proximity prefetching.
type EditRegion struct {
	Min, Max mgl32.Vec3
}

func (r EditRegion) Center() mgl32.Vec3 { return r.Min.Add(r.Max).Mul(0.5) }

// Predictor predicts which chunks the camera will need next frame, combining
// recent-velocity extrapolation, frustum-direction expansion, and proximity
// to active edit regions.
type Predictor struct {
	history      []positionSample
	velocity     mgl32.Vec3
	lookahead    float32
	currentTime  float32

	frustumConfig    FrustumPrefetchConfig
	editRegionConfig EditRegionPrefetchConfig
	strategy         Strategy
}

func NewPredictor() *Predictor {
	return &Predictor{
		lookahead:        0.5,
		frustumConfig:    DefaultFrustumPrefetchConfig(),
		editRegionConfig: DefaultEditRegionPrefetchConfig(),
		strategy:         DefaultStrategy(),
	}
}

func (p *Predictor) WithLookahead(seconds float32) *Predictor    { p.lookahead = seconds; return p }
func (p *Predictor) WithFrustumConfig(c FrustumPrefetchConfig) *Predictor {
	p.frustumConfig = c
	return p
}
func (p *Predictor) WithEditRegionConfig(c EditRegionPrefetchConfig) *Predictor {
	p.editRegionConfig = c
	return p
}
func (p *Predictor) WithStrategy(s Strategy) *Predictor { p.strategy = s; return p }

// Update feeds a new camera position sample and re-estimates velocity.
func (p *Predictor) Update(position mgl32.Vec3, deltaTime float32) {
	p.currentTime += deltaTime
	p.history = append(p.history, positionSample{position: position, time: p.currentTime})
	if len(p.history) > maxPositionHistory {
		p.history = p.history[len(p.history)-maxPositionHistory:]
	}
	p.velocity = p.estimateVelocity()
}

func (p *Predictor) estimateVelocity() mgl32.Vec3 {
	if len(p.history) < 2 {
		return mgl32.Vec3{}
	}
	var totalVelocity mgl32.Vec3
	var totalWeight float32
	for i := 1; i < len(p.history); i++ {
		prev, curr := p.history[i-1], p.history[i]
		dt := curr.time - prev.time
		if dt > 0.0001 {
			v := curr.position.Sub(prev.position).Mul(1 / dt)
			weight := float32(i) / float32(len(p.history))
			totalVelocity = totalVelocity.Add(v.Mul(weight))
			totalWeight += weight
		}
	}
	if totalWeight > 0 {
		return totalVelocity.Mul(1 / totalWeight)
	}
	return mgl32.Vec3{}
}

func (p *Predictor) Velocity() mgl32.Vec3 { return p.velocity }
func (p *Predictor) Speed() float32       { return p.velocity.Len() }

func (p *Predictor) PredictPosition(secondsAhead float32) mgl32.Vec3 {
	if len(p.history) == 0 {
		return mgl32.Vec3{}
	}
	latest := p.history[len(p.history)-1]
	return latest.position.Add(p.velocity.Mul(secondsAhead))
}

func (p *Predictor) CurrentPosition() mgl32.Vec3 {
	if len(p.history) == 0 {
		return mgl32.Vec3{}
	}
	return p.history[len(p.history)-1].position
}

// chunksAround lists chunks within radius of pos that loaded reports as not
// yet resident, each tagged with a distance-derived priority.
func (p *Predictor) chunksAround(pos mgl32.Vec3, radius float32, loaded func(hierarchy.ChunkCoord) bool) []Predicted {
	center := hierarchy.WorldToChunk(pos)
	chunkRadius := int32(math.Ceil(float64(radius / hierarchy.ChunkSizeMeters)))

	var out []Predicted
	for dx := -chunkRadius; dx <= chunkRadius; dx++ {
		for dy := -chunkRadius; dy <= chunkRadius; dy++ {
			for dz := -chunkRadius; dz <= chunkRadius; dz++ {
				coord := hierarchy.NewChunkCoord(center.X+dx, center.Y+dy, center.Z+dz)
				if loaded(coord) {
					continue
				}
				chunkCenter := coord.WorldOrigin().Add(mgl32.Vec3{hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2})
				distance := chunkCenter.Sub(pos).Len()
				out = append(out, Predicted{coord, 1.0 / (1.0 + distance*0.1)})
			}
		}
	}
	return out
}

// PredictNeededChunksTemporal extrapolates the camera's recent velocity
// forward across Lookahead seconds; a stationary camera just prefetches its
// immediate surroundings.
func (p *Predictor) PredictNeededChunksTemporal(loaded func(hierarchy.ChunkCoord) bool) []Predicted {
	speed := p.Speed()
	if speed < 0.1 {
		return p.chunksAround(p.CurrentPosition(), 32.0, loaded)
	}

	const steps = 10
	var needed []Predicted
	for i := 0; i < steps; i++ {
		t := p.lookahead * (float32(i) / float32(steps))
		predictedPos := p.PredictPosition(t)
		radius := 16.0 + speed*t
		for _, c := range p.chunksAround(predictedPos, radius, loaded) {
			priority := c.Priority * (1.0 - t/p.lookahead*0.5) * p.strategy.TemporalWeight
			needed = append(needed, Predicted{c.Chunk, priority})
		}
	}
	return needed
}

// PredictFrustumChunks samples points along the camera's forward direction,
// expanding a cone (not the real frustum -- a cheap proxy) to predict chunks
// about to enter view.
func (p *Predictor) PredictFrustumChunks(forward mgl32.Vec3, loaded func(hierarchy.ChunkCoord) bool) []Predicted {
	currentPos := p.CurrentPosition()
	forward = forward.Normalize()

	cfg := p.frustumConfig
	halfFov := cfg.FovRadians * 0.5 * cfg.ExpansionFactor
	tanHalfFov := float32(math.Tan(float64(halfFov)))

	const steps = 8
	var needed []Predicted
	for i := 0; i < steps; i++ {
		depth := (float32(i) / float32(steps)) * cfg.MaxDepth
		center := currentPos.Add(forward.Mul(depth))
		radius := depth * tanHalfFov

		for _, c := range p.chunksAround(center, radius, loaded) {
			depthFactor := 1.0 - depth/cfg.MaxDepth
			priority := c.Priority * depthFactor * p.strategy.FrustumWeight
			needed = append(needed, Predicted{c.Chunk, priority})
		}
	}
	return needed
}

// PredictEditRegionChunks expands each active edit region by MarginChunks
// and ranks the result by proximity to the region's center -- edits are
// usually followed immediately by a camera look, so this tier carries the
// highest default weight.
func (p *Predictor) PredictEditRegionChunks(regions []EditRegion, loaded func(hierarchy.ChunkCoord) bool) []Predicted {
	cfg := p.editRegionConfig
	n := len(regions)
	if n > cfg.MaxRegions {
		n = cfg.MaxRegions
	}

	var needed []Predicted
	for _, region := range regions[:n] {
		minC := hierarchy.WorldToChunk(region.Min)
		maxC := hierarchy.WorldToChunk(region.Max)
		margin := cfg.MarginChunks
		regionCenter := region.Center()

		for cx := minC.X - margin; cx <= maxC.X+margin; cx++ {
			for cy := minC.Y - margin; cy <= maxC.Y+margin; cy++ {
				for cz := minC.Z - margin; cz <= maxC.Z+margin; cz++ {
					coord := hierarchy.NewChunkCoord(cx, cy, cz)
					if loaded(coord) {
						continue
					}
					chunkCenter := coord.WorldOrigin().Add(mgl32.Vec3{hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2, hierarchy.ChunkSizeMeters / 2})
					distance := chunkCenter.Sub(regionCenter).Len()
					priority := (1.0 / (1.0 + distance*0.05)) * p.strategy.EditRegionWeight
					needed = append(needed, Predicted{coord, priority})
				}
			}
		}
	}
	return needed
}

// PredictNeededChunksCombined merges all three strategies, deduplicating by
// chunk and keeping each chunk's highest priority, sorted descending.
func (p *Predictor) PredictNeededChunksCombined(forward *mgl32.Vec3, editRegions []EditRegion, loaded func(hierarchy.ChunkCoord) bool) []Predicted {
	var all []Predicted

	if p.strategy.TemporalWeight > 0 {
		all = append(all, p.PredictNeededChunksTemporal(loaded)...)
	}
	if forward != nil && p.strategy.FrustumWeight > 0 {
		all = append(all, p.PredictFrustumChunks(*forward, loaded)...)
	}
	if len(editRegions) > 0 && p.strategy.EditRegionWeight > 0 {
		all = append(all, p.PredictEditRegionChunks(editRegions, loaded)...)
	}

	return dedupeHighestPriority(all)
}

func dedupeHighestPriority(chunks []Predicted) []Predicted {
	best := make(map[hierarchy.ChunkCoord]float32, len(chunks))
	for _, c := range chunks {
		if cur, ok := best[c.Chunk]; !ok || c.Priority > cur {
			best[c.Chunk] = c.Priority
		}
	}
	out := make([]Predicted, 0, len(best))
	for coord, pr := range best {
		out = append(out, Predicted{coord, pr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
