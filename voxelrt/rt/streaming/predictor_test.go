package streaming

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/stretchr/testify/assert"
)

func TestVelocityEstimation(t *testing.T) {
	p := NewPredictor()
	for i := 0; i < 30; i++ {
		pos := mgl32.Vec3{float32(i) * 0.166, 0, 0} // ~10 m/s at 60fps
		p.Update(pos, 1.0/60.0)
	}
	speed := p.Speed()
	assert.True(t, speed > 8.0 && speed < 12.0, "expected ~10 m/s, got %v", speed)
}

func TestPositionPrediction(t *testing.T) {
	p := NewPredictor()
	p.Update(mgl32.Vec3{0, 0, 0}, 0)
	p.Update(mgl32.Vec3{10, 0, 0}, 1.0)

	predicted := p.PredictPosition(0.5)
	assert.True(t, predicted.X() > 12.0 && predicted.X() < 18.0)
}

func TestStationaryCameraLowSpeed(t *testing.T) {
	p := NewPredictor()
	for i := 0; i < 10; i++ {
		p.Update(mgl32.Vec3{5, 0, 5}, 1.0/60.0)
	}
	assert.Less(t, p.Speed(), float32(0.1))
}

func notLoaded(hierarchy.ChunkCoord) bool { return false }

func TestPredictNeededChunksCombinedDedupesAndSorts(t *testing.T) {
	p := NewPredictor()
	p.Update(mgl32.Vec3{0, 0, 0}, 0)

	regions := []EditRegion{{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 4, 4}}}
	forward := mgl32.Vec3{1, 0, 0}
	out := p.PredictNeededChunksCombined(&forward, regions, notLoaded)

	assert.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Priority, out[i].Priority)
	}
	seen := make(map[hierarchy.ChunkCoord]bool)
	for _, c := range out {
		assert.False(t, seen[c.Chunk], "chunk %v duplicated", c.Chunk)
		seen[c.Chunk] = true
	}
}
