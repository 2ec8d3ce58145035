package streaming

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
)

// presenceMaskWords holds ChunksPerSuperChunk^3 bits (16^3 = 4096 = 64 * 64).
const presenceMaskWords = 64

// PresenceMask is a bitset tracking which of a SuperChunk's 16x16x16 chunk
// slots are populated.
type PresenceMask struct {
	bits [presenceMaskWords]uint64
}

func presenceIndex(x, y, z uint32) int {
	n := hierarchy.ChunksPerSuperChunk
	return int(z*n*n + y*n + x)
}

func (m *PresenceMask) IsPresent(x, y, z uint32) bool {
	idx := presenceIndex(x, y, z)
	return m.bits[idx/64]&(1<<uint(idx%64)) != 0
}

func (m *PresenceMask) SetPresent(x, y, z uint32, present bool) {
	idx := presenceIndex(x, y, z)
	word, bit := idx/64, uint(idx%64)
	if present {
		m.bits[word] |= 1 << bit
	} else {
		m.bits[word] &^= 1 << bit
	}
}

func (m *PresenceMask) Count() int {
	n := 0
	for _, w := range m.bits {
		for w != 0 {
			n++
			w &= w - 1
		}
	}
	return n
}

func (m *PresenceMask) IsEmpty() bool {
	for _, w := range m.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// SuperChunk is the coarse-grained (64m) container tracking which of its
// 16x16x16 chunks are populated, plus the bookkeeping the orchestrator uses
// to prioritise SuperChunk-granularity streaming decisions.
type SuperChunk struct {
	Coord             hierarchy.SuperChunkCoord
	ChunkMask         PresenceMask
	LastAccess        time.Time
	DistanceToCamera  float32
	Dirty             bool
}

func NewSuperChunk(coord hierarchy.SuperChunkCoord) *SuperChunk {
	return &SuperChunk{Coord: coord, LastAccess: time.Now(), DistanceToCamera: float32(1e38)}
}

func (s *SuperChunk) UpdateDistance(cameraPos mgl32.Vec3) {
	s.DistanceToCamera = s.Coord.WorldCenter().Sub(cameraPos).Len()
}

func (s *SuperChunk) Touch() { s.LastAccess = time.Now() }

func (s *SuperChunk) ChunkCount() int { return s.ChunkMask.Count() }
