package feedback

import (
	"encoding/binary"
	"testing"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeHeader(count, max uint32) []byte {
	h := make([]byte, 16)
	binary.LittleEndian.PutUint32(h[0:4], count)
	binary.LittleEndian.PutUint32(h[4:8], max)
	return h
}

func encodeRecord(coord hierarchy.ChunkCoord, local, pixels uint32) []byte {
	rec := make([]byte, rawRequestBytes)
	binary.LittleEndian.PutUint32(rec[0:4], hierarchy.PackChunkCoord(coord))
	binary.LittleEndian.PutUint32(rec[4:8], local)
	binary.LittleEndian.PutUint32(rec[8:12], pixels)
	return rec
}

// TestMissingBrickRequest is scenario 2: exactly one request for a specific
// BrickID after parsing a single-record feedback buffer.
func TestMissingBrickRequest(t *testing.T) {
	coord := hierarchy.ChunkCoord{X: 0, Y: 0, Z: 0}
	header := encodeHeader(1, MaxRequestsDefault)
	records := encodeRecord(coord, 7, 42)

	b := NewBuffer(0)
	b.Parse(header, records)

	reqs := b.Requests()
	require.Len(t, reqs, 1)
	want := svo.BrickID{Chunk: svo.ChunkCoordKey{X: 0, Y: 0, Z: 0}, Local: 7}
	assert.Equal(t, want, reqs[0].Brick)
	assert.Equal(t, uint64(42), reqs[0].PixelCount)
	assert.False(t, b.Overflowed())
}

func TestDedupeSumsPixelCounts(t *testing.T) {
	coord := hierarchy.ChunkCoord{}
	header := encodeHeader(2, MaxRequestsDefault)
	records := append(encodeRecord(coord, 1, 10), encodeRecord(coord, 1, 5)...)

	b := NewBuffer(0)
	b.Parse(header, records)
	reqs := b.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(15), reqs[0].PixelCount)
}

func TestRequestsByPriorityDescending(t *testing.T) {
	coord := hierarchy.ChunkCoord{}
	header := encodeHeader(3, MaxRequestsDefault)
	records := append(append(
		encodeRecord(coord, 1, 5),
		encodeRecord(coord, 2, 50)...),
		encodeRecord(coord, 3, 20)...)

	b := NewBuffer(0)
	b.Parse(header, records)
	sorted := b.RequestsByPriority()
	require.Len(t, sorted, 3)
	assert.Equal(t, uint64(50), sorted[0].PixelCount)
	assert.Equal(t, uint64(20), sorted[1].PixelCount)
	assert.Equal(t, uint64(5), sorted[2].PixelCount)
}

func TestOverflowDetected(t *testing.T) {
	header := encodeHeader(4, 4)
	b := NewBuffer(0)
	b.Parse(header, nil)
	assert.True(t, b.Overflowed())
}
