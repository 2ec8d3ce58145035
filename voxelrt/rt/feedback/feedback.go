// Package feedback implements the GPU -> CPU missing-brick request round
// trip: parsing the shader-written ring buffer, deduplicating by brick id,
// and presenting a priority-ordered request list to the streaming
// orchestrator.
package feedback

import (
	"encoding/binary"
	"sort"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// MaxRequestsDefault is the default ring-buffer capacity.
const MaxRequestsDefault = 1 << 16

// rawRequestBytes is the byte size of one {packed_chunk_coord,
// local_brick_index, pixel_count} record in the GPU ring buffer.
const rawRequestBytes = 12

// Request is a deduplicated missing-brick demand.
type Request struct {
	Brick      svo.BrickID
	PixelCount uint64
}

// Buffer holds one frame's worth of parsed feedback requests.
type Buffer struct {
	requests   map[svo.BrickID]uint64
	overflowed bool
	max        uint32
}

func NewBuffer(maxRequests uint32) *Buffer {
	if maxRequests == 0 {
		maxRequests = MaxRequestsDefault
	}
	return &Buffer{requests: make(map[svo.BrickID]uint64), max: maxRequests}
}

// Parse decodes the mapped staging buffer: a 16-byte header {count, max, _,
// _} followed by count raw request records. Dedupes by BrickID, summing
// pixel counts. Safe to call on a header reporting count > len(records);
// only min(count, available) records are read.
func (b *Buffer) Parse(header []byte, records []byte) {
	b.requests = make(map[svo.BrickID]uint64)
	if len(header) < 16 {
		return
	}
	count := binary.LittleEndian.Uint32(header[0:4])
	maxCount := binary.LittleEndian.Uint32(header[4:8])
	if maxCount != 0 {
		b.max = maxCount
	}
	b.overflowed = count >= b.max

	available := uint32(len(records) / rawRequestBytes)
	if count > available {
		count = available
	}
	for i := uint32(0); i < count; i++ {
		rec := records[i*rawRequestBytes : (i+1)*rawRequestBytes]
		packed := binary.LittleEndian.Uint32(rec[0:4])
		local := binary.LittleEndian.Uint32(rec[4:8])
		pixels := binary.LittleEndian.Uint32(rec[8:12])

		coord := hierarchy.UnpackChunkCoord(packed)
		id := svo.BrickID{Chunk: svo.ChunkCoordKey{X: coord.X, Y: coord.Y, Z: coord.Z}, Local: local}
		b.requests[id] += uint64(pixels)
	}
}

func (b *Buffer) Requests() []Request {
	out := make([]Request, 0, len(b.requests))
	for id, px := range b.requests {
		out = append(out, Request{Brick: id, PixelCount: px})
	}
	return out
}

func (b *Buffer) UniqueBrickIDs() []svo.BrickID {
	out := make([]svo.BrickID, 0, len(b.requests))
	for id := range b.requests {
		out = append(out, id)
	}
	return out
}

// RequestsByPriority returns requests sorted descending by pixel count.
func (b *Buffer) RequestsByPriority() []Request {
	out := b.Requests()
	sort.Slice(out, func(i, j int) bool { return out[i].PixelCount > out[j].PixelCount })
	return out
}

func (b *Buffer) Overflowed() bool { return b.overflowed }

// HeaderResetBytes is the 16-byte zeroed header written at the start of
// compute submission to clear the shader's atomic request counter.
func HeaderResetBytes() []byte { return make([]byte, 16) }
