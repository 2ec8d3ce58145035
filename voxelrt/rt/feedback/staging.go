package feedback

// MappableBuffer abstracts the subset of a GPU buffer's async-map lifecycle
// the readback loop drives: MapAsync/Poll/GetMappedRange/Unmap. A concrete
// wgpu-backed implementation lives in the gpu package; this package stays
// device-agnostic so it is testable without a GPU device.
type MappableBuffer interface {
	MapAsync(onReady func(ok bool))
	Poll()
	GetMappedRange() []byte
	Unmap()
}

// Ring double-buffers a staging readback so the GPU never waits on a CPU
// map: frame N submits a copy into buffer (N%2) and requests a map; frame
// N+1 polls that map (non-blocking) before reusing the other buffer.
type Ring struct {
	buffers [2]MappableBuffer
	pending [2]bool
	cur     int
}

func NewRing(a, b MappableBuffer) *Ring {
	return &Ring{buffers: [2]MappableBuffer{a, b}}
}

// BeginFrame returns the buffer to submit this frame's feedback copy into,
// and advances the ring.
func (r *Ring) BeginFrame() MappableBuffer {
	idx := r.cur
	buf := r.buffers[idx]
	r.pending[idx] = false // becomes true only once onReady fires
	buf.MapAsync(func(ok bool) { r.pending[idx] = ok })
	r.cur = (r.cur + 1) % 2
	return buf
}

// PollPreviousFrame polls (non-blocking) the other buffer for a resolved
// map, and if ready, returns its mapped bytes split into header/records.
// The caller must call Unmap via Release when done with the slice.
func (r *Ring) PollPreviousFrame() (other int, header, records []byte, ready bool) {
	other = (r.cur + 1) % 2
	buf := r.buffers[other]
	buf.Poll()
	if !r.pending[other] {
		return other, nil, nil, false
	}
	data := buf.GetMappedRange()
	if len(data) < 16 {
		return other, nil, nil, false
	}
	return other, data[:16], data[16:], true
}

func (r *Ring) Release(which int) {
	r.buffers[which].Unmap()
	r.pending[which] = false
}
