package edit

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

var logMagic = [4]byte{'R', 'K', 'E', 'D'}

const logVersion uint32 = 1

// Log is an append-only on-disk record of every edit applied to a world, in
// the .rked format: a 4-byte magic, a u32 version, then one variable-length
// record per edit.
type Log struct {
	path       string
	edits      []Delta
	chunkIndex map[hierarchy.ChunkCoord][]uint64
	nextID     uint64
}

// OpenLog loads path if it exists, or returns a fresh empty log bound to it.
// A corrupt or unreadable file is treated the same as a missing one: later
// appends create it from scratch.
func OpenLog(path string) *Log {
	l, err := LoadLog(path)
	if err == nil {
		return l
	}
	if !os.IsNotExist(err) {
		os.Remove(path)
	}
	return emptyLog(path)
}

func emptyLog(path string) *Log {
	return &Log{path: path, chunkIndex: make(map[hierarchy.ChunkCoord][]uint64), nextID: 1}
}

// LoadLog reads an existing .rked file from disk.
func LoadLog(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := readHeader(r); err != nil {
		return nil, err
	}

	var edits []Delta
	var maxID uint64
	for {
		delta, err := readEdit(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		edits = append(edits, delta)
		if delta.ID > maxID {
			maxID = delta.ID
		}
	}

	l := &Log{path: path, edits: edits, chunkIndex: make(map[hierarchy.ChunkCoord][]uint64), nextID: maxID + 1}
	l.rebuildChunkIndex()
	return l, nil
}

func readHeader(r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return err
	}
	if magic != logMagic {
		return fmt.Errorf("edit log: invalid magic %v", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != logVersion {
		return fmt.Errorf("edit log: unsupported version %d", version)
	}
	return nil
}

// Append assigns an id to delta if it has none, records it, and persists it
// to disk, returning the assigned id.
func (l *Log) Append(delta Delta) (uint64, error) {
	if delta.ID == 0 {
		delta.ID = l.nextID
		l.nextID++
	} else if delta.ID >= l.nextID {
		l.nextID = delta.ID + 1
	}

	for _, chunk := range delta.AffectedChunks {
		l.chunkIndex[chunk] = append(l.chunkIndex[chunk], delta.ID)
	}
	l.edits = append(l.edits, delta)

	info, statErr := os.Stat(l.path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if needsHeader {
		if err := writeHeader(w); err != nil {
			return 0, err
		}
	}
	if err := writeEdit(w, delta); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return delta.ID, nil
}

func writeHeader(w io.Writer) error {
	if _, err := w.Write(logMagic[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, logVersion)
}

// EditsForChunk returns the edits recorded against chunk, in append order.
func (l *Log) EditsForChunk(chunk hierarchy.ChunkCoord) []Delta {
	ids := l.chunkIndex[chunk]
	out := make([]Delta, 0, len(ids))
	for _, id := range ids {
		for _, e := range l.edits {
			if e.ID == id {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (l *Log) AllEdits() []Delta { return l.edits }

func (l *Log) EditCount() int { return len(l.edits) }

// Compact rewrites the log file keeping only the latest edit per affected
// position/region, discarding ones superseded by a later edit at the same
// target. Edits at distinct positions/regions are never merged or dropped.
func (l *Log) Compact() error {
	latest := make(map[string]Delta)
	for _, e := range l.edits {
		key := compactionKey(e.Op)
		if prev, ok := latest[key]; !ok || e.ID > prev.ID {
			latest[key] = e
		}
	}

	compacted := make([]Delta, 0, len(latest))
	for _, d := range latest {
		compacted = append(compacted, d)
	}
	sort.Slice(compacted, func(i, j int) bool { return compacted[i].ID < compacted[j].ID })

	tmpPath := l.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := writeHeader(w); err != nil {
		f.Close()
		return err
	}
	for _, e := range compacted {
		if err := writeEdit(w, e); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return err
	}

	l.edits = compacted
	l.rebuildChunkIndex()
	return nil
}

// compactionKey groups edits by the exact target they write to: rounded
// point coordinates for the point variants, exact region bounds for the
// region variants. Two edits collide only if they target the same voxel or
// identical region, matching the persisted format's compaction rule.
func compactionKey(op Op) string {
	switch op.Kind {
	case OpSetVoxel, OpClearVoxel:
		return fmt.Sprintf("point_%.3f_%.3f_%.3f", op.Position.X(), op.Position.Y(), op.Position.Z())
	default:
		return fmt.Sprintf("region_%.3f_%.3f_%.3f_%.3f_%.3f_%.3f",
			op.Region.Min.X(), op.Region.Min.Y(), op.Region.Min.Z(),
			op.Region.Max.X(), op.Region.Max.Y(), op.Region.Max.Z())
	}
}

// Save rewrites the entire file from in-memory state.
func (l *Log) Save() error {
	f, err := os.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := writeHeader(w); err != nil {
		return err
	}
	for _, e := range l.edits {
		if err := writeEdit(w, e); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (l *Log) rebuildChunkIndex() {
	l.chunkIndex = make(map[hierarchy.ChunkCoord][]uint64)
	for _, e := range l.edits {
		for _, chunk := range e.AffectedChunks {
			l.chunkIndex[chunk] = append(l.chunkIndex[chunk], e.ID)
		}
	}
}

func readEdit(r io.Reader) (Delta, error) {
	var id uint64
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return Delta{}, err
	}
	var frame uint32
	if err := binary.Read(r, binary.LittleEndian, &frame); err != nil {
		return Delta{}, err
	}
	var kindByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return Delta{}, err
	}

	var op Op
	switch OpKind(kindByte[0]) {
	case OpSetVoxel:
		pos, err := readVec3(r)
		if err != nil {
			return Delta{}, err
		}
		v, err := readVoxel(r)
		if err != nil {
			return Delta{}, err
		}
		op = SetVoxel(pos, v)
	case OpClearVoxel:
		pos, err := readVec3(r)
		if err != nil {
			return Delta{}, err
		}
		op = ClearVoxel(pos)
	case OpFillRegion:
		region, err := readRegion(r)
		if err != nil {
			return Delta{}, err
		}
		v, err := readVoxel(r)
		if err != nil {
			return Delta{}, err
		}
		op = FillRegion(region, v)
	case OpClearRegion:
		region, err := readRegion(r)
		if err != nil {
			return Delta{}, err
		}
		op = ClearRegion(region)
	default:
		return Delta{}, fmt.Errorf("edit log: unknown op type %d", kindByte[0])
	}

	return NewDelta(id, frame, op), nil
}

func writeEdit(w io.Writer, d Delta) error {
	if err := binary.Write(w, binary.LittleEndian, d.ID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, d.Frame); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(d.Op.Kind)}); err != nil {
		return err
	}
	switch d.Op.Kind {
	case OpSetVoxel:
		if err := writeVec3(w, d.Op.Position); err != nil {
			return err
		}
		return writeVoxel(w, d.Op.Voxel)
	case OpClearVoxel:
		return writeVec3(w, d.Op.Position)
	case OpFillRegion:
		if err := writeRegion(w, d.Op.Region); err != nil {
			return err
		}
		return writeVoxel(w, d.Op.Voxel)
	case OpClearRegion:
		return writeRegion(w, d.Op.Region)
	default:
		return fmt.Errorf("edit log: unknown op kind %d", d.Op.Kind)
	}
}

func readVec3(r io.Reader) (mgl32.Vec3, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{
		le32ToFloat(buf[0:4]),
		le32ToFloat(buf[4:8]),
		le32ToFloat(buf[8:12]),
	}, nil
}

func writeVec3(w io.Writer, v mgl32.Vec3) error {
	var buf [12]byte
	floatToLE32(buf[0:4], v.X())
	floatToLE32(buf[4:8], v.Y())
	floatToLE32(buf[8:12], v.Z())
	_, err := w.Write(buf[:])
	return err
}

func readRegion(r io.Reader) (Region, error) {
	min, err := readVec3(r)
	if err != nil {
		return Region{}, err
	}
	max, err := readVec3(r)
	if err != nil {
		return Region{}, err
	}
	return Region{Min: min, Max: max}, nil
}

func writeRegion(w io.Writer, region Region) error {
	if err := writeVec3(w, region.Min); err != nil {
		return err
	}
	return writeVec3(w, region.Max)
}

func readVoxel(r io.Reader) (svo.Voxel, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return svo.Voxel{}, err
	}
	return svo.Voxel{
		Color:      binary.LittleEndian.Uint16(buf[0:2]),
		MaterialID: buf[2],
		Flags:      buf[3],
	}, nil
}

func writeVoxel(w io.Writer, v svo.Voxel) error {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:2], v.Color)
	buf[2] = v.MaterialID
	buf[3] = v.Flags
	_, err := w.Write(buf[:])
	return err
}

func le32ToFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func floatToLE32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}
