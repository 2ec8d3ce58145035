package edit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func TestLogCreateAndAppend(t *testing.T) {
	path := tempLogPath(t, "create_append.rked")
	l := OpenLog(path)
	require.Equal(t, 0, l.EditCount())

	id, err := l.Append(NewDelta(0, 1, SetVoxel(mgl32.Vec3{1, 2, 3}, svo.NewVoxel(0, 0, 0, 5))))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, 1, l.EditCount())
}

func TestLogRoundTripSaveLoad(t *testing.T) {
	path := tempLogPath(t, "load_disk.rked")
	l := OpenLog(path)
	_, err := l.Append(NewDelta(0, 1, SetVoxel(mgl32.Vec3{5, 5, 5}, svo.NewVoxel(0, 0, 0, 3))))
	require.NoError(t, err)
	_, err = l.Append(NewDelta(0, 2, ClearVoxel(mgl32.Vec3{10, 10, 10})))
	require.NoError(t, err)

	loaded, err := LoadLog(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.EditCount())
	assert.Equal(t, uint32(1), loaded.AllEdits()[0].Frame)
	assert.Equal(t, uint32(2), loaded.AllEdits()[1].Frame)
	assert.Equal(t, loaded.AllEdits()[0].Op.Voxel.MaterialID, uint8(3))
}

func TestLogEditsForChunk(t *testing.T) {
	path := tempLogPath(t, "chunk_query.rked")
	l := OpenLog(path)

	_, err := l.Append(NewDelta(0, 1, SetVoxel(mgl32.Vec3{5, 5, 5}, svo.NewVoxel(0, 0, 0, 1))))
	require.NoError(t, err)
	_, err = l.Append(NewDelta(0, 2, SetVoxel(mgl32.Vec3{1, 1, 1}, svo.NewVoxel(0, 0, 0, 2))))
	require.NoError(t, err)

	edits := l.EditsForChunk(hierarchy.NewChunkCoord(1, 1, 1))
	require.Len(t, edits, 1)
	assert.Equal(t, uint32(1), edits[0].Frame)

	edits = l.EditsForChunk(hierarchy.NewChunkCoord(0, 0, 0))
	require.Len(t, edits, 1)
	assert.Equal(t, uint32(2), edits[0].Frame)
}

// TestLogCompactKeepsOnlyLatestAtSamePosition is scenario 5's persisted
// counterpart: three SetVoxel edits at the same position compact down to
// the last one.
func TestLogCompactKeepsOnlyLatestAtSamePosition(t *testing.T) {
	path := tempLogPath(t, "compact.rked")
	l := OpenLog(path)
	pos := mgl32.Vec3{5, 5, 5}

	for frame, material := range []uint8{1, 2, 3} {
		_, err := l.Append(NewDelta(0, uint32(frame+1), SetVoxel(pos, svo.NewVoxel(0, 0, 0, material))))
		require.NoError(t, err)
	}
	require.Equal(t, 3, l.EditCount())

	require.NoError(t, l.Compact())

	require.Equal(t, 1, l.EditCount())
	assert.Equal(t, uint32(3), l.AllEdits()[0].Frame)

	// Verify the compacted file persisted correctly too.
	reloaded, err := LoadLog(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.EditCount())
	assert.Equal(t, uint8(3), reloaded.AllEdits()[0].Op.Voxel.MaterialID)
}

func TestLoadMissingFileYieldsEmptyLog(t *testing.T) {
	path := tempLogPath(t, "does_not_exist.rked")
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	l := OpenLog(path)
	assert.Equal(t, 0, l.EditCount())
}
