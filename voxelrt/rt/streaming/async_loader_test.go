package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %v", timeout)
}

func TestRequestLoadCompletes(t *testing.T) {
	gen := func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error) {
		return &svo.SVO{}, nil
	}
	l := NewAsyncChunkLoader(DefaultLoaderConfig(), gen)
	coord := hierarchy.NewChunkCoord(0, 0, 0)

	ok := l.RequestLoad(context.Background(), coord)
	assert.True(t, ok)
	assert.True(t, l.IsPending(coord))

	waitUntil(t, time.Second, func() bool { return l.CompletedCount() == 1 })

	completed := l.PollCompleted()
	require.Len(t, completed, 1)
	assert.Equal(t, coord, completed[0].Coord)
	assert.Equal(t, 0, l.CompletedCount())
}

func TestRequestLoadRejectsDuplicate(t *testing.T) {
	block := make(chan struct{})
	gen := func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error) {
		<-block
		return &svo.SVO{}, nil
	}
	l := NewAsyncChunkLoader(DefaultLoaderConfig(), gen)
	coord := hierarchy.NewChunkCoord(0, 0, 0)

	assert.True(t, l.RequestLoad(context.Background(), coord))
	assert.False(t, l.RequestLoad(context.Background(), coord))

	close(block)
	l.Shutdown()
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	gen := func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	l := NewAsyncChunkLoader(DefaultLoaderConfig(), gen)
	coord := hierarchy.NewChunkCoord(0, 0, 0)

	l.RequestLoad(context.Background(), coord)
	<-started
	l.Cancel(coord)

	waitUntil(t, time.Second, func() bool {
		status, ok := l.Status(coord)
		return ok && status.Kind == LoadCancelled
	})
}

func TestMaxPending(t *testing.T) {
	block := make(chan struct{})
	gen := func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error) {
		<-block
		return &svo.SVO{}, nil
	}
	cfg := LoaderConfig{Workers: 1, MaxPending: 2}
	l := NewAsyncChunkLoader(cfg, gen)

	assert.True(t, l.RequestLoad(context.Background(), hierarchy.NewChunkCoord(0, 0, 0)))
	assert.True(t, l.RequestLoad(context.Background(), hierarchy.NewChunkCoord(1, 0, 0)))
	assert.False(t, l.RequestLoad(context.Background(), hierarchy.NewChunkCoord(2, 0, 0)))

	close(block)
	l.Shutdown()
}

func TestGeneratorFailurePropagates(t *testing.T) {
	wantErr := errors.New("boom")
	gen := func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error) {
		return nil, wantErr
	}
	l := NewAsyncChunkLoader(DefaultLoaderConfig(), gen)
	coord := hierarchy.NewChunkCoord(0, 0, 0)

	l.RequestLoad(context.Background(), coord)

	waitUntil(t, time.Second, func() bool {
		status, ok := l.Status(coord)
		return ok && status.Kind == LoadFailed
	})
	status, _ := l.Status(coord)
	assert.Equal(t, wantErr.Error(), status.Err)
}
