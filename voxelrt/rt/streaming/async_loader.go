package streaming

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rimevox/rimecore/voxelrt/rt/hierarchy"
	"github.com/rimevox/rimecore/voxelrt/rt/svo"
)

// LoadStatusKind is the closed sum of states a queued load can be in.
type LoadStatusKind int

const (
	LoadQueued LoadStatusKind = iota
	LoadGenerating
	LoadCompleted
	LoadFailed
	LoadCancelled
)

type LoadStatus struct {
	Kind LoadStatusKind
	Err  string // meaningful iff Kind == LoadFailed
}

// LoadedChunk is one completed load's result, returned by the loader's
// PollCompleted.
type LoadedChunk struct {
	Coord      hierarchy.ChunkCoord
	Tree       *svo.SVO
	LoadTimeMs float32
}

// Generator produces a chunk's SVO, given its coordinate -- terrain
// generation, disk deserialization, or a test double, depending on what the
// caller wires in.
type Generator func(ctx context.Context, coord hierarchy.ChunkCoord) (*svo.SVO, error)

// LoaderConfig bounds the loader's concurrency and queue depth.
type LoaderConfig struct {
	Workers    int
	MaxPending int
}

func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{Workers: 4, MaxPending: 64}
}

// AsyncChunkLoader runs chunk generation/loading on a bounded worker pool
// via errgroup, off whatever goroutine drives the per-frame streaming loop.
// RequestLoad is non-blocking; completed results accumulate in an internal
// buffer drained by PollCompleted.
type AsyncChunkLoader struct {
	cfg       LoaderConfig
	generate  Generator

	mu      sync.Mutex
	pending map[hierarchy.ChunkCoord]*LoadStatus

	completedMu sync.Mutex
	completed   []LoadedChunk

	sem chan struct{}
	wg  sync.WaitGroup

	cancelMu sync.Mutex
	cancels  map[hierarchy.ChunkCoord]context.CancelFunc
}

func NewAsyncChunkLoader(cfg LoaderConfig, generate Generator) *AsyncChunkLoader {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultLoaderConfig().Workers
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultLoaderConfig().MaxPending
	}
	return &AsyncChunkLoader{
		cfg:      cfg,
		generate: generate,
		pending:  make(map[hierarchy.ChunkCoord]*LoadStatus),
		sem:      make(chan struct{}, cfg.Workers),
		cancels:  make(map[hierarchy.ChunkCoord]context.CancelFunc),
	}
}

// RequestLoad enqueues coord for loading, spawning a worker immediately
// (bounded by the semaphore). Returns false if the queue is full or coord is
// already pending.
func (l *AsyncChunkLoader) RequestLoad(ctx context.Context, coord hierarchy.ChunkCoord) bool {
	l.mu.Lock()
	if len(l.pending) >= l.cfg.MaxPending {
		l.mu.Unlock()
		return false
	}
	if _, ok := l.pending[coord]; ok {
		l.mu.Unlock()
		return false
	}
	l.pending[coord] = &LoadStatus{Kind: LoadQueued}
	l.mu.Unlock()

	loadCtx, cancel := context.WithCancel(ctx)
	l.cancelMu.Lock()
	l.cancels[coord] = cancel
	l.cancelMu.Unlock()

	l.wg.Add(1)
	go l.runOne(loadCtx, coord)
	return true
}

func (l *AsyncChunkLoader) runOne(ctx context.Context, coord hierarchy.ChunkCoord) {
	defer l.wg.Done()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		l.finish(coord, LoadStatus{Kind: LoadCancelled})
		return
	}
	defer func() { <-l.sem }()

	l.setStatus(coord, LoadStatus{Kind: LoadGenerating})

	var eg errgroup.Group
	var tree *svo.SVO
	eg.Go(func() error {
		var err error
		tree, err = l.generate(ctx, coord)
		return err
	})

	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			l.finish(coord, LoadStatus{Kind: LoadCancelled})
			return
		}
		l.finish(coord, LoadStatus{Kind: LoadFailed, Err: err.Error()})
		return
	}

	l.mu.Lock()
	delete(l.pending, coord)
	l.mu.Unlock()

	l.completedMu.Lock()
	l.completed = append(l.completed, LoadedChunk{Coord: coord, Tree: tree})
	l.completedMu.Unlock()
}

func (l *AsyncChunkLoader) setStatus(coord hierarchy.ChunkCoord, status LoadStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.pending[coord]; ok {
		*s = status
	}
}

func (l *AsyncChunkLoader) finish(coord hierarchy.ChunkCoord, status LoadStatus) {
	l.mu.Lock()
	if s, ok := l.pending[coord]; ok {
		*s = status
	}
	l.mu.Unlock()
}

// Cancel requests cancellation of coord's in-flight load, if any.
func (l *AsyncChunkLoader) Cancel(coord hierarchy.ChunkCoord) {
	l.cancelMu.Lock()
	cancel, ok := l.cancels[coord]
	l.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll cancels every in-flight and queued load.
func (l *AsyncChunkLoader) CancelAll() {
	l.cancelMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(l.cancels))
	for _, c := range l.cancels {
		cancels = append(cancels, c)
	}
	l.cancelMu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// PollCompleted drains and returns every load that has finished since the
// last call.
func (l *AsyncChunkLoader) PollCompleted() []LoadedChunk {
	l.completedMu.Lock()
	defer l.completedMu.Unlock()
	out := l.completed
	l.completed = nil
	return out
}

func (l *AsyncChunkLoader) IsPending(coord hierarchy.ChunkCoord) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[coord]
	return ok
}

func (l *AsyncChunkLoader) Status(coord hierarchy.ChunkCoord) (LoadStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pending[coord]
	if !ok {
		return LoadStatus{}, false
	}
	return *s, true
}

func (l *AsyncChunkLoader) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *AsyncChunkLoader) CompletedCount() int {
	l.completedMu.Lock()
	defer l.completedMu.Unlock()
	return len(l.completed)
}

// Shutdown cancels every outstanding load and blocks until all worker
// goroutines have returned.
func (l *AsyncChunkLoader) Shutdown() {
	l.CancelAll()
	l.wg.Wait()
}
