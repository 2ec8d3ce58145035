package svo

import "math/bits"

// Hint is the coarse classification of a region, as reported by a Classifier.
type Hint int

const (
	// Empty means the region contains no non-empty voxels.
	Empty Hint = iota
	// Full means the region is uniformly filled with a single voxel value.
	Full
	// Mixed means the region must be subdivided further.
	Mixed
)

// AABB is an axis-aligned box in world space, used only to query a Classifier.
type AABB struct {
	Min, Max [3]float32
}

// Classifier is the sole polymorphic boundary of the builder: any type
// implementing it can drive SVO construction. Implementations compose --
// a base terrain classifier wrapped by an edit overlay, further wrapped by
// instance merges -- and the composition is frozen once Build is called.
type Classifier interface {
	// Classify reports a hint for the region; when it reports Full it must
	// also return the representative voxel value in the second result.
	Classify(region AABB) (Hint, Voxel)
	// Evaluate samples a single point; only called for Mixed regions once
	// descent reaches the builder's MaxDepth (Full regions use the voxel
	// returned by Classify).
	Evaluate(pos [3]float32) Voxel
}

// ChunkMaxDepth is the number of SVO levels separating a chunk-sized root
// from brick-sized leaves: BricksPerChunk == 2^ChunkMaxDepth.
//
// 256 bricks per chunk edge -> 8 halvings from a 4m chunk down to a
// brick-sized (≈0.0156m) node; the voxel resolution inside that brick is
// sampled directly from Brick.Voxels, not represented by further nodes.
const ChunkMaxDepth = 8

// Builder constructs an SVO from a Classifier. It holds no mutable state
// between calls; Build is safe to call concurrently for independent regions.
type Builder struct {
	// MaxDepth bounds recursion; callers building a whole chunk use
	// ChunkMaxDepth, callers building a smaller instance SVO may choose a
	// shallower depth.
	MaxDepth int
}

func NewBuilder(maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = ChunkMaxDepth
	}
	return &Builder{MaxDepth: maxDepth}
}

// Build recurses top-down over region [origin, origin+size)^3, producing a
// deterministic SVO for a deterministic classifier.
func (b *Builder) Build(c Classifier, origin [3]float32, size float32) *SVO {
	out := &SVO{Origin: origin, RootSize: size, MaxDepth: b.MaxDepth}
	region := AABB{origin, add3(origin, size)}
	present, leaf, idx := b.build(c, region, 0, out)
	if !present {
		out.Empty = true
		return out
	}
	if leaf {
		// A root classified Full (or collapsed at depth 0) has no node of
		// its own; synthesize a single terminal-leaf root node so callers
		// can always address a root node uniformly.
		out.Nodes = append(out.Nodes, Node{
			ChildValidMask: 1,
			ChildLeafMask:  1,
			BrickOffset:    idx,
			TerminalLeaf:   true,
		})
		idx = uint32(len(out.Nodes) - 1)
	}
	out.RootIndex = idx
	return out
}

// build classifies `region` and, if Mixed, recurses into its 8 octants and
// emits a node for it (appending to out.Nodes). It returns (isPresent,
// isLeaf, brickIdx) describing how the *parent* should reference this region:
// isPresent==false means nothing is referenced; isLeaf==true means brickIdx
// is a brick index and no node is allocated for this subtree; otherwise
// brickIdx is the index of the region's node in out.Nodes. Only Mixed
// regions above MaxDepth get a Node; Full and depth-exhausted regions
// become bricks.
func (b *Builder) build(c Classifier, region AABB, depth int, out *SVO) (isPresent bool, isLeaf bool, brickIdx uint32) {
	hint, fillVoxel := c.Classify(region)

	if hint == Empty {
		return false, false, 0
	}

	if hint == Full || depth >= b.MaxDepth {
		brick := b.fillBrick(c, region, hint, fillVoxel)
		if brick.IsEmpty() {
			return false, false, 0
		}
		idx := uint32(len(out.Bricks))
		out.Bricks = append(out.Bricks, *brick)
		return true, true, idx
	}

	// Mixed: recurse into 8 octants in canonical order (bit0=x,bit1=y,bit2=z).
	half := regionSize(region) / 2
	center := add3(region.Min, half)

	type childResult struct {
		present, leaf bool
		nodeIdx       uint32 // valid when !leaf
		brickIdx      uint32 // valid when leaf
	}
	var children [8]childResult
	var validMask, leafMask uint8

	// First pass: recurse and classify every octant. The children's bricks
	// and nodes are then copied into contiguous runs (appendBricksByIndex,
	// relocateNodesByIndex) once the final valid/leaf masks are known.
	type pendingNode struct {
		octant int
		node   Node
	}
	var pendingSubtrees []pendingNode

	for oct := 0; oct < 8; oct++ {
		ox, oy, oz := oct&1, (oct>>1)&1, (oct>>2)&1
		childMin := [3]float32{
			region.Min[0] + float32(ox)*half,
			region.Min[1] + float32(oy)*half,
			region.Min[2] + float32(oz)*half,
		}
		childRegion := AABB{childMin, add3(childMin, half)}
		_ = center

		present, leaf, bIdx := b.buildChild(c, childRegion, depth+1, out)
		if !present {
			continue
		}
		validMask |= 1 << uint(oct)
		if leaf {
			leafMask |= 1 << uint(oct)
			children[oct] = childResult{present: true, leaf: true, brickIdx: bIdx}
		} else {
			children[oct] = childResult{present: true, leaf: false, nodeIdx: bIdx}
		}
	}

	if validMask == 0 {
		return false, false, 0
	}

	node := Node{ChildValidMask: validMask, ChildLeafMask: leafMask}

	if leafMask != 0 {
		leafRun := make([]uint32, 0, bits.OnesCount8(leafMask))
		for oct := 0; oct < 8; oct++ {
			if leafMask&(1<<uint(oct)) != 0 {
				leafRun = append(leafRun, children[oct].brickIdx)
			}
		}
		node.BrickOffset = appendBricksByIndex(out, leafRun)
	}
	if validMask&^leafMask != 0 {
		internalRun := make([]uint32, 0, bits.OnesCount8(validMask&^leafMask))
		for oct := 0; oct < 8; oct++ {
			if validMask&(1<<uint(oct)) != 0 && leafMask&(1<<uint(oct)) == 0 {
				internalRun = append(internalRun, children[oct].nodeIdx)
			}
		}
		node.ChildOffset = relocateNodesByIndex(out, internalRun)
	}
	_ = pendingSubtrees

	idx := uint32(len(out.Nodes))
	out.Nodes = append(out.Nodes, node)
	return true, false, idx
}

// buildChild is a thin wrapper so the recursion above reads uniformly; it
// exists because Go has no nested closures capturing `out` cheaply across
// the two-pass octant loop without repeating signatures.
func (b *Builder) buildChild(c Classifier, region AABB, depth int, out *SVO) (present, leaf bool, idx uint32) {
	return b.build(c, region, depth, out)
}

// fillBrick turns a Full or depth-exhausted Mixed region into a brick: a
// Full region is filled with the classifier's voxel, otherwise the evaluator
// is sampled at each of the brick's 8 voxel centers. Regions classified
// Empty never reach it: build drops them without sampling, so non-empty
// voxels inside a region reported as Empty are not built.
func (b *Builder) fillBrick(c Classifier, region AABB, hint Hint, fillVoxel Voxel) *Brick {
	brick := &Brick{}
	if hint == Full {
		for i := range brick.Voxels {
			brick.Voxels[i] = fillVoxel
		}
		return brick
	}
	size := regionSize(region)
	step := size / 2
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				pos := [3]float32{
					region.Min[0] + (float32(x)+0.5)*step,
					region.Min[1] + (float32(y)+0.5)*step,
					region.Min[2] + (float32(z)+0.5)*step,
				}
				brick.Set(x, y, z, c.Evaluate(pos))
			}
		}
	}
	return brick
}

func regionSize(r AABB) float32 { return r.Max[0] - r.Min[0] }

func add3(v [3]float32, s float32) [3]float32 {
	return [3]float32{v[0] + s, v[1] + s, v[2] + s}
}

// appendBricksByIndex copies bricks already appended to out.Bricks (at the
// given indices, built out of order by recursion) into a fresh contiguous
// run at the end of out.Bricks, and returns the run's base offset. The
// already-appended entries are left in place (harmless dead storage keyed
// only by their original index, never referenced again) since bricks are
// cheap value copies and this keeps the builder allocation-simple.
func appendBricksByIndex(out *SVO, indices []uint32) uint32 {
	base := uint32(len(out.Bricks))
	for _, idx := range indices {
		out.Bricks = append(out.Bricks, out.Bricks[idx])
	}
	return base
}

// relocateNodesByIndex is the node-array analog of appendBricksByIndex.
func relocateNodesByIndex(out *SVO, indices []uint32) uint32 {
	base := uint32(len(out.Nodes))
	for _, idx := range indices {
		out.Nodes = append(out.Nodes, out.Nodes[idx])
	}
	return base
}
