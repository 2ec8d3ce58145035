// Package layer implements multi-layer world composition: render mode,
// update frequency, streaming budget share, and the render-order sort that
// the GPU uploader and the ray-march shader both rely on.
package layer

import "sort"

// ID numerically identifies a layer.
type ID uint32

// RenderMode is a closed sum of how a layer's geometry is composited.
type RenderMode int

const (
	Opaque RenderMode = iota
	AlphaTest
	Transparent
	Volumetric
)

// order gives RenderMode its sort precedence in the render order:
// opaque first, then alpha-test, then transparent, then volumetric.
func (m RenderMode) order() int { return int(m) }

// UpdateFrequency classifies how often a layer's content changes.
type UpdateFrequency int

const (
	Static UpdateFrequency = iota
	Dynamic
	PerFrame
)

// Config describes one layer.
type Config struct {
	ID              ID
	Name            string
	Mode            RenderMode
	AlphaThreshold  float32 // only meaningful when Mode == AlphaTest
	UpdateFrequency UpdateFrequency
	Priority        int
	BudgetFraction  float32 // fraction of the total streaming budget, [0,1]
	Enabled         bool
}

// DefaultLayers returns the six default layers named in the data model:
// terrain, static objects, dynamic objects, ground clutter, water, effects.
func DefaultLayers() []Config {
	return []Config{
		{ID: 0, Name: "terrain", Mode: Opaque, UpdateFrequency: Static, Priority: 0, BudgetFraction: 0.35, Enabled: true},
		{ID: 1, Name: "static_objects", Mode: Opaque, UpdateFrequency: Static, Priority: 10, BudgetFraction: 0.20, Enabled: true},
		{ID: 2, Name: "dynamic_objects", Mode: Opaque, UpdateFrequency: Dynamic, Priority: 20, BudgetFraction: 0.15, Enabled: true},
		{ID: 3, Name: "ground_clutter", Mode: AlphaTest, AlphaThreshold: 0.5, UpdateFrequency: Static, Priority: 30, BudgetFraction: 0.10, Enabled: true},
		{ID: 4, Name: "water", Mode: Transparent, UpdateFrequency: Dynamic, Priority: 40, BudgetFraction: 0.10, Enabled: true},
		{ID: 5, Name: "effects", Mode: Volumetric, UpdateFrequency: PerFrame, Priority: 50, BudgetFraction: 0.10, Enabled: true},
	}
}

// Compositor owns the set of layers and derives a fixed per-frame render
// order from them.
type Compositor struct {
	layers      map[ID]Config
	renderOrder []ID
}

func NewCompositor() *Compositor {
	return &Compositor{layers: make(map[ID]Config)}
}

// NewCompositorWithDefaults builds a Compositor seeded with DefaultLayers.
func NewCompositorWithDefaults() *Compositor {
	c := NewCompositor()
	for _, l := range DefaultLayers() {
		c.AddLayer(l)
	}
	return c
}

func (c *Compositor) AddLayer(cfg Config) {
	c.layers[cfg.ID] = cfg
	c.rebuildRenderOrder()
}

func (c *Compositor) RemoveLayer(id ID) {
	delete(c.layers, id)
	c.rebuildRenderOrder()
}

func (c *Compositor) Layer(id ID) (Config, bool) {
	l, ok := c.layers[id]
	return l, ok
}

func (c *Compositor) LayerCount() int { return len(c.layers) }

// rebuildRenderOrder sorts enabled layers by (render-mode category,
// priority), matching the ray-march shader's expected draw order.
func (c *Compositor) rebuildRenderOrder() {
	ids := make([]ID, 0, len(c.layers))
	for id, l := range c.layers {
		if l.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := c.layers[ids[i]], c.layers[ids[j]]
		if a.Mode.order() != b.Mode.order() {
			return a.Mode.order() < b.Mode.order()
		}
		return a.Priority < b.Priority
	})
	c.renderOrder = ids
}

// RenderOrder returns the fixed per-frame render order of enabled layers.
func (c *Compositor) RenderOrder() []ID {
	return append([]ID(nil), c.renderOrder...)
}

func (c *Compositor) filterBy(pred func(Config) bool) []ID {
	out := make([]ID, 0)
	for _, id := range c.renderOrder {
		if pred(c.layers[id]) {
			out = append(out, id)
		}
	}
	return out
}

func (c *Compositor) OpaqueLayers() []ID {
	return c.filterBy(func(l Config) bool { return l.Mode == Opaque })
}

func (c *Compositor) TransparentLayers() []ID {
	return c.filterBy(func(l Config) bool { return l.Mode == Transparent || l.Mode == AlphaTest })
}

func (c *Compositor) VolumetricLayers() []ID {
	return c.filterBy(func(l Config) bool { return l.Mode == Volumetric })
}

func (c *Compositor) PerFrameLayers() []ID {
	return c.filterBy(func(l Config) bool { return l.UpdateFrequency == PerFrame })
}

// StreamingBudgetForLayer computes this layer's share of totalBudgetBytes.
func (c *Compositor) StreamingBudgetForLayer(id ID, totalBudgetBytes uint64) uint64 {
	l, ok := c.layers[id]
	if !ok {
		return 0
	}
	return uint64(float32(totalBudgetBytes) * l.BudgetFraction)
}
