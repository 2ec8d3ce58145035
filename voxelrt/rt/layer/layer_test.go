package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCompositorHasSixLayers(t *testing.T) {
	c := NewCompositorWithDefaults()
	assert.Equal(t, 6, c.LayerCount())
}

func TestTerrainBudgetShare(t *testing.T) {
	c := NewCompositorWithDefaults()
	assert.Equal(t, uint64(350), c.StreamingBudgetForLayer(0, 1000))
}

func TestRenderOrderSortsByModeThenPriority(t *testing.T) {
	c := NewCompositor()
	c.AddLayer(Config{ID: 1, Mode: Transparent, Priority: 0, Enabled: true})
	c.AddLayer(Config{ID: 2, Mode: Opaque, Priority: 5, Enabled: true})
	c.AddLayer(Config{ID: 3, Mode: Opaque, Priority: 1, Enabled: true})
	c.AddLayer(Config{ID: 4, Mode: Volumetric, Priority: 0, Enabled: true})

	order := c.RenderOrder()
	assert.Equal(t, []ID{3, 2, 1, 4}, order)
}

func TestDisabledLayersExcludedFromRenderOrder(t *testing.T) {
	c := NewCompositor()
	c.AddLayer(Config{ID: 1, Mode: Opaque, Enabled: false})
	c.AddLayer(Config{ID: 2, Mode: Opaque, Enabled: true})
	assert.Equal(t, []ID{2}, c.RenderOrder())
}
