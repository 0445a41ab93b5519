package monitor

import (
	"sort"
	"sync"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
)

type LayerID uint64

type LayerKind string

const (
	KindLine    LayerKind = "line"
	KindTooltip LayerKind = "tooltip"
)

// Layer is one drawn artifact. A line has two points; a tooltip has one.
type Layer struct {
	ID     LayerID            `json:"id"`
	Kind   LayerKind          `json:"kind"`
	LiftID string             `json:"liftId"`
	Points []model.Coordinate `json:"points"`
	Color  Color              `json:"color,omitempty"`
	Weight int                `json:"weight,omitempty"`
	Label  string             `json:"label,omitempty"`
}

// Editor mutates a canvas inside a batch.
type Editor interface {
	Add(l Layer) LayerID
	Remove(id LayerID)
}

// Canvas is the render surface. All edits in one Batch become visible together.
type Canvas interface {
	Batch(fn func(Editor))
}

// MemoryCanvas keeps the rendered layers in memory for the map feed.
type MemoryCanvas struct {
	mu      sync.RWMutex
	next    LayerID
	version uint64
	layers  map[LayerID]Layer
}

var _ Canvas = (*MemoryCanvas)(nil)

func NewMemoryCanvas() *MemoryCanvas {
	return &MemoryCanvas{layers: make(map[LayerID]Layer)}
}

type memoryEditor struct{ c *MemoryCanvas }

func (e memoryEditor) Add(l Layer) LayerID {
	e.c.next++
	l.ID = e.c.next
	e.c.layers[l.ID] = l
	return l.ID
}

func (e memoryEditor) Remove(id LayerID) { delete(e.c.layers, id) }

func (c *MemoryCanvas) Batch(fn func(Editor)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(memoryEditor{c})
	c.version++
}

// Version increases once per batch.
func (c *MemoryCanvas) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns the layers ordered by id, together with the version they belong to.
func (c *MemoryCanvas) Snapshot() ([]Layer, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Layer, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, c.version
}

func (c *MemoryCanvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}
