package world

import (
	"fmt"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
)

// State is a chunk's position in its lifecycle.
type State uint8

const (
	StateQueued State = iota
	StateGenerating
	StateFadingIn
	StateResident
	StateFadingOut
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateGenerating:
		return "generating"
	case StateFadingIn:
		return "fading-in"
	case StateResident:
		return "resident"
	case StateFadingOut:
		return "fading-out"
	case StateEvicted:
		return "evicted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// loaded reports whether the chunk has samples in the height index.
func (s State) loaded() bool {
	return s == StateFadingIn || s == StateResident || s == StateFadingOut
}

// Resource is a render or placement handle owned by exactly one chunk.
type Resource interface {
	SetOpacity(alpha float64)
	Release()
}

// Renderer builds the terrain resource of a rasterized tile.
type Renderer interface {
	BuildTerrain(tile *terrain.Tile) (Resource, error)
}

type nopRenderer struct{}

func (nopRenderer) BuildTerrain(*terrain.Tile) (Resource, error) { return nopResource{}, nil }

type nopResource struct{}

func (nopResource) SetOpacity(float64) {}
func (nopResource) Release()           {}

// Chunk is the manager's record for one coordinate. It is only touched with
// the manager lock held.
type Chunk struct {
	coord grid.ChunkCoord
	seed  uint64
	state State
	// lod is picked from the viewpoint distance at generation time and never
	// re-evaluated, even as the viewpoint moves closer.
	lod       terrain.LOD
	islands   []terrain.Island
	resources []Resource
	opacity   float64

	fadeStart   time.Time
	fadeFrom    float64
	outOfRange  int
	decorated   bool
	generatedAt time.Time
}

// ChunkInfo is a read-only snapshot of a chunk.
type ChunkInfo struct {
	Coord     grid.ChunkCoord
	Seed      uint64
	State     State
	LOD       terrain.LOD
	Islands   []terrain.Island
	Opacity   float64
	Decorated bool
}

func (c *Chunk) info() ChunkInfo {
	return ChunkInfo{
		Coord:     c.coord,
		Seed:      c.seed,
		State:     c.state,
		LOD:       c.lod,
		Islands:   append([]terrain.Island(nil), c.islands...),
		Opacity:   c.opacity,
		Decorated: c.decorated,
	}
}

func (c *Chunk) setOpacity(alpha float64) {
	c.opacity = alpha
	for _, r := range c.resources {
		r.SetOpacity(alpha)
	}
}

func (c *Chunk) release() {
	for _, r := range c.resources {
		r.Release()
	}
	c.resources = nil
	c.state = StateEvicted
}
