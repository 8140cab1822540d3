package placement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// Kind classifies a placed instance.
type Kind uint8

const (
	KindTree Kind = iota
	KindStructure
	KindLandmark
	KindCloud
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindStructure:
		return "structure"
	case KindLandmark:
		return "landmark"
	case KindCloud:
		return "cloud"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Instance is one decorative or structural object. Y is the base height for
// trees and structures and the float altitude for landmarks and clouds.
// Clouds belong to the chunk rather than an island and carry Island -1.
type Instance struct {
	Kind     Kind
	X, Y, Z  float64
	Scale    float64
	Rotation float64
	Variant  int
	Island   int
}

type entry struct {
	instances []Instance
	opacity   float64
}

// Registry tracks the instances placed on each chunk. It replaces global
// lists so several managers can coexist, and it is the enumeration point for
// consumers such as a minimap.
type Registry struct {
	mu     sync.RWMutex
	chunks map[grid.ChunkCoord]*entry
}

func NewRegistry() *Registry {
	return &Registry{chunks: make(map[grid.ChunkCoord]*entry)}
}

// Put stores a copy of instances for coord, replacing earlier content.
func (r *Registry) Put(coord grid.ChunkCoord, instances []Instance) {
	r.mu.Lock()
	r.chunks[coord] = &entry{instances: append([]Instance(nil), instances...)}
	r.mu.Unlock()
}

// Drop forgets everything placed on coord.
func (r *Registry) Drop(coord grid.ChunkCoord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[coord]; !ok {
		return false
	}
	delete(r.chunks, coord)
	return true
}

func (r *Registry) Chunk(coord grid.ChunkCoord) ([]Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.chunks[coord]
	if !ok {
		return nil, false
	}
	return append([]Instance(nil), e.instances...), true
}

// All returns every instance, grouped by chunk in (X, Z) order.
func (r *Registry) All() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	coords := make([]grid.ChunkCoord, 0, len(r.chunks))
	for c := range r.chunks {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X == coords[j].X {
			return coords[i].Z < coords[j].Z
		}
		return coords[i].X < coords[j].X
	})
	var out []Instance
	for _, c := range coords {
		out = append(out, r.chunks[c].instances...)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.chunks {
		n += len(e.instances)
	}
	return n
}

func (r *Registry) CountKind(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.chunks {
		for _, in := range e.instances {
			if in.Kind == kind {
				n++
			}
		}
	}
	return n
}

// Landmarks lists landmark instances across all chunks.
func (r *Registry) Landmarks() []Instance { return r.ofKind(KindLandmark) }

// Clouds lists the cloud layer of every resident chunk.
func (r *Registry) Clouds() []Instance { return r.ofKind(KindCloud) }

func (r *Registry) ofKind(kind Kind) []Instance {
	var out []Instance
	for _, in := range r.All() {
		if in.Kind == kind {
			out = append(out, in)
		}
	}
	return out
}

func (r *Registry) Opacity(coord grid.ChunkCoord) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.chunks[coord]
	if !ok {
		return 0, false
	}
	return e.opacity, true
}

func (r *Registry) setOpacity(coord grid.ChunkCoord, alpha float64) {
	r.mu.Lock()
	if e, ok := r.chunks[coord]; ok {
		e.opacity = alpha
	}
	r.mu.Unlock()
}
