// Package grid maps world positions onto the fixed, axis-aligned chunk grid.
package grid

import (
	"fmt"
	"math"
)

// ChunkCoord identifies a chunk in chunk space. Chunk (0,0) covers world
// positions [0,size) on both axes.
type ChunkCoord struct {
	X int
	Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Add offsets the coordinate by whole chunks.
func (c ChunkCoord) Add(dx, dz int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Z: c.Z + dz}
}

// Footprint is the half-open world rectangle [MinX,MaxX) x [MinZ,MaxZ)
// covered by a chunk.
type Footprint struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
}

func (f Footprint) Contains(x, z float64) bool {
	return x >= f.MinX && x < f.MaxX && z >= f.MinZ && z < f.MaxZ
}

func (f Footprint) Center() (x, z float64) {
	return (f.MinX + f.MaxX) / 2, (f.MinZ + f.MaxZ) / 2
}

// FootprintOf returns the world rectangle of coord for the given chunk size.
func FootprintOf(coord ChunkCoord, size float64) Footprint {
	minX := float64(coord.X) * size
	minZ := float64(coord.Z) * size
	return Footprint{MinX: minX, MinZ: minZ, MaxX: minX + size, MaxZ: minZ + size}
}

// ChunkOf locates the chunk owning world position (x,z).
func ChunkOf(x, z, size float64) ChunkCoord {
	if size <= 0 {
		return ChunkCoord{}
	}
	return ChunkCoord{
		X: int(math.Floor(x / size)),
		Z: int(math.Floor(z / size)),
	}
}

// Metric measures distances between chunks in chunk units.
type Metric int

const (
	Chebyshev Metric = iota
	Euclidean
)

func ParseMetric(name string) (Metric, error) {
	switch name {
	case "chebyshev", "":
		return Chebyshev, nil
	case "euclidean":
		return Euclidean, nil
	}
	return Chebyshev, fmt.Errorf("unknown distance metric %q", name)
}

func (m Metric) String() string {
	if m == Euclidean {
		return "euclidean"
	}
	return "chebyshev"
}

// Between measures the distance between two chunk coordinates.
func (m Metric) Between(a, b ChunkCoord) float64 {
	return m.Offset(float64(b.X-a.X), float64(b.Z-a.Z))
}

// Offset measures a displacement expressed in chunk units.
func (m Metric) Offset(dx, dz float64) float64 {
	if m == Euclidean {
		return math.Hypot(dx, dz)
	}
	return math.Max(math.Abs(dx), math.Abs(dz))
}

// Ring enumerates every coordinate within radius of center under metric m,
// in row-major order.
func (m Metric) Ring(center ChunkCoord, radius int) []ChunkCoord {
	if radius < 0 {
		return nil
	}
	side := 2*radius + 1
	out := make([]ChunkCoord, 0, side*side)
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			if m.Offset(float64(dx), float64(dz)) > float64(radius) {
				continue
			}
			out = append(out, center.Add(dx, dz))
		}
	}
	return out
}
