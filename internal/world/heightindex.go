package world

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
)

// HeightIndex maps chunk coordinates to the height samples rasterized for
// them. A query is routed to the chunk whose footprint contains the point and
// answered from that chunk's samples alone.
type HeightIndex struct {
	chunkSize float64

	mu     sync.RWMutex
	chunks map[grid.ChunkCoord]*sampleSet
}

func NewHeightIndex(chunkSize float64) *HeightIndex {
	return &HeightIndex{
		chunkSize: chunkSize,
		chunks:    make(map[grid.ChunkCoord]*sampleSet),
	}
}

// Insert stores a copy of samples for coord, replacing any previous entry.
func (idx *HeightIndex) Insert(coord grid.ChunkCoord, samples []terrain.HeightSample) {
	set := newSampleSet(grid.FootprintOf(coord, idx.chunkSize), samples)
	idx.mu.Lock()
	idx.chunks[coord] = set
	idx.mu.Unlock()
}

// Remove drops coord from the index and reports whether it was present.
func (idx *HeightIndex) Remove(coord grid.ChunkCoord) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.chunks[coord]; !ok {
		return false
	}
	delete(idx.chunks, coord)
	return true
}

func (idx *HeightIndex) Has(coord grid.ChunkCoord) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.chunks[coord]
	return ok
}

func (idx *HeightIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Coords lists indexed chunks in (X, Z) order.
func (idx *HeightIndex) Coords() []grid.ChunkCoord {
	idx.mu.RLock()
	coords := make([]grid.ChunkCoord, 0, len(idx.chunks))
	for c := range idx.chunks {
		coords = append(coords, c)
	}
	idx.mu.RUnlock()
	sortCoords(coords)
	return coords
}

// Height returns the nearest sample height in the chunk owning (x,z), or
// ErrNotResident.
func (idx *HeightIndex) Height(x, z float64) (float64, error) {
	coord := grid.ChunkOf(x, z, idx.chunkSize)
	idx.mu.RLock()
	set, ok := idx.chunks[coord]
	idx.mu.RUnlock()
	if !ok {
		return HeightUnknown, fmt.Errorf("height at (%.1f,%.1f): %w: %v", x, z, ErrNotResident, coord)
	}
	s, ok := set.nearest(x, z)
	if !ok {
		return HeightUnknown, fmt.Errorf("height at (%.1f,%.1f): chunk %v has no samples", x, z, coord)
	}
	return s.Height, nil
}

// Query is Height with the error folded into the HeightUnknown sentinel.
func (idx *HeightIndex) Query(x, z float64) float64 {
	h, err := idx.Height(x, z)
	if err != nil {
		return HeightUnknown
	}
	return h
}

// sampleSet buckets one chunk's samples on a uniform grid so nearest lookups
// only touch cells around the query point.
type sampleSet struct {
	minX, minZ float64
	cell       float64
	cols       int
	buckets    [][]terrain.HeightSample
	count      int
}

func newSampleSet(fp grid.Footprint, samples []terrain.HeightSample) *sampleSet {
	cols := int(math.Ceil(math.Sqrt(float64(len(samples)))))
	if cols < 1 {
		cols = 1
	}
	set := &sampleSet{
		minX:    fp.MinX,
		minZ:    fp.MinZ,
		cell:    (fp.MaxX - fp.MinX) / float64(cols),
		cols:    cols,
		buckets: make([][]terrain.HeightSample, cols*cols),
		count:   len(samples),
	}
	for _, s := range samples {
		bx, bz := set.bucketOf(s.X, s.Z)
		i := bz*cols + bx
		set.buckets[i] = append(set.buckets[i], s)
	}
	return set
}

func (s *sampleSet) bucketOf(x, z float64) (int, int) {
	bx := int(math.Floor((x - s.minX) / s.cell))
	bz := int(math.Floor((z - s.minZ) / s.cell))
	return clampInt(bx, 0, s.cols-1), clampInt(bz, 0, s.cols-1)
}

// nearest scans rings of buckets outward from the query cell. A sample in
// ring r+1 is at least r cells away, which bounds the search.
func (s *sampleSet) nearest(x, z float64) (terrain.HeightSample, bool) {
	if s.count == 0 {
		return terrain.HeightSample{}, false
	}
	bx, bz := s.bucketOf(x, z)
	best := terrain.HeightSample{}
	bestDist := math.Inf(1)
	found := false

	for r := 0; r <= s.cols; r++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if max(absInt(dx), absInt(dz)) != r {
					continue
				}
				cx, cz := bx+dx, bz+dz
				if cx < 0 || cz < 0 || cx >= s.cols || cz >= s.cols {
					continue
				}
				for _, sample := range s.buckets[cz*s.cols+cx] {
					d := (sample.X-x)*(sample.X-x) + (sample.Z-z)*(sample.Z-z)
					if d < bestDist {
						best, bestDist, found = sample, d, true
					}
				}
			}
		}
		if found && math.Sqrt(bestDist) <= float64(r)*s.cell {
			break
		}
	}
	return best, found
}

func sortCoords(coords []grid.ChunkCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X == coords[j].X {
			return coords[i].Z < coords[j].Z
		}
		return coords[i].X < coords[j].X
	})
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
