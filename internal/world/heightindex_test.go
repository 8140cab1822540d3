package world

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
)

func gridSamples(coord grid.ChunkCoord, size float64, res int, height func(x, z float64) float64) []terrain.HeightSample {
	fp := grid.FootprintOf(coord, size)
	samples := make([]terrain.HeightSample, 0, (res+1)*(res+1))
	for iz := 0; iz <= res; iz++ {
		for ix := 0; ix <= res; ix++ {
			x := fp.MinX + float64(ix)*size/float64(res)
			z := fp.MinZ + float64(iz)*size/float64(res)
			samples = append(samples, terrain.HeightSample{X: x, Z: z, Height: height(x, z)})
		}
	}
	return samples
}

func TestHeightIndexNearestSample(t *testing.T) {
	idx := NewHeightIndex(100)
	idx.Insert(grid.ChunkCoord{}, gridSamples(grid.ChunkCoord{}, 100, 4, func(x, z float64) float64 { return x + 1000*z }))

	h, err := idx.Height(26, 49)
	require.NoError(t, err)
	assert.Equal(t, 25+1000*50.0, h)

	assert.Equal(t, 0.0, idx.Query(0, 0))
	assert.Equal(t, 75+1000*100.0, idx.Query(74, 99.9))
}

func TestHeightIndexUnknownOutsideResidentChunks(t *testing.T) {
	idx := NewHeightIndex(100)
	idx.Insert(grid.ChunkCoord{}, gridSamples(grid.ChunkCoord{}, 100, 2, func(float64, float64) float64 { return 4 }))

	_, err := idx.Height(-0.5, 10)
	require.ErrorIs(t, err, ErrNotResident)
	assert.Equal(t, HeightUnknown, idx.Query(-0.5, 10))
	assert.True(t, math.IsInf(idx.Query(150, 50), -1))
}

func TestHeightIndexQueriesIgnoreNeighbourChunks(t *testing.T) {
	idx := NewHeightIndex(100)
	home := grid.ChunkCoord{}
	idx.Insert(home, gridSamples(home, 100, 4, func(float64, float64) float64 { return 10 }))

	probe := func() []float64 {
		var out []float64
		for x := 0.5; x < 100; x += 7 {
			for z := 0.5; z < 100; z += 7 {
				out = append(out, idx.Query(x, z))
			}
		}
		return out
	}
	before := probe()

	// A neighbour sample sitting closer to the probe points than any home
	// sample must not change the answers.
	for _, c := range []grid.ChunkCoord{{X: 1}, {X: -1}, {Z: 1}, {X: 1, Z: 1}} {
		idx.Insert(c, gridSamples(c, 100, 8, func(float64, float64) float64 { return 99 }))
	}
	assert.Equal(t, before, probe())

	assert.True(t, idx.Remove(grid.ChunkCoord{X: 1}))
	assert.False(t, idx.Remove(grid.ChunkCoord{X: 7}))
	assert.Equal(t, before, probe())
	assert.Equal(t, []grid.ChunkCoord{{X: -1, Z: 0}, {X: 0, Z: 0}, {X: 0, Z: 1}, {X: 1, Z: 1}}, idx.Coords())
}

func TestHeightIndexMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	coord := grid.ChunkCoord{X: -3, Z: 2}
	fp := grid.FootprintOf(coord, 500)
	samples := make([]terrain.HeightSample, 300)
	for i := range samples {
		samples[i] = terrain.HeightSample{
			X:      fp.MinX + rng.Float64()*500,
			Z:      fp.MinZ + rng.Float64()*500,
			Height: float64(i),
		}
	}
	idx := NewHeightIndex(500)
	idx.Insert(coord, samples)

	for i := 0; i < 500; i++ {
		x := fp.MinX + rng.Float64()*500
		z := fp.MinZ + rng.Float64()*500

		best := math.Inf(1)
		for _, s := range samples {
			best = math.Min(best, math.Hypot(s.X-x, s.Z-z))
		}
		h, err := idx.Height(x, z)
		require.NoError(t, err)
		got := samples[int(h)]
		assert.InDelta(t, best, math.Hypot(got.X-x, got.Z-z), 1e-9, "query (%v,%v)", x, z)
	}
}

func TestHeightIndexInsertCopiesAndReplaces(t *testing.T) {
	idx := NewHeightIndex(100)
	samples := gridSamples(grid.ChunkCoord{}, 100, 2, func(float64, float64) float64 { return 1 })
	idx.Insert(grid.ChunkCoord{}, samples)
	samples[0].Height = 500
	assert.Equal(t, 1.0, idx.Query(1, 1))

	idx.Insert(grid.ChunkCoord{}, gridSamples(grid.ChunkCoord{}, 100, 2, func(float64, float64) float64 { return 2 }))
	assert.Equal(t, 2.0, idx.Query(1, 1))
	assert.Equal(t, 1, idx.Len())
}

func TestHeightIndexEmptyChunk(t *testing.T) {
	idx := NewHeightIndex(100)
	idx.Insert(grid.ChunkCoord{}, nil)
	assert.True(t, idx.Has(grid.ChunkCoord{}))
	_, err := idx.Height(5, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotResident)
}
