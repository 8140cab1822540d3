package placement

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

type heightFunc func(x, z float64) float64

func (f heightFunc) Query(x, z float64) float64 { return f(x, z) }

func flat(h float64) heightFunc {
	return func(float64, float64) float64 { return h }
}

type failingAssets struct {
	kind Kind
	err  error
}

func (f failingAssets) Fetch(_ context.Context, kind Kind) error {
	if kind == f.kind {
		return f.err
	}
	return nil
}

func testPlacementConfig() config.PlacementConfig {
	return config.PlacementConfig{
		Enabled:                true,
		LandmarkChance:         0,
		LandmarkAltitude:       120,
		MaxTreesPerIsland:      60,
		MaxStructuresPerIsland: 24,
	}
}

func forestIsland() terrain.Island {
	return terrain.Island{CenterX: 1000, CenterZ: 1000, Radius: 300, Biome: terrain.Forest, TreeCount: 40, StructureCount: 10}
}

func decoration(heights world.HeightQuery, islands ...terrain.Island) world.Decoration {
	return world.Decoration{
		Coord:               grid.ChunkCoord{},
		Seed:                0xfeedface,
		LOD:                 terrain.LODNear,
		PlacementMultiplier: 1,
		Islands:             islands,
		Heights:             heights,
	}
}

func TestDecorateIsDeterministic(t *testing.T) {
	d := decoration(flat(10), forestIsland(), terrain.Island{CenterX: 400, CenterZ: 1500, Radius: 200, Biome: terrain.Village, StructureCount: 12})

	first := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := first.Decorate(context.Background(), d)
	require.NoError(t, err)
	second := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err = second.Decorate(context.Background(), d)
	require.NoError(t, err)

	a, ok := first.Registry().Chunk(d.Coord)
	require.True(t, ok)
	b, _ := second.Registry().Chunk(d.Coord)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestDecorateOnlyUsesDryResidentGround(t *testing.T) {
	heights := heightFunc(func(x, z float64) float64 {
		switch {
		case x < 1000:
			return world.HeightUnknown
		case z < 1000:
			return -2
		}
		return 10
	})
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), decoration(heights, forestIsland()))
	require.NoError(t, err)

	instances, _ := s.Registry().Chunk(grid.ChunkCoord{})
	require.NotEmpty(t, instances)
	for _, in := range instances {
		assert.GreaterOrEqual(t, in.X, 1000.0)
		assert.GreaterOrEqual(t, in.Z, 1000.0)
		assert.Equal(t, 10.0, in.Y)
	}
}

func TestDecorateRejectsSteepGround(t *testing.T) {
	cliff := heightFunc(func(x, _ float64) float64 { return 5 + 3*x })
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), decoration(cliff, forestIsland()))
	require.NoError(t, err)
	assert.Zero(t, s.Registry().Count())
}

func TestDecorateAppliesMultiplierAndCaps(t *testing.T) {
	is := forestIsland()
	is.TreeCount = 400
	is.Radius = 380

	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), decoration(flat(10), is))
	require.NoError(t, err)
	assert.LessOrEqual(t, s.Registry().CountKind(KindTree), 60)

	sparse := decoration(flat(10), is)
	sparse.PlacementMultiplier = 0.05
	s = NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err = s.Decorate(context.Background(), sparse)
	require.NoError(t, err)
	assert.LessOrEqual(t, s.Registry().CountKind(KindTree), 20)
	assert.LessOrEqual(t, s.Registry().CountKind(KindStructure), 1)
}

func TestDecorateKeepsInstancesApart(t *testing.T) {
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), decoration(flat(10), forestIsland()))
	require.NoError(t, err)

	instances := s.Registry().All()
	for i := range instances {
		for j := i + 1; j < len(instances); j++ {
			d := math.Hypot(instances[i].X-instances[j].X, instances[i].Z-instances[j].Z)
			assert.GreaterOrEqual(t, d, treeSpacing, "instances %d and %d overlap", i, j)
		}
	}
}

func TestSettlementStructuresCluster(t *testing.T) {
	village := terrain.Island{CenterX: 1000, CenterZ: 1000, Radius: 350, Biome: terrain.Village, StructureCount: 24}
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), decoration(flat(6), village))
	require.NoError(t, err)

	require.Positive(t, s.Registry().CountKind(KindStructure))
	limit := village.Radius * (clusterReach + clusterSpread)
	for _, in := range s.Registry().All() {
		if in.Kind != KindStructure {
			continue
		}
		assert.LessOrEqual(t, math.Hypot(in.X-village.CenterX, in.Z-village.CenterZ), limit+1e-9)
	}
}

func TestLandmarksFloatAboveIslands(t *testing.T) {
	cfg := testPlacementConfig()
	cfg.LandmarkChance = 1
	s := NewScatterer(cfg, nil, nil, nil, nil)
	islands := []terrain.Island{forestIsland(), {CenterX: 300, CenterZ: 300, Radius: 150, Biome: terrain.Desert}}
	_, err := s.Decorate(context.Background(), decoration(flat(12), islands...))
	require.NoError(t, err)

	landmarks := s.Registry().Landmarks()
	require.Len(t, landmarks, 2)
	for i, lm := range landmarks {
		assert.Equal(t, islands[lm.Island].CenterX, lm.X, "landmark %d", i)
		assert.Equal(t, 12+cfg.LandmarkAltitude, lm.Y)
	}
}

func cloudyConfig() config.PlacementConfig {
	cfg := testPlacementConfig()
	cfg.CloudsPerChunk = 15
	cfg.CloudMinAltitude = 200
	cfg.CloudMaxAltitude = 1000
	return cfg
}

func TestCloudLayerFillsFootprint(t *testing.T) {
	coord := grid.ChunkCoord{X: 1, Z: -2}
	d := decoration(flat(world.HeightUnknown))
	d.Coord = coord
	d.Footprint = grid.FootprintOf(coord, 2000)

	s := NewScatterer(cloudyConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), d)
	require.NoError(t, err)

	clouds := s.Registry().Clouds()
	require.Len(t, clouds, 15)
	assert.Equal(t, 15, s.Registry().Count())
	for i, c := range clouds {
		assert.True(t, d.Footprint.Contains(c.X, c.Z), "cloud %d at (%v,%v) outside chunk", i, c.X, c.Z)
		assert.GreaterOrEqual(t, c.Y, 200.0)
		assert.Less(t, c.Y, 1000.0)
		assert.GreaterOrEqual(t, c.Scale, cloudSizeMin)
		assert.Less(t, c.Scale, cloudSizeMax)
		assert.Less(t, c.Variant, cloudTypes)
		assert.Equal(t, -1, c.Island)
		assert.Equal(t, "cloud", c.Kind.String())
	}

	again := NewScatterer(cloudyConfig(), nil, nil, nil, nil)
	_, err = again.Decorate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, clouds, again.Registry().Clouds())

	other := d
	other.Seed++
	shifted := NewScatterer(cloudyConfig(), nil, nil, nil, nil)
	_, err = shifted.Decorate(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, clouds, shifted.Registry().Clouds())
}

func TestCloudLayerDisabledWithoutCount(t *testing.T) {
	d := decoration(flat(10), forestIsland())
	d.Footprint = grid.FootprintOf(d.Coord, 2000)
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	_, err := s.Decorate(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, s.Registry().CountKind(KindCloud))
	assert.Positive(t, s.Registry().CountKind(KindTree))
}

func TestAssetFailureLeavesNoInstances(t *testing.T) {
	boom := errors.New("model download failed")
	s := NewScatterer(testPlacementConfig(), nil, nil, failingAssets{kind: KindTree, err: boom}, nil)
	res, err := s.Decorate(context.Background(), decoration(flat(10), forestIsland()))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.EqualError(t, err, "fetch tree assets: model download failed")
	_, ok := s.Registry().Chunk(grid.ChunkCoord{})
	assert.False(t, ok)
}

func TestDisabledScattererPlacesNothing(t *testing.T) {
	cfg := testPlacementConfig()
	cfg.Enabled = false
	s := NewScatterer(cfg, nil, nil, nil, nil)
	res, err := s.Decorate(context.Background(), decoration(flat(10), forestIsland()))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, s.Registry().Count())
}

func TestResourceReleaseDropsChunk(t *testing.T) {
	s := NewScatterer(testPlacementConfig(), nil, nil, nil, nil)
	res, err := s.Decorate(context.Background(), decoration(flat(10), forestIsland()))
	require.NoError(t, err)

	res.SetOpacity(0.25)
	alpha, ok := s.Registry().Opacity(grid.ChunkCoord{})
	require.True(t, ok)
	assert.Equal(t, 0.25, alpha)

	res.Release()
	_, ok = s.Registry().Chunk(grid.ChunkCoord{})
	assert.False(t, ok)
	assert.Zero(t, s.Registry().Count())
}

func TestScattererFollowsChunkLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Terrain.Workers = 1
	cfg.LOD.Tiers[0].Resolution = 24
	cfg.Stream.RenderDistance = 0
	cfg.Stream.PreloadDistance = 0
	cfg.Stream.InterLoadDelay = 0
	cfg.Stream.FadeDuration = 0

	raster, err := terrain.NewRasterizer(cfg, nil)
	require.NoError(t, err)
	scatter := NewScatterer(cfg.Placement, raster.Palette(), nil, nil, nil)
	m, err := world.NewManager(cfg.Stream, world.Options{
		Generator: raster,
		LODs:      raster.LODs(),
		Decorator: scatter,
	})
	require.NoError(t, err)

	home := world.Viewpoint{X: 1000, Y: 100, Z: 1000}
	away := world.Viewpoint{X: 21000, Y: 100, Z: 1000}
	now := time.Unix(0, 0)

	m.Tick(context.Background(), now, home)
	before, ok := scatter.Registry().Chunk(grid.ChunkCoord{})
	require.True(t, ok, "placement content missing for resident chunk")
	homeFootprint := grid.FootprintOf(grid.ChunkCoord{}, cfg.Stream.ChunkSize)
	require.Len(t, scatter.Registry().Clouds(), cfg.Placement.CloudsPerChunk)
	info, _ := m.Chunk(grid.ChunkCoord{})
	assert.True(t, info.Decorated)

	m.Tick(context.Background(), now.Add(time.Second), away)
	_, ok = scatter.Registry().Chunk(grid.ChunkCoord{})
	assert.False(t, ok, "placement content survived eviction")
	for _, c := range scatter.Registry().Clouds() {
		assert.False(t, homeFootprint.Contains(c.X, c.Z), "cloud of evicted chunk still registered")
	}

	m.Tick(context.Background(), now.Add(2*time.Second), home)
	after, ok := scatter.Registry().Chunk(grid.ChunkCoord{})
	require.True(t, ok)
	assert.Equal(t, before, after)
}
