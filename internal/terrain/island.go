package terrain

import (
	"math"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// Mountain is a peak offset from its island's center.
type Mountain struct {
	OffsetX, OffsetZ float64
	Height           float64
}

// Island is an immutable landmass descriptor owned by one chunk.
type Island struct {
	CenterX, CenterZ float64
	Radius           float64
	Biome            Biome
	Mountains        []Mountain
	StructureCount   int
	TreeCount        int
	// SeedOffset decorrelates the angular deformation of islands that share
	// a noise table.
	SeedOffset float64
}

// Generator draws the islands of a chunk from its seed.
type Generator struct {
	cfg       config.TerrainConfig
	palette   *Palette
	chunkSize float64
}

func NewGenerator(cfg config.TerrainConfig, palette *Palette, chunkSize float64) *Generator {
	return &Generator{cfg: cfg, palette: palette, chunkSize: chunkSize}
}

// Generate is a pure function of (coord, seed).
func (g *Generator) Generate(coord grid.ChunkCoord, seed uint64) []Island {
	rng := NewRNG(seed)
	fp := grid.FootprintOf(coord, g.chunkSize)

	count := g.cfg.IslandsMin + rng.Intn(g.cfg.IslandsMax-g.cfg.IslandsMin+1)
	islands := make([]Island, 0, count)
	for i := 0; i < count; i++ {
		radius := rng.Range(g.cfg.RadiusMin, g.cfg.RadiusMax)
		// Keep the deformed coastline inside the footprint.
		margin := radius * (1 + g.cfg.DeformStrength + g.cfg.EdgeRoughness)
		if margin > g.chunkSize/2 {
			margin = g.chunkSize / 2
		}
		island := Island{
			CenterX:    fp.MinX + rng.Range(margin, g.chunkSize-margin),
			CenterZ:    fp.MinZ + rng.Range(margin, g.chunkSize-margin),
			Radius:     radius,
			SeedOffset: rng.Float64() * 1000,
		}

		spec := g.palette.At(rng.Intn(g.palette.Len()))
		island.Biome = spec.Biome

		if g.cfg.MaxMountains > 0 && rng.Float64() < g.cfg.MountainChance {
			n := 1 + rng.Intn(g.cfg.MaxMountains)
			island.Mountains = make([]Mountain, 0, n)
			for j := 0; j < n; j++ {
				angle := rng.Float64() * 2 * math.Pi
				dist := rng.Float64() * 0.4 * radius
				height := rng.Range(g.cfg.MountainHeightMin, g.cfg.MountainHeightMax)
				if spec.Biome == Volcanic {
					height *= 1.3
				}
				island.Mountains = append(island.Mountains, Mountain{
					OffsetX: math.Cos(angle) * dist,
					OffsetZ: math.Sin(angle) * dist,
					Height:  height,
				})
			}
		}

		scale := radius / 250
		island.StructureCount = int(math.Round(spec.StructureDensity * scale * rng.Range(0.75, 1.25)))
		island.TreeCount = int(math.Round(spec.TreeDensity * scale * rng.Range(0.75, 1.25)))

		islands = append(islands, island)
	}
	return islands
}
