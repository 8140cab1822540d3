package placement

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

const (
	treeSpacing      = 14.0
	structureSpacing = 22.0

	// maxSlope is the largest rise per unit run accepted under an instance.
	maxSlope   = 0.9
	slopeProbe = 10.0

	treeReach     = 0.85
	clusterReach  = 0.3
	clusterSpread = 0.35

	treeVariants      = 4
	structureVariants = 3
	attemptsPerItem   = 4

	// Cloud sizes span [cloudSizeMin, cloudSizeMax]; the largest sink by
	// cloudSink of the altitude band.
	cloudSizeMin = 20.0
	cloudSizeMax = 80.0
	cloudSink    = 0.3
	cloudTypes   = 4
	cloudSalt    = 0xc2b2ae3d27d4eb4f
)

// AssetSource resolves the models of a kind before they are placed. It
// stands in for network-dependent embellishments; an error aborts the
// decoration of the chunk.
type AssetSource interface {
	Fetch(ctx context.Context, kind Kind) error
}

// Scatterer places trees, structures and landmarks over freshly generated
// chunks. It implements world.Decorator.
type Scatterer struct {
	cfg      config.PlacementConfig
	palette  *terrain.Palette
	registry *Registry
	assets   AssetSource
	logger   *slog.Logger
}

func NewScatterer(cfg config.PlacementConfig, palette *terrain.Palette, registry *Registry, assets AssetSource, logger *slog.Logger) *Scatterer {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scatterer{cfg: cfg, palette: palette, registry: registry, assets: assets, logger: logger}
}

func (s *Scatterer) Registry() *Registry { return s.registry }

// Decorate scatters the chunk's content from its seed and the resident
// heights, then records it in the registry. Results depend only on the
// decoration inputs, so a reloaded chunk gets the same instances.
func (s *Scatterer) Decorate(ctx context.Context, d world.Decoration) (world.Resource, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	var instances []Instance
	for i, is := range d.Islands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := terrain.NewRNG(d.Seed ^ uint64(i+1)*0x5851f42d4c957f2d)
		instances = append(instances, s.scatterIsland(rng, i, is, d)...)
	}
	instances = append(instances, s.scatterClouds(d)...)

	if s.assets != nil {
		for _, kind := range kindsOf(instances) {
			if err := s.assets.Fetch(ctx, kind); err != nil {
				return nil, fmt.Errorf("fetch %s assets: %w", kind, err)
			}
		}
	}

	s.registry.Put(d.Coord, instances)
	s.logger.Debug("chunk decorated",
		"chunk", d.Coord.String(),
		"lod", d.LOD.String(),
		"instances", len(instances),
	)
	return &chunkResource{registry: s.registry, coord: d.Coord}, nil
}

func (s *Scatterer) scatterIsland(rng *terrain.RNG, idx int, is terrain.Island, d world.Decoration) []Instance {
	trees := capCount(is.TreeCount, d.PlacementMultiplier, s.cfg.MaxTreesPerIsland)
	structures := capCount(is.StructureCount, d.PlacementMultiplier, s.cfg.MaxStructuresPerIsland)

	var placed []Instance
	for n, attempts := 0, 0; n < trees && attempts < trees*attemptsPerItem; attempts++ {
		angle := rng.Range(0, 2*math.Pi)
		r := math.Sqrt(rng.Float64()) * is.Radius * treeReach
		x := is.CenterX + math.Cos(angle)*r
		z := is.CenterZ + math.Sin(angle)*r
		in, ok := s.ground(d.Heights, x, z)
		if !ok || !spaced(placed, x, z, treeSpacing) {
			continue
		}
		in.Kind = KindTree
		in.Scale = rng.Range(0.8, 1.4)
		in.Rotation = rng.Range(0, 2*math.Pi)
		in.Variant = rng.Intn(treeVariants)
		in.Island = idx
		placed = append(placed, in)
		n++
	}

	// Settlements cluster their structures around one point near the island
	// center; other biomes scatter them like trees.
	cx, cz, spread := is.CenterX, is.CenterZ, is.Radius*treeReach
	if s.settlement(is.Biome) {
		angle := rng.Range(0, 2*math.Pi)
		r := rng.Float64() * is.Radius * clusterReach
		cx += math.Cos(angle) * r
		cz += math.Sin(angle) * r
		spread = is.Radius * clusterSpread
	}
	for n, attempts := 0, 0; n < structures && attempts < structures*attemptsPerItem; attempts++ {
		angle := rng.Range(0, 2*math.Pi)
		r := math.Sqrt(rng.Float64()) * spread
		x := cx + math.Cos(angle)*r
		z := cz + math.Sin(angle)*r
		in, ok := s.ground(d.Heights, x, z)
		if !ok || !spaced(placed, x, z, structureSpacing) {
			continue
		}
		in.Kind = KindStructure
		in.Scale = rng.Range(1, 2.5)
		in.Rotation = rng.Range(0, 2*math.Pi)
		in.Variant = rng.Intn(structureVariants)
		in.Island = idx
		placed = append(placed, in)
		n++
	}

	if rng.Float64() < s.cfg.LandmarkChance {
		ground := d.Heights.Query(is.CenterX, is.CenterZ)
		if ground == world.HeightUnknown || ground < 0 {
			ground = 0
		}
		placed = append(placed, Instance{
			Kind:     KindLandmark,
			X:        is.CenterX,
			Y:        ground + s.cfg.LandmarkAltitude,
			Z:        is.CenterZ,
			Scale:    rng.Range(0.9, 1.2),
			Rotation: rng.Range(0, 2*math.Pi),
			Island:   idx,
		})
	}
	return placed
}

// scatterClouds fills the chunk footprint with its cloud layer. Bigger
// clouds sit lower in the altitude band.
func (s *Scatterer) scatterClouds(d world.Decoration) []Instance {
	n := s.cfg.CloudsPerChunk
	fp := d.Footprint
	if n <= 0 || fp.MaxX <= fp.MinX || fp.MaxZ <= fp.MinZ {
		return nil
	}
	lo, hi := s.cfg.CloudMinAltitude, s.cfg.CloudMaxAltitude
	band := hi - lo
	rng := terrain.NewRNG(d.Seed ^ cloudSalt)
	clouds := make([]Instance, 0, n)
	for i := 0; i < n; i++ {
		size := rng.Range(cloudSizeMin, cloudSizeMax)
		y := lo + rng.Float64()*band - size/cloudSizeMax*band*cloudSink
		clouds = append(clouds, Instance{
			Kind:     KindCloud,
			X:        rng.Range(fp.MinX, fp.MaxX),
			Y:        math.Max(lo, y),
			Z:        rng.Range(fp.MinZ, fp.MaxZ),
			Scale:    size,
			Rotation: rng.Range(0, math.Pi),
			Variant:  rng.Intn(cloudTypes),
			Island:   -1,
		})
	}
	return clouds
}

// ground returns an instance resting on dry, gently sloped terrain at (x,z).
func (s *Scatterer) ground(heights world.HeightQuery, x, z float64) (Instance, bool) {
	h := heights.Query(x, z)
	if h == world.HeightUnknown || h <= 0 {
		return Instance{}, false
	}
	for _, dir := range [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		n := heights.Query(x+dir[0]*slopeProbe, z+dir[1]*slopeProbe)
		if n == world.HeightUnknown {
			continue
		}
		if math.Abs(n-h)/slopeProbe > maxSlope {
			return Instance{}, false
		}
	}
	return Instance{X: x, Y: h, Z: z}, true
}

func (s *Scatterer) settlement(b terrain.Biome) bool {
	if s.palette != nil {
		if spec, ok := s.palette.Spec(b); ok {
			return spec.Settlement
		}
	}
	return b == terrain.Village || b == terrain.Metropolis
}

func capCount(count int, multiplier float64, limit int) int {
	n := int(math.Round(float64(count) * multiplier))
	if limit > 0 && n > limit {
		n = limit
	}
	if n < 0 {
		return 0
	}
	return n
}

func spaced(placed []Instance, x, z, gap float64) bool {
	for _, p := range placed {
		limit := gap
		if p.Kind == KindStructure {
			limit = math.Max(gap, structureSpacing)
		}
		if math.Hypot(x-p.X, z-p.Z) < limit {
			return false
		}
	}
	return true
}

func kindsOf(instances []Instance) []Kind {
	var seen [KindCloud + 1]bool
	var kinds []Kind
	for _, in := range instances {
		if int(in.Kind) < len(seen) && !seen[in.Kind] {
			seen[in.Kind] = true
			kinds = append(kinds, in.Kind)
		}
	}
	return kinds
}

// chunkResource ties registry content to the owning chunk's lifetime.
type chunkResource struct {
	registry *Registry
	coord    grid.ChunkCoord
}

func (c *chunkResource) SetOpacity(alpha float64) { c.registry.setOpacity(c.coord, alpha) }

func (c *chunkResource) Release() { c.registry.Drop(c.coord) }
