package terrain

import (
	"fmt"
	"math"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/noise"
)

const (
	coastBand     = 0.3  // falloff below which coastal banding applies
	mountainReach = 0.3  // peak influence radius as a fraction of island radius
	lavaReach     = 0.12 // lava blend radius as a fraction of island radius
)

// Sample is the evaluated surface at one world position.
type Sample struct {
	Height float64
	Color  RGB
	// Island is the index of the owning island, or -1 for open water.
	Island int
}

// Evaluator computes height and color from a chunk's islands. It holds only
// immutable noise tables and is safe for concurrent use.
type Evaluator struct {
	cfg     config.TerrainConfig
	palette *Palette
	seed    int64

	base       noise.Field
	detail     noise.Field
	edge       noise.Field
	angular    noise.Field
	positional noise.Field
	coast      noise.Field
	biome      noise.Field
}

func NewEvaluator(cfg config.TerrainConfig, palette *Palette) (*Evaluator, error) {
	e := &Evaluator{cfg: cfg, palette: palette, seed: cfg.Seed}
	fields := []*noise.Field{&e.base, &e.detail, &e.edge, &e.angular, &e.positional, &e.coast, &e.biome}
	for i, dst := range fields {
		f, err := noise.New(cfg.Noise, cfg.Seed+int64(i)*7919)
		if err != nil {
			return nil, fmt.Errorf("evaluator noise: %w", err)
		}
		*dst = f
	}
	e.base = noise.Fractal{Base: e.base, Octaves: cfg.Octaves, Persistence: cfg.Persistence, Lacunarity: cfg.Lacunarity}
	return e, nil
}

// DeformedDistance is the noise-perturbed distance from (x,z) to the island
// center used for ownership and falloff.
func (e *Evaluator) DeformedDistance(x, z float64, is Island) float64 {
	dx := x - is.CenterX
	dz := z - is.CenterZ
	d := math.Hypot(dx, dz)

	angle := math.Atan2(dz, dx)
	af := e.cfg.AngularFrequency
	angular := e.angular.Sample(math.Cos(angle)*af+is.SeedOffset, math.Sin(angle)*af+is.SeedOffset)
	pf := e.cfg.PositionalFrequency
	positional := e.positional.Sample(x*pf, z*pf)
	ef := e.cfg.EdgeFrequency
	edge := e.edge.Sample(x*ef, z*ef)

	deform := (0.7*angular + 0.3*positional) * is.Radius * e.cfg.DeformStrength
	return d + deform - edge*is.Radius*e.cfg.EdgeRoughness
}

// Owner returns the index of the island claiming (x,z) and its deformed
// distance. The smallest deformed distance below the radius wins; ties keep
// the lower index.
func (e *Evaluator) Owner(x, z float64, islands []Island) (int, float64) {
	owner := -1
	best := math.Inf(1)
	for i := range islands {
		d := e.DeformedDistance(x, z, islands[i])
		if d < islands[i].Radius && d < best {
			owner = i
			best = d
		}
	}
	return owner, best
}

// Evaluate computes the terrain surface at (x,z).
func (e *Evaluator) Evaluate(x, z float64, islands []Island) Sample {
	owner, dist := e.Owner(x, z, islands)
	if owner < 0 {
		return Sample{Height: e.cfg.WaterHeight, Color: e.palette.Water, Island: -1}
	}
	is := islands[owner]
	spec, ok := e.palette.Spec(is.Biome)
	if !ok {
		spec = e.palette.At(0)
	}
	h := e.landHeight(x, z, is, spec, falloff(dist, is.Radius))
	return Sample{Height: h, Color: e.color(x, z, is, spec, h), Island: owner}
}

func falloff(dist, radius float64) float64 {
	t := dist / radius
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return math.Pow(1-t, 1.5)
}

func (e *Evaluator) landHeight(x, z float64, is Island, spec BiomeSpec, fall float64) float64 {
	c := e.cfg
	h := spec.BaseHeight

	bf, df := c.BaseFrequency, c.DetailFrequency
	combined := 0.7*e.base.Sample(x*bf, z*bf) + 0.3*e.detail.Sample(x*df, z*df)
	weight := 1.0
	if is.Biome == Tropical {
		weight = c.TropicalWeight
	}
	h += fall * (c.LandLift + c.HillAmplitude*weight*unit(combined))

	h += e.mountains(x, z, is)

	gf := c.BiomeFrequency
	switch is.Biome {
	case Desert:
		h += fall * c.DuneAmplitude * unit(e.biome.Sample(x*gf, z*gf*0.5))
	case Volcanic:
		ridge := 1 - math.Abs(e.biome.Sample(x*gf*2, z*gf*2))
		h += fall * c.VolcanicAmplitude * ridge * ridge
	case Snowy:
		h += fall * c.SnowVariation * unit(e.biome.Sample(x*gf, z*gf))
		if h > c.SnowLine && h < c.SnowFloor {
			h = c.SnowFloor
		}
	}

	if fall < coastBand {
		cf := c.CoastFrequency
		n := e.coast.Sample(x*cf, z*cf)
		scale := fall / coastBand
		switch {
		case n > 0.3:
			h += c.CliffHeight * scale * (n - 0.3) / 0.7
		case n < -0.3:
			h -= c.BeachDepth * scale * (-n - 0.3) / 0.7
		}
	}

	// Land never dips below sea level; waterHeight is negative.
	if h < 0 {
		h = 0
	}
	return math.Floor(h/c.HeightStep) * c.HeightStep
}

func (e *Evaluator) mountains(x, z float64, is Island) float64 {
	if len(is.Mountains) == 0 {
		return 0
	}
	reach := mountainReach * is.Radius
	df := e.cfg.DetailFrequency * 0.5
	total := 0.0
	for _, m := range is.Mountains {
		pd := math.Hypot(x-(is.CenterX+m.OffsetX), z-(is.CenterZ+m.OffsetZ))
		if pd >= reach {
			continue
		}
		f := 1 - pd/reach
		mod := 0.75 + 0.25*e.detail.Sample(x*df+is.SeedOffset, z*df)
		total += m.Height * f * f * mod
	}
	return total
}

// HeightCap bounds every land height an island can produce.
func (e *Evaluator) HeightCap(is Island) float64 {
	c := e.cfg
	spec, ok := e.palette.Spec(is.Biome)
	if !ok {
		spec = e.palette.At(0)
	}
	weight := 1.0
	if is.Biome == Tropical {
		weight = c.TropicalWeight
	}
	limit := spec.BaseHeight + c.LandLift + c.HillAmplitude*weight + c.CliffHeight
	for _, m := range is.Mountains {
		limit += m.Height
	}
	switch is.Biome {
	case Desert:
		limit += c.DuneAmplitude
	case Volcanic:
		limit += c.VolcanicAmplitude
	case Snowy:
		limit += c.SnowVariation
		limit = math.Max(limit, c.SnowFloor)
	}
	return limit
}

func (e *Evaluator) color(x, z float64, is Island, spec BiomeSpec, h float64) RGB {
	col := spec.BandColor(h)
	if is.Biome == Volcanic {
		reach := lavaReach * is.Radius
		for _, m := range is.Mountains {
			pd := math.Hypot(x-(is.CenterX+m.OffsetX), z-(is.CenterZ+m.OffsetZ))
			if pd < reach {
				col = col.Lerp(e.palette.Lava, 1-pd/reach)
			}
		}
	}
	if j := e.cfg.TintJitter; j > 0 {
		hash := mix64(math.Float64bits(x) ^ mix64(math.Float64bits(z)) ^ uint64(e.seed))
		col = col.Shift(int(hash%uint64(2*j+1)) - j)
	}
	return col
}

func unit(n float64) float64 {
	return (n + 1) / 2
}
