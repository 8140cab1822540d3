// Package noise provides seeded 2D coherent noise fields in [-1, 1].
package noise

import (
	"fmt"
	"math"

	perlin "github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// Field is a deterministic, continuous 2D noise function. Implementations
// hold only their seed tables and are safe for concurrent use.
type Field interface {
	Sample(x, y float64) float64
}

// New builds the backend named by kind ("simplex", "perlin" or "value").
func New(kind string, seed int64) (Field, error) {
	switch kind {
	case "simplex", "":
		return NewSimplex(seed), nil
	case "perlin":
		return NewPerlin(seed), nil
	case "value":
		return NewValue(seed), nil
	}
	return nil, fmt.Errorf("unknown noise backend %q", kind)
}

// Simplex wraps OpenSimplex noise.
type Simplex struct {
	n opensimplex.Noise
}

func NewSimplex(seed int64) *Simplex {
	return &Simplex{n: opensimplex.New(seed)}
}

func (s *Simplex) Sample(x, y float64) float64 {
	return clamp(s.n.Eval2(x, y))
}

// Perlin wraps classic Perlin noise. The raw output of go-perlin is roughly
// within [-0.7, 0.7]; it is rescaled and clamped.
type Perlin struct {
	p *perlin.Perlin
}

const (
	perlinAlpha = 2
	perlinBeta  = 2
	perlinN     = 3
	perlinScale = 1.4
)

func NewPerlin(seed int64) *Perlin {
	return &Perlin{p: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed)}
}

func (p *Perlin) Sample(x, y float64) float64 {
	return clamp(p.p.Noise2D(x, y) * perlinScale)
}

// Value is hashed lattice value noise with smoothstep interpolation.
type Value struct {
	seed int64
}

func NewValue(seed int64) *Value {
	return &Value{seed: seed}
}

func (v *Value) Sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	n0 := random2D(x0, y0, v.seed)
	n1 := random2D(x1, y0, v.seed)
	ix0 := lerp(n0, n1, sx)

	n2 := random2D(x0, y1, v.seed)
	n3 := random2D(x1, y1, v.seed)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

// Fractal sums octaves of a base field and normalises by total amplitude,
// so the result stays within [-1, 1].
type Fractal struct {
	Base        Field
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

func (f Fractal) Sample(x, y float64) float64 {
	frequency := 1.0
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	octaves := f.Octaves
	if octaves <= 0 {
		octaves = 1
	}
	for i := 0; i < octaves; i++ {
		noiseSum += f.Base.Sample(x*frequency, y*frequency) * amplitude
		maxAmplitude += amplitude
		amplitude *= f.Persistence
		frequency *= f.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return clamp(noiseSum / maxAmplitude)
}

// Offset shifts the sampling domain, giving independent-looking channels
// from a single seed table.
type Offset struct {
	Base   Field
	DX, DY float64
}

func (o Offset) Sample(x, y float64) float64 {
	return o.Base.Sample(x+o.DX, y+o.DY)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
