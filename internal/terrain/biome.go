package terrain

import (
	"fmt"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
)

// Biome tags an island's surface character.
type Biome uint8

const (
	Tropical Biome = iota
	Desert
	Snowy
	Volcanic
	Forest
	Plains
	Savanna
	Swamp
	Tundra
	Village
	Metropolis
	biomeCount
)

var biomeNames = [biomeCount]string{
	Tropical:   "tropical",
	Desert:     "desert",
	Snowy:      "snowy",
	Volcanic:   "volcanic",
	Forest:     "forest",
	Plains:     "plains",
	Savanna:    "savanna",
	Swamp:      "swamp",
	Tundra:     "tundra",
	Village:    "village",
	Metropolis: "metropolis",
}

func (b Biome) String() string {
	if b < biomeCount {
		return biomeNames[b]
	}
	return fmt.Sprintf("biome(%d)", uint8(b))
}

func ParseBiome(name string) (Biome, error) {
	for i, n := range biomeNames {
		if n == name {
			return Biome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown biome %q", name)
}

// Band colors every height below MaxHeight.
type Band struct {
	Name      string
	MaxHeight float64
	Color     RGB
}

// BiomeSpec is the resolved palette entry for one biome.
type BiomeSpec struct {
	Biome            Biome
	BaseHeight       float64
	StructureDensity float64
	TreeDensity      float64
	Settlement       bool
	Bands            []Band
}

// BandColor picks the first band whose MaxHeight exceeds h. The last band
// catches everything above.
func (s BiomeSpec) BandColor(h float64) RGB {
	for i := 0; i < len(s.Bands)-1; i++ {
		if h < s.Bands[i].MaxHeight {
			return s.Bands[i].Color
		}
	}
	return s.Bands[len(s.Bands)-1].Color
}

// Palette is the ordered set of biomes islands are drawn from.
type Palette struct {
	specs []BiomeSpec
	index map[Biome]int
	Water RGB
	Lava  RGB
}

func NewPalette(cfg config.BiomeSet) (*Palette, error) {
	if len(cfg.Palette) == 0 {
		return nil, fmt.Errorf("palette is empty")
	}
	p := &Palette{
		specs: make([]BiomeSpec, 0, len(cfg.Palette)),
		index: make(map[Biome]int, len(cfg.Palette)),
	}
	var err error
	if p.Water, err = parseColor(cfg.Water); err != nil {
		return nil, fmt.Errorf("water: %w", err)
	}
	if p.Lava, err = parseColor(cfg.Lava); err != nil {
		return nil, fmt.Errorf("lava: %w", err)
	}
	for _, bc := range cfg.Palette {
		biome, err := ParseBiome(bc.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := p.index[biome]; dup {
			return nil, fmt.Errorf("biome %s listed twice", biome)
		}
		if len(bc.Bands) == 0 {
			return nil, fmt.Errorf("biome %s has no bands", biome)
		}
		spec := BiomeSpec{
			Biome:            biome,
			BaseHeight:       bc.BaseHeight,
			StructureDensity: bc.StructureDensity,
			TreeDensity:      bc.TreeDensity,
			Settlement:       bc.Settlement,
			Bands:            make([]Band, 0, len(bc.Bands)),
		}
		for _, band := range bc.Bands {
			color, err := parseColor(band.Color)
			if err != nil {
				return nil, fmt.Errorf("biome %s band %s: %w", biome, band.Name, err)
			}
			spec.Bands = append(spec.Bands, Band{Name: band.Name, MaxHeight: band.MaxHeight, Color: color})
		}
		p.index[biome] = len(p.specs)
		p.specs = append(p.specs, spec)
	}
	return p, nil
}

func (p *Palette) Len() int {
	return len(p.specs)
}

func (p *Palette) At(i int) BiomeSpec {
	return p.specs[i]
}

func (p *Palette) Spec(b Biome) (BiomeSpec, bool) {
	i, ok := p.index[b]
	if !ok {
		return BiomeSpec{}, false
	}
	return p.specs[i], true
}
