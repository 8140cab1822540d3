package terrain

import (
	"fmt"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
)

// LOD is one of three discrete detail tiers.
type LOD uint8

const (
	LODNear LOD = iota
	LODMedium
	LODFar
)

func (l LOD) String() string {
	switch l {
	case LODNear:
		return "near"
	case LODMedium:
		return "medium"
	case LODFar:
		return "far"
	}
	return fmt.Sprintf("lod(%d)", uint8(l))
}

func ParseLOD(s string) (LOD, error) {
	for _, l := range []LOD{LODNear, LODMedium, LODFar} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown lod %q", s)
}

// LODTable maps viewpoint distance (in chunks) to a tier.
type LODTable struct {
	near, medium float64
	tiers        [3]config.LODTier
}

func NewLODTable(cfg config.LODConfig) (LODTable, error) {
	if len(cfg.Tiers) != 3 {
		return LODTable{}, fmt.Errorf("lod table needs 3 tiers, got %d", len(cfg.Tiers))
	}
	t := LODTable{near: cfg.NearDistance, medium: cfg.MediumDistance}
	copy(t.tiers[:], cfg.Tiers)
	return t, nil
}

func (t LODTable) Select(distance float64) LOD {
	switch {
	case distance <= t.near:
		return LODNear
	case distance <= t.medium:
		return LODMedium
	}
	return LODFar
}

// Resolution is the number of grid cells per chunk side for the tier.
func (t LODTable) Resolution(l LOD) int {
	return t.tiers[t.clamp(l)].Resolution
}

func (t LODTable) PlacementMultiplier(l LOD) float64 {
	return t.tiers[t.clamp(l)].PlacementMultiplier
}

func (t LODTable) clamp(l LOD) LOD {
	if l > LODFar {
		return LODFar
	}
	return l
}
