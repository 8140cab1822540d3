package world

import (
	"math"
	"sort"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// VisibleSet lists every chunk within renderDistance of center, nearest first.
func VisibleSet(center grid.ChunkCoord, renderDistance int, metric grid.Metric) []grid.ChunkCoord {
	ring := metric.Ring(center, renderDistance)
	sort.SliceStable(ring, func(i, j int) bool {
		return metric.Between(center, ring[i]) < metric.Between(center, ring[j])
	})
	return ring
}

// PreloadSet lists chunks outside the visible set that fall inside the
// visible window shifted preloadDistance chunks along the velocity (vx,vz).
// Chunks best aligned with the heading come first. Speeds below minSpeed
// yield no preload set.
func PreloadSet(center grid.ChunkCoord, vx, vz float64, renderDistance, preloadDistance int, metric grid.Metric, minSpeed float64) []grid.ChunkCoord {
	speed := math.Hypot(vx, vz)
	if preloadDistance <= 0 || speed < minSpeed || speed == 0 {
		return nil
	}
	hx, hz := vx/speed, vz/speed
	aheadX := float64(center.X) + hx*float64(preloadDistance)
	aheadZ := float64(center.Z) + hz*float64(preloadDistance)

	type candidate struct {
		coord     grid.ChunkCoord
		alignment float64
		distance  float64
	}
	var out []candidate
	for _, c := range metric.Ring(center, renderDistance+preloadDistance) {
		distance := metric.Between(center, c)
		if distance <= float64(renderDistance) {
			continue
		}
		if metric.Offset(float64(c.X)-aheadX, float64(c.Z)-aheadZ) > float64(renderDistance)+1e-9 {
			continue
		}
		dx, dz := float64(c.X-center.X), float64(c.Z-center.Z)
		out = append(out, candidate{
			coord:     c,
			alignment: (dx*hx + dz*hz) / math.Hypot(dx, dz),
			distance:  distance,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].alignment != out[j].alignment {
			return out[i].alignment > out[j].alignment
		}
		return out[i].distance < out[j].distance
	})

	coords := make([]grid.ChunkCoord, len(out))
	for i, c := range out {
		coords[i] = c.coord
	}
	return coords
}
