package terrain

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// HeightSample is one rasterized surface point.
type HeightSample struct {
	X, Z, Height float64
}

// Tile is the rasterized surface of one chunk: a regular grid of
// (Resolution+1)^2 samples stored row by row along z.
type Tile struct {
	Coord      grid.ChunkCoord
	LOD        LOD
	Seed       uint64
	Resolution int
	Step       float64
	Islands    []Island
	Samples    []HeightSample
	Colors     []RGB
	Owners     []int8
}

// Side is the number of samples along one edge.
func (t *Tile) Side() int {
	return t.Resolution + 1
}

// At returns the sample in row iz, column ix.
func (t *Tile) At(ix, iz int) HeightSample {
	return t.Samples[iz*t.Side()+ix]
}

// LandFraction is the share of samples owned by an island.
func (t *Tile) LandFraction() float64 {
	if len(t.Owners) == 0 {
		return 0
	}
	land := 0
	for _, o := range t.Owners {
		if o >= 0 {
			land++
		}
	}
	return float64(land) / float64(len(t.Owners))
}

// Rasterizer turns chunk coordinates into tiles. Generation is a pure
// function of (world seed, coord, lod): nothing outside the returned tile
// is touched.
type Rasterizer struct {
	worldSeed int64
	chunkSize float64
	workers   int
	lods      LODTable
	gen       *Generator
	eval      *Evaluator
	palette   *Palette
	logger    *slog.Logger
}

func NewRasterizer(cfg *config.Config, logger *slog.Logger) (*Rasterizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	palette, err := NewPalette(cfg.Biomes)
	if err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	eval, err := NewEvaluator(cfg.Terrain, palette)
	if err != nil {
		return nil, err
	}
	lods, err := NewLODTable(cfg.LOD)
	if err != nil {
		return nil, err
	}
	return &Rasterizer{
		worldSeed: cfg.Terrain.Seed,
		chunkSize: cfg.Stream.ChunkSize,
		workers:   cfg.Terrain.Workers,
		lods:      lods,
		gen:       NewGenerator(cfg.Terrain, palette, cfg.Stream.ChunkSize),
		eval:      eval,
		palette:   palette,
		logger:    logger,
	}, nil
}

func (r *Rasterizer) Evaluator() *Evaluator { return r.eval }
func (r *Rasterizer) LODs() LODTable        { return r.lods }
func (r *Rasterizer) Palette() *Palette     { return r.palette }
func (r *Rasterizer) ChunkSize() float64    { return r.chunkSize }

// Islands regenerates the island descriptors of coord.
func (r *Rasterizer) Islands(coord grid.ChunkCoord) []Island {
	return r.gen.Generate(coord, ChunkSeed(r.worldSeed, coord))
}

// Rasterize generates the islands of coord and evaluates a sample grid at
// the resolution of lod. Rows are spread over a bounded worker pool and
// assembled before return.
func (r *Rasterizer) Rasterize(ctx context.Context, coord grid.ChunkCoord, lod LOD) (*Tile, error) {
	seed := ChunkSeed(r.worldSeed, coord)
	res := r.lods.Resolution(lod)
	side := res + 1
	fp := grid.FootprintOf(coord, r.chunkSize)

	tile := &Tile{
		Coord:      coord,
		LOD:        lod,
		Seed:       seed,
		Resolution: res,
		Step:       r.chunkSize / float64(res),
		Islands:    r.gen.Generate(coord, seed),
		Samples:    make([]HeightSample, side*side),
		Colors:     make([]RGB, side*side),
		Owners:     make([]int8, side*side),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := r.workerCount(side)
	rows := make(chan int, workers)
	errs := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					select {
					case errs <- fmt.Errorf("evaluate panic: %v", v):
					default:
					}
					cancel()
				}
			}()
			for iz := range rows {
				if err := ctx.Err(); err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
				z := fp.MinZ + float64(iz)*r.chunkSize/float64(res)
				for ix := 0; ix < side; ix++ {
					x := fp.MinX + float64(ix)*r.chunkSize/float64(res)
					s := r.eval.Evaluate(x, z, tile.Islands)
					idx := iz*side + ix
					tile.Samples[idx] = HeightSample{X: x, Z: z, Height: s.Height}
					tile.Colors[idx] = s.Color
					tile.Owners[idx] = int8(s.Island)
				}
			}
		}()
	}

	nextLogPercent := 25
	for iz := 0; iz < side; iz++ {
		select {
		case rows <- iz:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		if progress := (iz + 1) * 100 / side; progress >= nextLogPercent {
			r.logger.Debug("tile raster progress", "chunk", coord.String(), "percent", progress)
			nextLogPercent = (progress/25 + 1) * 25
		}
	}
	close(rows)
	wg.Wait()

	select {
	case err := <-errs:
		return nil, fmt.Errorf("rasterize chunk %v: %w", coord, err)
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rasterize chunk %v: %w", coord, err)
	}
	return tile, nil
}

func (r *Rasterizer) workerCount(rows int) int {
	workers := r.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > rows {
		workers = rows
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}
