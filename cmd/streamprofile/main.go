package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/server"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

type tileJob struct {
	coord grid.ChunkCoord
}

func main() {
	var (
		cfgPath     = flag.String("config", "", "optional configuration file")
		requests    = flag.Int("requests", 64, "number of chunks to rasterize")
		concurrency = flag.Int("concurrency", runtime.NumCPU(), "number of concurrent rasterizers")
		spread      = flag.Int("spread", 16, "chunks are drawn from [-spread, spread] on both axes")
		lodFlag     = flag.String("lod", "near", "detail tier: near, medium, far")
		queries     = flag.Int("queries", 200000, "height queries issued against the generated chunks")
		ticks       = flag.Int("ticks", 600, "manager ticks to simulate along a scripted glide")
		seed        = flag.Int64("seed", 1337, "random seed for chunk and query selection")
		previewDir  = flag.String("preview", "", "write PNG previews of the first chunks into this directory")
		previews    = flag.Int("previews", 4, "number of previews to write")
	)
	flag.Parse()

	if *requests <= 0 || *concurrency <= 0 || *spread < 0 {
		fmt.Fprintln(os.Stderr, "requests and concurrency must be positive, spread non-negative")
		os.Exit(1)
	}
	lod, err := terrain.ParseLOD(*lodFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	raster, err := terrain.NewRasterizer(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rasterizer: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	coords := make([]grid.ChunkCoord, *requests)
	for i := range coords {
		coords[i] = grid.ChunkCoord{X: rng.Intn(2**spread+1) - *spread, Z: rng.Intn(2**spread+1) - *spread}
	}

	jobs := make(chan tileJob)
	go func() {
		defer close(jobs)
		for _, c := range coords {
			jobs <- tileJob{coord: c}
		}
	}()

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		tiles         = make(map[grid.ChunkCoord]*terrain.Tile)
		totalDuration int64
		totalIslands  int64
		totalSamples  int64
		landSamples   int64
		failures      int64
	)
	ctx := context.Background()
	worker := func() {
		defer wg.Done()
		for job := range jobs {
			start := time.Now()
			tile, err := raster.Rasterize(ctx, job.coord, lod)
			atomic.AddInt64(&totalDuration, int64(time.Since(start)))
			if err != nil {
				atomic.AddInt64(&failures, 1)
				continue
			}
			atomic.AddInt64(&totalIslands, int64(len(tile.Islands)))
			atomic.AddInt64(&totalSamples, int64(len(tile.Samples)))
			atomic.AddInt64(&landSamples, int64(tile.LandFraction()*float64(len(tile.Samples))+0.5))
			mu.Lock()
			tiles[job.coord] = tile
			mu.Unlock()
		}
	}

	wg.Add(*concurrency)
	for i := 0; i < *concurrency; i++ {
		go worker()
	}
	startWall := time.Now()
	wg.Wait()
	wallDuration := time.Since(startWall)

	// Regenerating a chunk must reproduce it exactly.
	mismatches := 0
	checked := 0
	for _, c := range coords {
		if checked == 8 {
			break
		}
		tile, ok := tiles[c]
		if !ok {
			continue
		}
		again, err := raster.Rasterize(ctx, c, lod)
		if err != nil || !reflect.DeepEqual(tile.Samples, again.Samples) || !reflect.DeepEqual(tile.Islands, again.Islands) {
			mismatches++
		}
		checked++
	}

	index := world.NewHeightIndex(raster.ChunkSize())
	for c, tile := range tiles {
		index.Insert(c, tile.Samples)
	}
	resident := index.Coords()
	queryStart := time.Now()
	hits := 0
	for i := 0; i < *queries && len(resident) > 0; i++ {
		c := resident[rng.Intn(len(resident))]
		fp := grid.FootprintOf(c, raster.ChunkSize())
		x := fp.MinX + rng.Float64()*(fp.MaxX-fp.MinX)
		z := fp.MinZ + rng.Float64()*(fp.MaxZ-fp.MinZ)
		if index.Query(x, z) != world.HeightUnknown {
			hits++
		}
	}
	queryDuration := time.Since(queryStart)

	tickStats, err := profileTicks(cfg, raster, *ticks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile ticks: %v\n", err)
		os.Exit(1)
	}

	var written []string
	if *previewDir != "" {
		for _, c := range coords {
			if len(written) >= *previews {
				break
			}
			tile, ok := tiles[c]
			if !ok {
				continue
			}
			path, err := terrain.SavePreview(tile, *previewDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "preview %v: %v\n", c, err)
				break
			}
			written = append(written, path)
		}
	}

	generated := int64(len(coords)) - atomic.LoadInt64(&failures)
	avgDuration := time.Duration(0)
	if n := int64(len(coords)); n > 0 {
		avgDuration = time.Duration(atomic.LoadInt64(&totalDuration) / n)
	}
	landRatio := 0.0
	if s := atomic.LoadInt64(&totalSamples); s > 0 {
		landRatio = float64(atomic.LoadInt64(&landSamples)) / float64(s) * 100
	}
	perQuery := time.Duration(0)
	if *queries > 0 {
		perQuery = queryDuration / time.Duration(*queries)
	}

	fmt.Println("== Island Stream Profile ==")
	fmt.Printf("Seed: %d, noise: %s, chunk size: %.0f\n", cfg.Terrain.Seed, cfg.Terrain.Noise, cfg.Stream.ChunkSize)
	fmt.Printf("LOD: %s (resolution %d)\n", lod, raster.LODs().Resolution(lod))
	fmt.Printf("Requests: %d, unique chunks: %d\n", len(coords), len(tiles))
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Generated: %d, failures: %d\n", generated, atomic.LoadInt64(&failures))
	fmt.Printf("Average rasterize duration: %s\n", avgDuration)
	fmt.Printf("Wall clock duration: %s\n", wallDuration)
	fmt.Printf("Average islands per chunk: %.2f\n", float64(atomic.LoadInt64(&totalIslands))/float64(max(generated, 1)))
	fmt.Printf("Land coverage: %.2f%%\n", landRatio)
	fmt.Printf("Determinism check: %d chunks, %d mismatches\n", checked, mismatches)
	fmt.Printf("Height queries: %d (%d resolved), %s per query\n", *queries, hits, perQuery)
	fmt.Printf("Manager ticks: %d, loads: %d, evictions: %d, cancelled: %d\n", tickStats.ticks, tickStats.loads, tickStats.evictions, tickStats.cancelled)
	fmt.Printf("Tick duration p50: %s, p99: %s, max: %s\n", tickStats.p50, tickStats.p99, tickStats.max)
	for _, p := range written {
		fmt.Printf("Preview: %s\n", p)
	}
}

type tickProfile struct {
	ticks, loads, evictions, cancelled int
	p50, p99, max                      time.Duration
}

// profileTicks flies a scripted glide across the archipelago at a fixed
// simulated frame rate and records how long each manager tick takes.
func profileTicks(cfg *config.Config, raster *terrain.Rasterizer, ticks int) (tickProfile, error) {
	var out tickProfile
	if ticks <= 0 {
		return out, nil
	}
	manager, err := world.NewManager(cfg.Stream, world.Options{Generator: raster, LODs: raster.LODs()})
	if err != nil {
		return out, err
	}
	defer manager.Close()

	frame := cfg.Stream.TickRate.Duration()
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	glide := server.NewGlide(server.GlideParams{
		X: cfg.Stream.ChunkSize / 2, Y: 250, Z: cfg.Stream.ChunkSize / 2,
		Speed:    cfg.Stream.ChunkSize / 2,
		TurnRate: 0.05,
	})

	durations := make([]time.Duration, 0, ticks)
	now := time.Unix(0, 0)
	ctx := context.Background()
	for i := 0; i < ticks; i++ {
		glide.Advance(frame)
		now = now.Add(frame)
		start := time.Now()
		report := manager.Tick(ctx, now, glide.Viewpoint())
		durations = append(durations, time.Since(start))
		out.loads += len(report.Loaded)
		out.evictions += len(report.Evicted)
		out.cancelled += len(report.Cancelled)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	out.ticks = ticks
	out.p50 = durations[len(durations)/2]
	out.p99 = durations[len(durations)*99/100]
	out.max = durations[len(durations)-1]
	return out, nil
}
