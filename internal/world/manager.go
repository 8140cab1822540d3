package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
)

// Generator rasterizes chunks. Implementations must not touch shared state
// until they return.
type Generator interface {
	Rasterize(ctx context.Context, coord grid.ChunkCoord, lod terrain.LOD) (*terrain.Tile, error)
}

// HeightQuery answers terrain heights, returning HeightUnknown where no
// chunk is resident.
type HeightQuery interface {
	Query(x, z float64) float64
}

// Decoration describes a freshly rasterized chunk to a Decorator.
type Decoration struct {
	Coord               grid.ChunkCoord
	Footprint           grid.Footprint
	Seed                uint64
	LOD                 terrain.LOD
	PlacementMultiplier float64
	Islands             []terrain.Island
	Heights             HeightQuery
}

// Decorator scatters placement content over a chunk. A failure leaves the
// chunk resident with terrain only.
type Decorator interface {
	Decorate(ctx context.Context, d Decoration) (Resource, error)
}

// Viewpoint is the externally owned camera state read once per tick.
type Viewpoint struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// Options wires the manager's collaborators. Generator is required.
type Options struct {
	Generator Generator
	LODs      terrain.LODTable
	Renderer  Renderer
	Decorator Decorator
	Logger    *slog.Logger
}

// TickReport summarises the work done by one Tick.
type TickReport struct {
	Tick      uint64
	Center    grid.ChunkCoord
	Visible   []grid.ChunkCoord
	Preload   []grid.ChunkCoord
	Enqueued  []grid.ChunkCoord
	Cancelled []grid.ChunkCoord
	Loaded    []grid.ChunkCoord
	Evicted   []grid.ChunkCoord
	Failures  []error
	QueueLen  int
	Starved   bool
}

// Stats are cumulative counters since construction.
type Stats struct {
	Ticks              uint64
	Loaded             uint64
	Evicted            uint64
	Cancelled          uint64
	GenerationFailures uint64
	DecorationFailures uint64
	Resident           int
	Queued             int
}

// Manager owns the working set of chunks around a moving viewpoint. Tick is
// expected to be driven by a single goroutine; the read accessors are safe
// to call from any goroutine.
type Manager struct {
	cfg      config.StreamConfig
	metric   grid.Metric
	gen      Generator
	lods     terrain.LODTable
	renderer Renderer
	deco     Decorator
	logger   *slog.Logger

	index   *HeightIndex
	queue   *LoadQueue
	limiter *rate.Limiter

	tickMu sync.Mutex

	mu        sync.RWMutex
	chunks    map[grid.ChunkCoord]*Chunk
	failures  map[grid.ChunkCoord]int
	listeners []Listener
	stats     Stats
	tick      uint64

	ready     chan struct{}
	readyOnce sync.Once
}

func NewManager(cfg config.StreamConfig, opts Options) (*Manager, error) {
	if opts.Generator == nil {
		return nil, errors.New("world manager requires a generator")
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("world manager requires a positive chunk size")
	}
	metric, err := grid.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLoadsPerTick <= 0 {
		cfg.MaxLoadsPerTick = 1
	}
	if cfg.EvictAfterTicks <= 0 {
		cfg.EvictAfterTicks = 1
	}
	if cfg.MaxGenerationAttempts <= 0 {
		cfg.MaxGenerationAttempts = 1
	}

	limit := rate.Inf
	if d := cfg.InterLoadDelay.Duration(); d > 0 {
		limit = rate.Every(d)
	}

	m := &Manager{
		cfg:      cfg,
		metric:   metric,
		gen:      opts.Generator,
		lods:     opts.LODs,
		renderer: opts.Renderer,
		deco:     opts.Decorator,
		logger:   opts.Logger,
		index:    NewHeightIndex(cfg.ChunkSize),
		queue:    NewLoadQueue(),
		limiter:  rate.NewLimiter(limit, 1),
		chunks:   make(map[grid.ChunkCoord]*Chunk),
		failures: make(map[grid.ChunkCoord]int),
		ready:    make(chan struct{}),
	}
	if m.renderer == nil {
		m.renderer = nopRenderer{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Subscribe registers a listener for chunk notifications.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Index exposes the height index for read-only consumers.
func (m *Manager) Index() *HeightIndex {
	return m.index
}

// QueryHeight returns the terrain height at (x,z) or HeightUnknown.
func (m *Manager) QueryHeight(x, z float64) float64 {
	return m.index.Query(x, z)
}

// IsChunkResident reports whether coord has samples in the height index,
// which holds from the start of its fade-in until eviction.
func (m *Manager) IsChunkResident(coord grid.ChunkCoord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chunks[coord]
	return ok && ch.state.loaded()
}

// Chunk returns a snapshot of the record for coord.
func (m *Manager) Chunk(coord grid.ChunkCoord) (ChunkInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chunks[coord]
	if !ok {
		return ChunkInfo{}, false
	}
	return ch.info(), true
}

// Islands returns the island descriptors of a resident chunk.
func (m *Manager) Islands(coord grid.ChunkCoord) ([]terrain.Island, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chunks[coord]
	if !ok || !ch.state.loaded() {
		return nil, false
	}
	return append([]terrain.Island(nil), ch.islands...), true
}

// ResidentIslands enumerates the islands of every resident chunk.
func (m *Manager) ResidentIslands() map[grid.ChunkCoord][]terrain.Island {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[grid.ChunkCoord][]terrain.Island)
	for coord, ch := range m.chunks {
		if ch.state.loaded() {
			out[coord] = append([]terrain.Island(nil), ch.islands...)
		}
	}
	return out
}

// ResidentCoords lists resident chunks in (X, Z) order.
func (m *Manager) ResidentCoords() []grid.ChunkCoord {
	m.mu.RLock()
	coords := make([]grid.ChunkCoord, 0, len(m.chunks))
	for coord, ch := range m.chunks {
		if ch.state.loaded() {
			coords = append(coords, coord)
		}
	}
	m.mu.RUnlock()
	sortCoords(coords)
	return coords
}

// QueuedEntries returns the pending loads in their current order.
func (m *Manager) QueuedEntries() []LoadEntry {
	return m.queue.Entries()
}

// Ready is closed the first time the chunk under the viewpoint becomes
// resident.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	for _, ch := range m.chunks {
		if ch.state.loaded() {
			s.Resident++
		}
	}
	s.Queued = m.queue.Len()
	return s
}

// BeginFadeOut starts a visual fade of a resident chunk. The chunk is
// evicted when its opacity reaches zero. It is a no-op for chunks that are
// not fading in or resident.
func (m *Manager) BeginFadeOut(coord grid.ChunkCoord, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chunks[coord]
	if !ok || (ch.state != StateResident && ch.state != StateFadingIn) {
		return false
	}
	ch.state = StateFadingOut
	ch.fadeStart = now
	ch.fadeFrom = ch.opacity
	return true
}

// Tick advances the lifecycle by one step for the given viewpoint.
func (m *Manager) Tick(ctx context.Context, now time.Time, vp Viewpoint) TickReport {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	var events []Event

	m.mu.Lock()
	m.tick++
	m.stats.Ticks++
	report := TickReport{Tick: m.tick}
	center := grid.ChunkOf(vp.X, vp.Z, m.cfg.ChunkSize)
	report.Center = center
	report.Visible = VisibleSet(center, m.cfg.RenderDistance, m.metric)
	report.Preload = PreloadSet(center, vp.VX, vp.VZ, m.cfg.RenderDistance, m.cfg.PreloadDistance, m.metric, m.cfg.MinPreloadSpeed)

	wanted := make(map[grid.ChunkCoord]LoadEntry, len(report.Visible)+len(report.Preload))
	for _, c := range report.Visible {
		wanted[c] = LoadEntry{Coord: c, Priority: PriorityVisible, Distance: m.viewDistance(c, vp)}
	}
	for _, c := range report.Preload {
		if _, ok := wanted[c]; !ok {
			wanted[c] = LoadEntry{Coord: c, Priority: PriorityPreload, Distance: m.viewDistance(c, vp)}
		}
	}

	for _, e := range m.queue.Retain(func(e LoadEntry) bool {
		_, ok := wanted[e.Coord]
		return ok
	}) {
		delete(m.chunks, e.Coord)
		report.Cancelled = append(report.Cancelled, e.Coord)
		m.stats.Cancelled++
	}
	for coord := range m.failures {
		if _, ok := wanted[coord]; !ok {
			delete(m.failures, coord)
		}
	}

	for _, coords := range [][]grid.ChunkCoord{report.Visible, report.Preload} {
		for _, c := range coords {
			e := wanted[c]
			if ch, ok := m.chunks[c]; ok {
				if ch.state == StateQueued {
					m.queue.Push(e)
				}
				continue
			}
			if m.failures[c] >= m.cfg.MaxGenerationAttempts {
				continue
			}
			m.chunks[c] = &Chunk{coord: c, state: StateQueued}
			m.queue.Push(e)
			report.Enqueued = append(report.Enqueued, c)
		}
	}

	events = append(events, m.evictOutOfRange(center, now, &report)...)
	events = append(events, m.advanceFades(now, &report)...)
	m.mu.Unlock()

	m.queue.Sort()
	for loads := 0; loads < m.cfg.MaxLoadsPerTick && m.queue.Len() > 0; loads++ {
		if !m.limiter.AllowN(now, 1) {
			break
		}
		entry, ok := m.queue.Pop()
		if !ok {
			break
		}
		evs, err := m.load(ctx, entry, now)
		events = append(events, evs...)
		if err != nil {
			report.Failures = append(report.Failures, err)
			continue
		}
		report.Loaded = append(report.Loaded, entry.Coord)
	}

	report.QueueLen = m.queue.Len()
	if warn := m.cfg.QueueWarnLength; warn > 0 && report.QueueLen > warn {
		report.Starved = true
		m.logger.Warn("load queue backlog", "error", ErrQueueStarved, "length", report.QueueLen, "threshold", warn)
	}

	m.mu.RLock()
	if ch, ok := m.chunks[center]; ok && ch.state.loaded() {
		m.readyOnce.Do(func() { close(m.ready) })
	}
	listeners := append([]Listener(nil), m.listeners...)
	tick := m.tick
	m.mu.RUnlock()

	for i := range events {
		events[i].Tick = tick
		for _, l := range listeners {
			l.HandleChunkEvent(events[i])
		}
	}
	return report
}

// viewDistance is the metric distance, in chunks, from the viewpoint to the
// center of coord.
func (m *Manager) viewDistance(coord grid.ChunkCoord, vp Viewpoint) float64 {
	cx, cz := grid.FootprintOf(coord, m.cfg.ChunkSize).Center()
	return m.metric.Offset((cx-vp.X)/m.cfg.ChunkSize, (cz-vp.Z)/m.cfg.ChunkSize)
}

// evictOutOfRange must be called with m.mu held.
func (m *Manager) evictOutOfRange(center grid.ChunkCoord, now time.Time, report *TickReport) []Event {
	limit := float64(m.cfg.RenderDistance + m.cfg.PreloadDistance)
	var stale []grid.ChunkCoord
	for coord, ch := range m.chunks {
		if !ch.state.loaded() {
			continue
		}
		if m.metric.Between(center, coord) <= limit {
			ch.outOfRange = 0
			continue
		}
		ch.outOfRange++
		if ch.outOfRange >= m.cfg.EvictAfterTicks {
			stale = append(stale, coord)
		}
	}
	sortCoords(stale)

	events := make([]Event, 0, len(stale))
	for _, coord := range stale {
		events = append(events, m.evictLocked(coord, now))
		report.Evicted = append(report.Evicted, coord)
	}
	return events
}

func (m *Manager) evictLocked(coord grid.ChunkCoord, now time.Time) Event {
	ch := m.chunks[coord]
	m.index.Remove(coord)
	ch.release()
	delete(m.chunks, coord)
	m.stats.Evicted++
	m.logger.Debug("chunk evicted", "chunk", coord.String(), "lod", ch.lod.String())
	return Event{Kind: EventChunkRemoved, Coord: coord, LOD: ch.lod, Islands: ch.islands, At: now}
}

// advanceFades must be called with m.mu held.
func (m *Manager) advanceFades(now time.Time, report *TickReport) []Event {
	fade := m.cfg.FadeDuration.Duration()
	var events []Event
	var faded []grid.ChunkCoord
	for coord, ch := range m.chunks {
		switch ch.state {
		case StateFadingIn:
			t := fadeProgress(ch.fadeStart, now, fade)
			if t >= 1 {
				ch.state = StateResident
				ch.setOpacity(1)
				events = append(events, Event{Kind: EventChunkResident, Coord: coord, LOD: ch.lod, Islands: ch.islands, At: now})
				continue
			}
			ch.setOpacity(t)
		case StateFadingOut:
			t := fadeProgress(ch.fadeStart, now, fade)
			alpha := ch.fadeFrom * (1 - t)
			if t >= 1 || alpha <= 0 {
				faded = append(faded, coord)
				continue
			}
			ch.setOpacity(alpha)
		}
	}
	sortCoords(faded)
	for _, coord := range faded {
		events = append(events, m.evictLocked(coord, now))
		report.Evicted = append(report.Evicted, coord)
	}
	sortEvents(events)
	return events
}

func fadeProgress(start, now time.Time, fade time.Duration) float64 {
	if fade <= 0 {
		return 1
	}
	t := float64(now.Sub(start)) / float64(fade)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// load generates one dequeued chunk. Rasterization, terrain building and
// decoration run without the manager lock; the index and chunk record are
// only updated once generation has succeeded.
func (m *Manager) load(ctx context.Context, entry LoadEntry, now time.Time) ([]Event, error) {
	m.mu.Lock()
	ch, ok := m.chunks[entry.Coord]
	if !ok || ch.state != StateQueued {
		m.mu.Unlock()
		return nil, nil
	}
	ch.state = StateGenerating
	ch.lod = m.lods.Select(entry.Distance)
	lod := ch.lod
	attempt := m.failures[entry.Coord] + 1
	m.mu.Unlock()

	tile, terrainRes, err := m.generate(ctx, entry.Coord, lod)
	if err != nil {
		genErr := &GenerationError{Coord: entry.Coord, Attempt: attempt, Err: err}
		m.mu.Lock()
		delete(m.chunks, entry.Coord)
		m.failures[entry.Coord] = attempt
		m.stats.GenerationFailures++
		m.mu.Unlock()
		if attempt >= m.cfg.MaxGenerationAttempts {
			m.logger.Warn("chunk generation abandoned", "chunk", entry.Coord.String(), "error", genErr)
		} else {
			m.logger.Warn("chunk generation failed, will retry", "chunk", entry.Coord.String(), "error", genErr)
		}
		return nil, genErr
	}

	m.index.Insert(entry.Coord, tile.Samples)

	resources := []Resource{terrainRes}
	decorated := false
	if m.deco != nil {
		res, err := m.decorate(ctx, Decoration{
			Coord:               entry.Coord,
			Footprint:           grid.FootprintOf(entry.Coord, m.cfg.ChunkSize),
			Seed:                tile.Seed,
			LOD:                 lod,
			PlacementMultiplier: m.lods.PlacementMultiplier(lod),
			Islands:             append([]terrain.Island(nil), tile.Islands...),
			Heights:             m.index,
		})
		if err != nil {
			decoErr := &DecorationError{Coord: entry.Coord, Err: err}
			m.logger.Warn("chunk decoration failed, keeping terrain only", "chunk", entry.Coord.String(), "error", decoErr)
			m.mu.Lock()
			m.stats.DecorationFailures++
			m.mu.Unlock()
		} else if res != nil {
			resources = append(resources, res)
			decorated = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, entry.Coord)
	ch.seed = tile.Seed
	ch.islands = tile.Islands
	ch.resources = resources
	ch.decorated = decorated
	ch.generatedAt = now
	ch.fadeStart = now
	ch.state = StateFadingIn
	ch.setOpacity(0)
	events := []Event{{Kind: EventChunkAdded, Coord: entry.Coord, LOD: lod, Islands: ch.islands, At: now}}
	if m.cfg.FadeDuration.Duration() <= 0 {
		ch.state = StateResident
		ch.setOpacity(1)
		events = append(events, Event{Kind: EventChunkResident, Coord: entry.Coord, LOD: lod, Islands: ch.islands, At: now})
	}
	m.stats.Loaded++
	m.logger.Debug("chunk loaded", "chunk", entry.Coord.String(), "lod", lod.String(), "priority", entry.Priority.String(), "islands", len(tile.Islands))
	return events, nil
}

func (m *Manager) generate(ctx context.Context, coord grid.ChunkCoord, lod terrain.LOD) (tile *terrain.Tile, res Resource, err error) {
	defer func() {
		if r := recover(); r != nil {
			tile, res, err = nil, nil, panicError(r)
		}
	}()
	tile, err = m.gen.Rasterize(ctx, coord, lod)
	if err != nil {
		return nil, nil, err
	}
	if tile == nil {
		return nil, nil, fmt.Errorf("generator returned no tile")
	}
	res, err = m.renderer.BuildTerrain(tile)
	if err != nil {
		return nil, nil, fmt.Errorf("build terrain: %w", err)
	}
	if res == nil {
		res = nopResource{}
	}
	return tile, res, nil
}

func (m *Manager) decorate(ctx context.Context, d Decoration) (res Resource, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError(r)
		}
	}()
	return m.deco.Decorate(ctx, d)
}

// Close releases every chunk and empties the index and queue.
func (m *Manager) Close() {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.Drain(0)
	for coord, ch := range m.chunks {
		m.index.Remove(coord)
		ch.release()
		delete(m.chunks, coord)
	}
}

func sortEvents(events []Event) {
	kindOrder := map[EventKind]int{EventChunkAdded: 0, EventChunkResident: 1, EventChunkRemoved: 2}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Kind != b.Kind {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.Coord.X != b.Coord.X {
			return a.Coord.X < b.Coord.X
		}
		return a.Coord.Z < b.Coord.Z
	})
}
