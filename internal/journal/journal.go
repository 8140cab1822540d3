package journal

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

// Record is one chunk lifecycle notification as stored on disk.
type Record struct {
	Kind    string    `json:"kind"`
	ChunkX  int       `json:"cx"`
	ChunkZ  int       `json:"cz"`
	LOD     string    `json:"lod"`
	Tick    uint64    `json:"tick"`
	At      time.Time `json:"at"`
	Islands []Island  `json:"islands,omitempty"`
}

type Island struct {
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
	Biome  string  `json:"biome"`
}

// TickRecord summarises a tick that changed the working set.
type TickRecord struct {
	Tick      uint64 `json:"tick"`
	CenterX   int    `json:"cx"`
	CenterZ   int    `json:"cz"`
	Loaded    int    `json:"loaded"`
	Evicted   int    `json:"evicted"`
	Cancelled int    `json:"cancelled"`
	Failures  int    `json:"failures"`
	QueueLen  int    `json:"queue"`
	Starved   bool   `json:"starved,omitempty"`
}

// Journal records chunk events and tick summaries into two compressed
// streams under dir/chunks and dir/ticks.
type Journal struct {
	events *Writer
	ticks  *Writer
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		events: NewWriter(filepath.Join(dir, "chunks"), "chunks"),
		ticks:  NewWriter(filepath.Join(dir, "ticks"), "ticks"),
		logger: logger,
	}
}

// HandleChunkEvent implements world.Listener. Write failures are logged and
// never reach the manager.
func (j *Journal) HandleChunkEvent(e world.Event) {
	rec := Record{
		Kind:   string(e.Kind),
		ChunkX: e.Coord.X,
		ChunkZ: e.Coord.Z,
		LOD:    e.LOD.String(),
		Tick:   e.Tick,
		At:     e.At.UTC(),
	}
	if e.Kind == world.EventChunkAdded {
		for _, is := range e.Islands {
			rec.Islands = append(rec.Islands, Island{X: is.CenterX, Z: is.CenterZ, Radius: is.Radius, Biome: is.Biome.String()})
		}
	}
	if err := j.events.Write(rec); err != nil {
		j.logger.Error("journal chunk event", "error", err, "chunk", e.Coord.String())
	}
}

// RecordTick stores a summary of report when the tick did any work.
func (j *Journal) RecordTick(report world.TickReport) error {
	if len(report.Loaded) == 0 && len(report.Evicted) == 0 && len(report.Cancelled) == 0 && len(report.Failures) == 0 {
		return nil
	}
	return j.ticks.Write(TickRecord{
		Tick:      report.Tick,
		CenterX:   report.Center.X,
		CenterZ:   report.Center.Z,
		Loaded:    len(report.Loaded),
		Evicted:   len(report.Evicted),
		Cancelled: len(report.Cancelled),
		Failures:  len(report.Failures),
		QueueLen:  report.QueueLen,
		Starved:   report.Starved,
	})
}

func (j *Journal) Close() error {
	err := j.events.Close()
	if terr := j.ticks.Close(); err == nil {
		err = terr
	}
	return err
}
