package journal

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "test")
	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(map[string]int{"n": 3}))
	require.NoError(t, w.Close())

	files, err := Files(dir, "test")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "test-2024-05-01-10.jsonl.zst", filepath.Base(files[0]))
	assert.Equal(t, "test-2024-05-01-11.jsonl.zst", filepath.Base(files[1]))

	first, err := ReadFile[map[string]int](files[0])
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"n": 1}, {"n": 2}}, first)
	second, err := ReadFile[map[string]int](files[1])
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"n": 3}}, second)
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewWriter(dir, "test")
		w.now = func() time.Time { return clock }
		require.NoError(t, w.Write(map[string]int{"n": i}))
		require.NoError(t, w.Close())
	}
	files, err := Files(dir, "test")
	require.NoError(t, err)
	require.Len(t, files, 1)
	got, err := ReadFile[map[string]int](files[0])
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

type failingSink struct {
	writeErr error
	closeErr error
	closed   bool
}

func (s *failingSink) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return len(p), nil
}

func (s *failingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func TestWriterReportsSinkCloseError(t *testing.T) {
	diskFull := errors.New("disk full")
	sink := &failingSink{closeErr: diskFull}
	w := NewWriter("/journal", "test")
	w.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	var opened []string
	w.open = func(path string) (io.WriteCloser, error) {
		opened = append(opened, path)
		return sink, nil
	}

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	err := w.Close()
	require.ErrorIs(t, err, diskFull)
	assert.Contains(t, err.Error(), "test-2024-05-01-10.jsonl.zst")
	assert.True(t, sink.closed)
	assert.Equal(t, []string{filepath.Join("/journal", "test-2024-05-01-10.jsonl.zst")}, opened)

	// A closed writer has nothing left to flush.
	assert.NoError(t, w.Close())
}

func TestWriterReportsSinkWriteError(t *testing.T) {
	broken := errors.New("broken pipe")
	sink := &failingSink{writeErr: broken}
	w := NewWriter(t.TempDir(), "test")
	w.open = func(string) (io.WriteCloser, error) { return sink, nil }

	writeErr := w.Write(map[string]string{"chunk": "(0,0)"})
	closeErr := w.Close()
	assert.ErrorIs(t, errors.Join(writeErr, closeErr), broken)
	assert.True(t, sink.closed)
}

func TestWriterSurfacesOpenError(t *testing.T) {
	denied := errors.New("permission denied")
	w := NewWriter(t.TempDir(), "test")
	w.open = func(string) (io.WriteCloser, error) { return nil, denied }

	err := w.Write(map[string]int{"n": 1})
	require.ErrorIs(t, err, denied)
	assert.NoError(t, w.Close())
}

func TestJournalRecordsManagerEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Terrain.Workers = 1
	cfg.LOD.Tiers[0].Resolution = 8
	cfg.Stream.RenderDistance = 0
	cfg.Stream.PreloadDistance = 0
	cfg.Stream.InterLoadDelay = 0
	cfg.Stream.FadeDuration = 0

	raster, err := terrain.NewRasterizer(cfg, nil)
	require.NoError(t, err)
	m, err := world.NewManager(cfg.Stream, world.Options{Generator: raster, LODs: raster.LODs()})
	require.NoError(t, err)

	dir := t.TempDir()
	j := New(dir, nil)
	m.Subscribe(j)

	now := time.Now()
	for i, vp := range []world.Viewpoint{{X: 1000, Z: 1000}, {X: 5000, Z: 1000}} {
		report := m.Tick(context.Background(), now.Add(time.Duration(i)*time.Second), vp)
		require.NoError(t, j.RecordTick(report))
	}
	require.NoError(t, j.RecordTick(world.TickReport{Tick: 99}))
	require.NoError(t, j.Close())

	files, err := Files(filepath.Join(dir, "chunks"), "chunks")
	require.NoError(t, err)
	var records []Record
	for _, f := range files {
		recs, err := ReadFile[Record](f)
		require.NoError(t, err)
		records = append(records, recs...)
	}

	var kinds []string
	for _, r := range records {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []string{"chunk_added", "chunk_resident", "chunk_removed", "chunk_added", "chunk_resident"}, kinds)
	assert.Equal(t, 0, records[0].ChunkX)
	assert.Equal(t, "near", records[0].LOD)
	assert.Len(t, records[0].Islands, len(raster.Islands(grid.ChunkCoord{})))
	assert.Empty(t, records[2].Islands)
	assert.Equal(t, 2, records[3].ChunkX)

	tickFiles, err := Files(filepath.Join(dir, "ticks"), "ticks")
	require.NoError(t, err)
	var ticks []TickRecord
	for _, f := range tickFiles {
		recs, err := ReadFile[TickRecord](f)
		require.NoError(t, err)
		ticks = append(ticks, recs...)
	}
	require.Len(t, ticks, 2)
	assert.Equal(t, 1, ticks[1].Evicted)
	assert.Equal(t, 1, ticks[1].Loaded)
}
