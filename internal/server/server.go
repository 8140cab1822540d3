package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

const statsInterval = 5 * time.Second

// TickRecorder persists per-tick summaries.
type TickRecorder interface {
	RecordTick(world.TickReport) error
}

type tickerFactory func(time.Duration) (<-chan time.Time, func())

type timeSource func() time.Time

func defaultTickerFactory() tickerFactory {
	return func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
}

// Options wires the server loop. Manager and Source are required.
type Options struct {
	Manager  *world.Manager
	Source   ViewpointSource
	Recorder TickRecorder
	TickRate time.Duration
	Logger   *slog.Logger
}

// Server drives the chunk manager from a viewpoint source at a fixed tick
// rate. All lifecycle mutation happens on the Run goroutine.
type Server struct {
	manager  *world.Manager
	source   ViewpointSource
	recorder TickRecorder
	tick     time.Duration
	logger   *slog.Logger

	newTicker tickerFactory
	now       timeSource
	onTick    func(world.TickReport)
}

func New(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, errors.New("server requires a chunk manager")
	}
	if opts.Source == nil {
		return nil, errors.New("server requires a viewpoint source")
	}
	tick := opts.TickRate
	if tick <= 0 {
		tick = 16 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:   opts.Manager,
		source:    opts.Source,
		recorder:  opts.Recorder,
		tick:      tick,
		logger:    logger,
		newTicker: defaultTickerFactory(),
		now:       time.Now,
	}, nil
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (s *Server) Run(ctx context.Context) error {
	tickerC, stop := s.newTicker(s.tick)
	defer stop()

	ready := s.manager.Ready()
	last := s.now()
	lastStats := last
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
			ready = nil
			vp := s.source.Viewpoint()
			s.logger.Info("terrain ready under viewpoint", "x", vp.X, "z", vp.Z)
		case now := <-tickerC:
			delta := clampDelta(now.Sub(last), s.tick)
			last = now
			report := s.step(ctx, now, delta)
			if now.Sub(lastStats) >= statsInterval {
				lastStats = now
				s.logStats(report)
			}
		}
	}
}

func (s *Server) step(ctx context.Context, now time.Time, delta time.Duration) world.TickReport {
	s.source.Advance(delta)
	report := s.manager.Tick(ctx, now, s.source.Viewpoint())
	if s.recorder != nil {
		if err := s.recorder.RecordTick(report); err != nil {
			s.logger.Error("record tick", "error", err, "tick", report.Tick)
		}
	}
	for _, err := range report.Failures {
		s.logger.Debug("tick failure", "tick", report.Tick, "error", err)
	}
	if s.onTick != nil {
		s.onTick(report)
	}
	return report
}

func (s *Server) logStats(report world.TickReport) {
	stats := s.manager.Stats()
	s.logger.Info("stream stats",
		"tick", report.Tick,
		"center", report.Center.String(),
		"resident", stats.Resident,
		"queued", stats.Queued,
		"loaded", stats.Loaded,
		"evicted", stats.Evicted,
		"cancelled", stats.Cancelled,
		"generationFailures", stats.GenerationFailures,
		"decorationFailures", stats.DecorationFailures,
	)
}

// clampDelta replaces zero and oversized frame gaps with the nominal tick so
// a stalled process does not teleport the viewpoint.
func clampDelta(delta, tick time.Duration) time.Duration {
	if delta <= 0 || delta > 10*tick {
		return tick
	}
	return delta
}
