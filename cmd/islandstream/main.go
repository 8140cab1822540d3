package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/journal"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/observer"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/placement"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/server"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/terrain"
	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

func main() {
	var (
		cfgPath string
		glide   server.GlideParams
		headDeg float64
		turnDeg float64
	)
	flag.StringVar(&cfgPath, "config", "", "path to island streamer configuration file (json or yaml)")
	flag.Float64Var(&glide.X, "x", 1000, "start x")
	flag.Float64Var(&glide.Z, "z", 1000, "start z")
	flag.Float64Var(&glide.Y, "altitude", 250, "start altitude")
	flag.Float64Var(&glide.Speed, "speed", 40, "airspeed in world units per second")
	flag.Float64Var(&glide.SinkRate, "sink", 0.5, "sink rate in world units per second")
	flag.Float64Var(&glide.Floor, "floor", 60, "lowest altitude of the scripted glide")
	flag.Float64Var(&headDeg, "heading", 0, "initial heading in degrees, 0 is +x")
	flag.Float64Var(&turnDeg, "turn", 2, "turn rate in degrees per second")
	flag.Parse()

	boot := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	wrote, err := writeConfigFromEnv(cfgPath)
	if err != nil {
		boot.Error("sync config from environment", "error", err)
		os.Exit(1)
	}
	if wrote {
		boot.Info("configuration written from environment", "path", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	glide.Heading = headDeg * math.Pi / 180
	glide.TurnRate = turnDeg * math.Pi / 180

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, glide, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("island streamer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, glide server.GlideParams, logger *slog.Logger) error {
	raster, err := terrain.NewRasterizer(cfg, logger.With("component", "terrain"))
	if err != nil {
		return err
	}

	var deco world.Decorator
	var registry *placement.Registry
	if cfg.Placement.Enabled {
		registry = placement.NewRegistry()
		deco = placement.NewScatterer(cfg.Placement, raster.Palette(), registry, nil, logger.With("component", "placement"))
	}

	manager, err := world.NewManager(cfg.Stream, world.Options{
		Generator: raster,
		LODs:      raster.LODs(),
		Decorator: deco,
		Logger:    logger.With("component", "world"),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	var recorder server.TickRecorder
	if cfg.Journal.Enabled {
		j := journal.New(cfg.Journal.Dir, logger.With("component", "journal"))
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("close journal", "error", err)
			}
		}()
		manager.Subscribe(j)
		recorder = j
	}

	if cfg.Observer.Enabled {
		hub := observer.NewHub(cfg.Observer, manager, logger.With("component", "observer"))
		manager.Subscribe(hub)
		httpSrv := &http.Server{
			Addr:              cfg.Observer.Listen,
			Handler:           hub.Mux(manager.Index()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("observer listening", "addr", cfg.Observer.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observer server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	srv, err := server.New(server.Options{
		Manager:  manager,
		Source:   server.NewGlide(glide),
		Recorder: recorder,
		TickRate: cfg.Stream.TickRate.Duration(),
		Logger:   logger.With("component", "server"),
	})
	if err != nil {
		return err
	}

	logger.Info("island streamer starting",
		"seed", cfg.Terrain.Seed,
		"noise", cfg.Terrain.Noise,
		"chunkSize", cfg.Stream.ChunkSize,
		"renderDistance", cfg.Stream.RenderDistance,
		"preloadDistance", cfg.Stream.PreloadDistance,
	)
	err = srv.Run(ctx)
	if registry != nil {
		logger.Info("placement summary",
			"trees", registry.CountKind(placement.KindTree),
			"structures", registry.CountKind(placement.KindStructure),
			"landmarks", registry.CountKind(placement.KindLandmark),
			"clouds", registry.CountKind(placement.KindCloud),
		)
	}
	return err
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			logger.Error("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
