package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "non positive chunk size",
			mutate: func(cfg *Config) {
				cfg.Stream.ChunkSize = 0
			},
			wantErr: "stream.chunkSize must be positive",
		},
		{
			name: "negative render distance",
			mutate: func(cfg *Config) {
				cfg.Stream.RenderDistance = -1
			},
			wantErr: "stream render/preload distances cannot be negative",
		},
		{
			name: "unknown metric",
			mutate: func(cfg *Config) {
				cfg.Stream.DistanceMetric = "manhattan"
			},
			wantErr: `stream.distanceMetric "manhattan" must be chebyshev or euclidean`,
		},
		{
			name: "zero loads per tick",
			mutate: func(cfg *Config) {
				cfg.Stream.MaxLoadsPerTick = 0
			},
			wantErr: "stream.maxLoadsPerTick must be positive",
		},
		{
			name: "negative fade",
			mutate: func(cfg *Config) {
				cfg.Stream.FadeDuration = Duration(-time.Second)
			},
			wantErr: "stream durations cannot be negative",
		},
		{
			name: "zero eviction ticks",
			mutate: func(cfg *Config) {
				cfg.Stream.EvictAfterTicks = 0
			},
			wantErr: "stream.evictAfterTicks must be positive",
		},
		{
			name: "lod distances inverted",
			mutate: func(cfg *Config) {
				cfg.LOD.NearDistance = 3
			},
			wantErr: "lod distances must satisfy 0 <= near <= medium",
		},
		{
			name: "missing lod tier",
			mutate: func(cfg *Config) {
				cfg.LOD.Tiers = cfg.LOD.Tiers[:2]
			},
			wantErr: "lod.tiers must list exactly three tiers",
		},
		{
			name: "zero lod resolution",
			mutate: func(cfg *Config) {
				cfg.LOD.Tiers[1].Resolution = 0
			},
			wantErr: "lod.tiers[1].resolution must be positive",
		},
		{
			name: "unknown noise backend",
			mutate: func(cfg *Config) {
				cfg.Terrain.Noise = "worley"
			},
			wantErr: `terrain.noise "worley" must be simplex, perlin or value`,
		},
		{
			name: "island counts inverted",
			mutate: func(cfg *Config) {
				cfg.Terrain.IslandsMax = 1
			},
			wantErr: "terrain island counts must satisfy 0 < min <= max",
		},
		{
			name: "too many islands per chunk",
			mutate: func(cfg *Config) {
				cfg.Terrain.IslandsMax = 128
			},
			wantErr: "terrain.islandsMax cannot exceed 127",
		},
		{
			name: "radius exceeds chunk",
			mutate: func(cfg *Config) {
				cfg.Terrain.RadiusMax = 900
			},
			wantErr: "terrain.radiusMax too large for stream.chunkSize",
		},
		{
			name: "water above zero",
			mutate: func(cfg *Config) {
				cfg.Terrain.WaterHeight = 1
			},
			wantErr: "terrain.waterHeight must be below zero",
		},
		{
			name: "negative terrain workers",
			mutate: func(cfg *Config) {
				cfg.Terrain.Workers = -1
			},
			wantErr: "terrain.workers cannot be negative",
		},
		{
			name: "missing biome name",
			mutate: func(cfg *Config) {
				cfg.Biomes.Palette[0].Name = ""
			},
			wantErr: "biomes.palette[0].name must be set",
		},
		{
			name: "duplicate biome",
			mutate: func(cfg *Config) {
				cfg.Biomes.Palette[1].Name = cfg.Biomes.Palette[0].Name
			},
			wantErr: `biomes.palette[1].name "tropical" duplicated`,
		},
		{
			name: "bad band color",
			mutate: func(cfg *Config) {
				cfg.Biomes.Palette[2].Bands[0].Color = "blue"
			},
			wantErr: `biomes.palette[2].bands[0]: color "blue": want #rrggbb`,
		},
		{
			name: "landmark chance above one",
			mutate: func(cfg *Config) {
				cfg.Placement.LandmarkChance = 1.5
			},
			wantErr: "placement.landmarkChance must be within [0,1]",
		},
		{
			name: "negative cloud count",
			mutate: func(cfg *Config) {
				cfg.Placement.CloudsPerChunk = -1
			},
			wantErr: "placement.cloudsPerChunk cannot be negative",
		},
		{
			name: "cloud band inverted",
			mutate: func(cfg *Config) {
				cfg.Placement.CloudMaxAltitude = cfg.Placement.CloudMinAltitude
			},
			wantErr: "placement cloud altitudes must satisfy 0 <= min < max",
		},
		{
			name: "journal without dir",
			mutate: func(cfg *Config) {
				cfg.Journal.Enabled = true
				cfg.Journal.Dir = ""
			},
			wantErr: "journal.dir must be set when journal is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("unexpected error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestColorRGB(t *testing.T) {
	r, g, b, err := Color("#2F6fb0").RGB()
	if err != nil {
		t.Fatalf("decode color: %v", err)
	}
	if r != 0x2f || g != 0x6f || b != 0xb0 {
		t.Fatalf("unexpected channels: %d %d %d", r, g, b)
	}
	if _, _, _, err := Color("#12345z").RGB(); err == nil {
		t.Fatalf("expected invalid digit error")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default configuration mismatch:\nwant: %#v\n got: %#v", want, cfg)
	}
}

func TestLoadReadsFileAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Stream.RenderDistance = 3
	cfg.Stream.FadeDuration = Duration(750 * time.Millisecond)
	cfg.Terrain.Seed = 42

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
stream:
  renderDistance: 4
  distanceMetric: euclidean
  interLoadDelay: 250ms
terrain:
  seed: 7
  noise: perlin
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got.Stream.RenderDistance != 4 || got.Stream.DistanceMetric != "euclidean" {
		t.Fatalf("stream overrides not applied: %+v", got.Stream)
	}
	if got.Stream.InterLoadDelay.Duration() != 250*time.Millisecond {
		t.Fatalf("unexpected inter-load delay %s", got.Stream.InterLoadDelay.Duration())
	}
	if got.Terrain.Seed != 7 || got.Terrain.Noise != "perlin" {
		t.Fatalf("terrain overrides not applied: seed=%d noise=%s", got.Terrain.Seed, got.Terrain.Noise)
	}
	if got.Stream.ChunkSize != Default().Stream.ChunkSize {
		t.Fatalf("unset fields should keep defaults, chunk size %v", got.Stream.ChunkSize)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{"stream": {"distanceMetric": "taxicab"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected schema failure")
	}
	if !strings.HasPrefix(err.Error(), "schema config:") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Terrain.WaterHeight = 5

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatalf("expected load to fail")
	}
	if !strings.Contains(err.Error(), "validate config: terrain.waterHeight must be below zero") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	if _, err := Decode([]byte("{}"), "toml"); err == nil || err.Error() != `unsupported config format "toml"` {
		t.Fatalf("unexpected error: %v", err)
	}
}
