package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// MaxIslandsPerChunk bounds terrain.islandsMax; tiles store owner indices
// as int8.
const MaxIslandsPerChunk = 127

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "islandstream://config.schema.json"

// Duration is a JSON-friendly wrapper around time.Duration that accepts human
// readable strings such as "150ms" in configuration files while still
// allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		if s == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration: parse %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// Color is a "#rrggbb" hex triplet.
type Color string

// RGB decodes the color into its channels.
func (c Color) RGB() (r, g, b uint8, err error) {
	s := string(c)
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, fmt.Errorf("color %q: want #rrggbb", s)
	}
	var v [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[1+2*i])
		lo, ok2 := hexNibble(s[2+2*i])
		if !ok1 || !ok2 {
			return 0, 0, 0, fmt.Errorf("color %q: invalid hex digit", s)
		}
		v[i] = hi<<4 | lo
	}
	return v[0], v[1], v[2], nil
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Config captures the tunable parameters of the island streamer.
type Config struct {
	Stream    StreamConfig    `json:"stream"`
	LOD       LODConfig       `json:"lod"`
	Terrain   TerrainConfig   `json:"terrain"`
	Biomes    BiomeSet        `json:"biomes"`
	Placement PlacementConfig `json:"placement"`
	Journal   JournalConfig   `json:"journal"`
	Observer  ObserverConfig  `json:"observer"`
	Log       LogConfig       `json:"log"`
}

type StreamConfig struct {
	ChunkSize             float64  `json:"chunkSize"`             // world units per chunk side
	RenderDistance        int      `json:"renderDistance"`        // chunks
	PreloadDistance       int      `json:"preloadDistance"`       // chunks beyond render distance
	DistanceMetric        string   `json:"distanceMetric"`        // "chebyshev" or "euclidean"
	MinPreloadSpeed       float64  `json:"minPreloadSpeed"`       // world units per second
	MaxLoadsPerTick       int      `json:"maxLoadsPerTick"`       //
	InterLoadDelay        Duration `json:"interLoadDelay"`        // e.g. "100ms"
	FadeDuration          Duration `json:"fadeDuration"`          // opacity ramp 0->1
	EvictAfterTicks       int      `json:"evictAfterTicks"`       // consecutive out-of-range ticks
	MaxGenerationAttempts int      `json:"maxGenerationAttempts"` //
	QueueWarnLength       int      `json:"queueWarnLength"`       // length that triggers a starvation warning
	TickRate              Duration `json:"tickRate"`
}

type LODConfig struct {
	NearDistance   float64   `json:"nearDistance"`   // chunks
	MediumDistance float64   `json:"mediumDistance"` // chunks
	Tiers          []LODTier `json:"tiers"`          // near, medium, far
}

type LODTier struct {
	Name                string  `json:"name"`
	Resolution          int     `json:"resolution"` // grid cells per chunk side
	PlacementMultiplier float64 `json:"placementMultiplier"`
}

type TerrainConfig struct {
	Seed        int64   `json:"seed"`
	Noise       string  `json:"noise"` // "simplex", "perlin" or "value"
	Octaves     int     `json:"octaves"`
	Persistence float64 `json:"persistence"`
	Lacunarity  float64 `json:"lacunarity"`

	BaseFrequency       float64 `json:"baseFrequency"`
	DetailFrequency     float64 `json:"detailFrequency"`
	EdgeFrequency       float64 `json:"edgeFrequency"`
	AngularFrequency    float64 `json:"angularFrequency"`
	PositionalFrequency float64 `json:"positionalFrequency"`
	CoastFrequency      float64 `json:"coastFrequency"`
	BiomeFrequency      float64 `json:"biomeFrequency"`

	IslandsMin     int     `json:"islandsMin"`
	IslandsMax     int     `json:"islandsMax"`
	RadiusMin      float64 `json:"radiusMin"`
	RadiusMax      float64 `json:"radiusMax"`
	DeformStrength float64 `json:"deformStrength"` // fraction of radius
	EdgeRoughness  float64 `json:"edgeRoughness"`  // fraction of radius

	WaterHeight   float64 `json:"waterHeight"`
	HeightStep    float64 `json:"heightStep"`
	LandLift      float64 `json:"landLift"`
	HillAmplitude float64 `json:"hillAmplitude"`
	CliffHeight   float64 `json:"cliffHeight"`
	BeachDepth    float64 `json:"beachDepth"`

	MountainChance    float64 `json:"mountainChance"`
	MaxMountains      int     `json:"maxMountains"`
	MountainHeightMin float64 `json:"mountainHeightMin"`
	MountainHeightMax float64 `json:"mountainHeightMax"`

	DuneAmplitude     float64 `json:"duneAmplitude"`
	TropicalWeight    float64 `json:"tropicalWeight"`
	VolcanicAmplitude float64 `json:"volcanicAmplitude"`
	SnowVariation     float64 `json:"snowVariation"`
	SnowLine          float64 `json:"snowLine"`
	SnowFloor         float64 `json:"snowFloor"`
	TintJitter        int     `json:"tintJitter"`

	Workers int `json:"workers"`
}

type BiomeSet struct {
	Palette []BiomeConfig `json:"palette"`
	Water   Color         `json:"water"`
	Lava    Color         `json:"lava"`
}

type BiomeConfig struct {
	Name             string       `json:"name"`
	BaseHeight       float64      `json:"baseHeight"`
	StructureDensity float64      `json:"structureDensity"` // structures per 250 units of radius
	TreeDensity      float64      `json:"treeDensity"`      // trees per 250 units of radius
	Settlement       bool         `json:"settlement"`
	Bands            []BandConfig `json:"bands"`
}

// BandConfig colors heights below MaxHeight. The last band of a biome has no
// upper limit.
type BandConfig struct {
	Name      string  `json:"name"`
	MaxHeight float64 `json:"maxHeight"`
	Color     Color   `json:"color"`
}

type PlacementConfig struct {
	Enabled                bool    `json:"enabled"`
	LandmarkChance         float64 `json:"landmarkChance"`
	LandmarkAltitude       float64 `json:"landmarkAltitude"`
	MaxTreesPerIsland      int     `json:"maxTreesPerIsland"`
	MaxStructuresPerIsland int     `json:"maxStructuresPerIsland"`

	// Cloud layer streamed with each chunk; zero disables it.
	CloudsPerChunk   int     `json:"cloudsPerChunk"`
	CloudMinAltitude float64 `json:"cloudMinAltitude"`
	CloudMaxAltitude float64 `json:"cloudMaxAltitude"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

type ObserverConfig struct {
	Enabled    bool   `json:"enabled"`
	Listen     string `json:"listen"`
	SendBuffer int    `json:"sendBuffer"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// Load reads configuration from a JSON or YAML file if provided. An empty
// path returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Decode(data, format)
}

// Decode parses a configuration document layered over Default, checks it
// against the embedded schema and validates the result.
func Decode(data []byte, format string) (*Config, error) {
	switch format {
	case "json":
	case "yaml":
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		data = converted
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := checkSchema(data); err != nil {
		return nil, fmt.Errorf("schema config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

func checkSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return err
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			ChunkSize:             2000,
			RenderDistance:        2,
			PreloadDistance:       1,
			DistanceMetric:        "chebyshev",
			MinPreloadSpeed:       0.1,
			MaxLoadsPerTick:       1,
			InterLoadDelay:        Duration(100 * time.Millisecond),
			FadeDuration:          Duration(time.Second),
			EvictAfterTicks:       1,
			MaxGenerationAttempts: 3,
			QueueWarnLength:       64,
			TickRate:              Duration(16 * time.Millisecond),
		},
		LOD: LODConfig{
			NearDistance:   1,
			MediumDistance: 2,
			Tiers: []LODTier{
				{Name: "near", Resolution: 64, PlacementMultiplier: 1},
				{Name: "medium", Resolution: 32, PlacementMultiplier: 0.5},
				{Name: "far", Resolution: 16, PlacementMultiplier: 0.25},
			},
		},
		Terrain: TerrainConfig{
			Seed:        1337,
			Noise:       "simplex",
			Octaves:     3,
			Persistence: 0.5,
			Lacunarity:  2.0,

			BaseFrequency:       0.004,
			DetailFrequency:     0.02,
			EdgeFrequency:       0.05,
			AngularFrequency:    1.5,
			PositionalFrequency: 0.008,
			CoastFrequency:      0.03,
			BiomeFrequency:      0.06,

			IslandsMin:     2,
			IslandsMax:     4,
			RadiusMin:      150,
			RadiusMax:      380,
			DeformStrength: 0.25,
			EdgeRoughness:  0.05,

			WaterHeight:   -2,
			HeightStep:    4,
			LandLift:      24,
			HillAmplitude: 20,
			CliffHeight:   18,
			BeachDepth:    10,

			MountainChance:    0.45,
			MaxMountains:      2,
			MountainHeightMin: 30,
			MountainHeightMax: 90,

			DuneAmplitude:     8,
			TropicalWeight:    1.5,
			VolcanicAmplitude: 14,
			SnowVariation:     10,
			SnowLine:          40,
			SnowFloor:         48,
			TintJitter:        6,

			Workers: 4,
		},
		Biomes:    defaultBiomes(),
		Placement: PlacementConfig{
			Enabled:                true,
			LandmarkChance:         0.3,
			LandmarkAltitude:       120,
			MaxTreesPerIsland:      60,
			MaxStructuresPerIsland: 24,
			CloudsPerChunk:         15,
			CloudMinAltitude:       200,
			CloudMaxAltitude:       1000,
		},
		Journal: JournalConfig{
			Enabled: false,
			Dir:     "journal",
		},
		Observer: ObserverConfig{
			Enabled:    false,
			Listen:     ":8089",
			SendBuffer: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func bands(beach, grass, forest, mountain, snow Color) []BandConfig {
	return []BandConfig{
		{Name: "beach", MaxHeight: 8, Color: beach},
		{Name: "grass", MaxHeight: 28, Color: grass},
		{Name: "forest", MaxHeight: 52, Color: forest},
		{Name: "mountain", MaxHeight: 84, Color: mountain},
		{Name: "snow", Color: snow},
	}
}

func defaultBiomes() BiomeSet {
	return BiomeSet{
		Water: "#2f6fb0",
		Lava:  "#e0481c",
		Palette: []BiomeConfig{
			{Name: "tropical", BaseHeight: 5, StructureDensity: 1, TreeDensity: 30, Bands: bands("#f2e2a0", "#4fbf4a", "#2e8b3a", "#7a6a55", "#f4f4f4")},
			{Name: "desert", BaseHeight: 3, StructureDensity: 0.5, TreeDensity: 2, Bands: bands("#efd9a0", "#e2c27a", "#d0a55e", "#a8794a", "#f0e6d0")},
			{Name: "snowy", BaseHeight: 12, StructureDensity: 0.5, TreeDensity: 8, Bands: bands("#d9dde2", "#e8eef2", "#c9d6dc", "#9aa5ad", "#ffffff")},
			{Name: "volcanic", BaseHeight: 6, StructureDensity: 0, TreeDensity: 3, Bands: bands("#3b3230", "#4a3b35", "#3a2a26", "#2a1e1c", "#5c4a44")},
			{Name: "forest", BaseHeight: 6, StructureDensity: 1, TreeDensity: 45, Bands: bands("#d6c98e", "#3f9a3a", "#24702b", "#6b6152", "#f2f2f2")},
			{Name: "plains", BaseHeight: 5, StructureDensity: 2, TreeDensity: 10, Bands: bands("#e6d79a", "#7cc35a", "#5ea544", "#7e7460", "#f2f2f2")},
			{Name: "savanna", BaseHeight: 4, StructureDensity: 1, TreeDensity: 6, Bands: bands("#e8d49a", "#c2b35a", "#9b9440", "#8a745a", "#efe9dc")},
			{Name: "swamp", BaseHeight: 3, StructureDensity: 0.5, TreeDensity: 20, Bands: bands("#8f8a5c", "#556b2f", "#3d5226", "#5b5a48", "#dcdcd0")},
			{Name: "tundra", BaseHeight: 8, StructureDensity: 0.5, TreeDensity: 4, Bands: bands("#c8c4b0", "#9fa889", "#7d8a6c", "#8f8f8f", "#fafafa")},
			{Name: "village", BaseHeight: 5, StructureDensity: 6, TreeDensity: 12, Settlement: true, Bands: bands("#e6d79a", "#86c25e", "#5f9f48", "#847a66", "#f2f2f2")},
			{Name: "metropolis", BaseHeight: 5, StructureDensity: 12, TreeDensity: 4, Settlement: true, Bands: bands("#d8d0b8", "#9aa08a", "#7c8474", "#6e6e6e", "#f0f0f0")},
		},
	}
}

func (c *Config) Validate() error {
	s := c.Stream
	if s.ChunkSize <= 0 {
		return errors.New("stream.chunkSize must be positive")
	}
	if s.RenderDistance < 0 || s.PreloadDistance < 0 {
		return errors.New("stream render/preload distances cannot be negative")
	}
	if s.DistanceMetric != "chebyshev" && s.DistanceMetric != "euclidean" {
		return fmt.Errorf("stream.distanceMetric %q must be chebyshev or euclidean", s.DistanceMetric)
	}
	if s.MaxLoadsPerTick <= 0 {
		return errors.New("stream.maxLoadsPerTick must be positive")
	}
	if s.InterLoadDelay < 0 || s.FadeDuration < 0 {
		return errors.New("stream durations cannot be negative")
	}
	if s.EvictAfterTicks <= 0 {
		return errors.New("stream.evictAfterTicks must be positive")
	}
	if s.MaxGenerationAttempts <= 0 {
		return errors.New("stream.maxGenerationAttempts must be positive")
	}

	if c.LOD.NearDistance < 0 || c.LOD.MediumDistance < c.LOD.NearDistance {
		return errors.New("lod distances must satisfy 0 <= near <= medium")
	}
	if len(c.LOD.Tiers) != 3 {
		return errors.New("lod.tiers must list exactly three tiers")
	}
	for i, tier := range c.LOD.Tiers {
		if tier.Resolution <= 0 {
			return fmt.Errorf("lod.tiers[%d].resolution must be positive", i)
		}
		if tier.PlacementMultiplier < 0 {
			return fmt.Errorf("lod.tiers[%d].placementMultiplier cannot be negative", i)
		}
	}

	t := c.Terrain
	switch t.Noise {
	case "simplex", "perlin", "value":
	default:
		return fmt.Errorf("terrain.noise %q must be simplex, perlin or value", t.Noise)
	}
	if t.Octaves <= 0 {
		return errors.New("terrain.octaves must be positive")
	}
	if t.IslandsMin <= 0 || t.IslandsMax < t.IslandsMin {
		return errors.New("terrain island counts must satisfy 0 < min <= max")
	}
	if t.IslandsMax > MaxIslandsPerChunk {
		return fmt.Errorf("terrain.islandsMax cannot exceed %d", MaxIslandsPerChunk)
	}
	if t.RadiusMin <= 0 || t.RadiusMax < t.RadiusMin {
		return errors.New("terrain radii must satisfy 0 < min <= max")
	}
	if span := 2 * t.RadiusMax * (1 + t.DeformStrength + t.EdgeRoughness); span >= s.ChunkSize {
		return errors.New("terrain.radiusMax too large for stream.chunkSize")
	}
	if t.WaterHeight >= 0 {
		return errors.New("terrain.waterHeight must be below zero")
	}
	if t.HeightStep <= 0 {
		return errors.New("terrain.heightStep must be positive")
	}
	if t.MountainHeightMax < t.MountainHeightMin {
		return errors.New("terrain.mountainHeightMax must be >= mountainHeightMin")
	}
	if t.Workers < 0 {
		return errors.New("terrain.workers cannot be negative")
	}

	if len(c.Biomes.Palette) == 0 {
		return errors.New("biomes.palette must not be empty")
	}
	seen := make(map[string]bool, len(c.Biomes.Palette))
	for i, b := range c.Biomes.Palette {
		if b.Name == "" {
			return fmt.Errorf("biomes.palette[%d].name must be set", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("biomes.palette[%d].name %q duplicated", i, b.Name)
		}
		seen[b.Name] = true
		if b.BaseHeight < 0 {
			return fmt.Errorf("biomes.palette[%d].baseHeight cannot be negative", i)
		}
		if len(b.Bands) == 0 {
			return fmt.Errorf("biomes.palette[%d].bands must not be empty", i)
		}
		for j, band := range b.Bands {
			if _, _, _, err := band.Color.RGB(); err != nil {
				return fmt.Errorf("biomes.palette[%d].bands[%d]: %w", i, j, err)
			}
			if j > 0 && j < len(b.Bands)-1 && band.MaxHeight <= b.Bands[j-1].MaxHeight {
				return fmt.Errorf("biomes.palette[%d].bands must ascend", i)
			}
		}
	}
	if _, _, _, err := c.Biomes.Water.RGB(); err != nil {
		return fmt.Errorf("biomes.water: %w", err)
	}
	if _, _, _, err := c.Biomes.Lava.RGB(); err != nil {
		return fmt.Errorf("biomes.lava: %w", err)
	}

	if c.Placement.LandmarkChance < 0 || c.Placement.LandmarkChance > 1 {
		return errors.New("placement.landmarkChance must be within [0,1]")
	}
	if c.Placement.CloudsPerChunk < 0 {
		return errors.New("placement.cloudsPerChunk cannot be negative")
	}
	if c.Placement.CloudsPerChunk > 0 && (c.Placement.CloudMinAltitude < 0 || c.Placement.CloudMaxAltitude <= c.Placement.CloudMinAltitude) {
		return errors.New("placement cloud altitudes must satisfy 0 <= min < max")
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return errors.New("journal.dir must be set when journal is enabled")
	}
	if c.Observer.Enabled && c.Observer.Listen == "" {
		return errors.New("observer.listen must be set when observer is enabled")
	}
	return nil
}
