package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
)

func TestWriteConfigFromEnvJSON(t *testing.T) {
	t.Setenv("ISLANDSTREAM_CONFIG_YAML_B64", "")

	cfg := config.Default()
	cfg.Terrain.Seed = 4242
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	t.Setenv("ISLANDSTREAM_CONFIG_JSON", string(data))

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Terrain.Seed != 4242 {
		t.Fatalf("unexpected seed: %d", loaded.Terrain.Seed)
	}
}

func TestWriteConfigFromEnvYAML(t *testing.T) {
	doc := "terrain:\n  seed: 77\nstream:\n  renderDistance: 3\n"
	t.Setenv("ISLANDSTREAM_CONFIG_JSON", "")
	t.Setenv("ISLANDSTREAM_CONFIG_YAML_B64", base64.StdEncoding.EncodeToString([]byte(doc)))

	path := filepath.Join(t.TempDir(), "config.json")
	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var decoded config.Config
	if err := json.Unmarshal(contents, &decoded); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if decoded.Terrain.Seed != 77 || decoded.Stream.RenderDistance != 3 {
		t.Fatalf("overrides lost: seed=%d render=%d", decoded.Terrain.Seed, decoded.Stream.RenderDistance)
	}
	if decoded.Stream.ChunkSize != config.Default().Stream.ChunkSize {
		t.Fatalf("defaults not layered under yaml payload")
	}
}

func TestWriteConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("ISLANDSTREAM_CONFIG_JSON", `{"terrain": {"waterHeight": 3}}`)
	t.Setenv("ISLANDSTREAM_CONFIG_YAML_B64", "")

	path := filepath.Join(t.TempDir(), "config.json")
	_, err := writeConfigFromEnv(path)
	if err == nil || !strings.Contains(err.Error(), "terrain.waterHeight must be below zero") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("invalid config should not be written")
	}
}

func TestWriteConfigFromEnvRequiresPath(t *testing.T) {
	t.Setenv("ISLANDSTREAM_CONFIG_JSON", "{}")
	t.Setenv("ISLANDSTREAM_CONFIG_YAML_B64", "")
	if _, err := writeConfigFromEnv(""); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestWriteConfigFromEnvNoPayload(t *testing.T) {
	t.Setenv("ISLANDSTREAM_CONFIG_JSON", "")
	t.Setenv("ISLANDSTREAM_CONFIG_YAML_B64", "")

	wrote, err := writeConfigFromEnv(filepath.Join(t.TempDir(), "unused.json"))
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if wrote {
		t.Fatalf("expected no config to be written")
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "chunk", "(0,0)")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("expected a json record: %v (%s)", err, out)
	}
	if rec["msg"] != "shown" || rec["chunk"] != "(0,0)" {
		t.Fatalf("unexpected record %v", rec)
	}
}
