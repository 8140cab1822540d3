package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"
)

// writeConfigFromEnv materialises a configuration handed over through the
// environment (ISLANDSTREAM_CONFIG_JSON, or base64 YAML in
// ISLANDSTREAM_CONFIG_YAML_B64) into cfgPath.
func writeConfigFromEnv(cfgPath string) (bool, error) {
	jsonPayload := os.Getenv("ISLANDSTREAM_CONFIG_JSON")
	yamlPayload := os.Getenv("ISLANDSTREAM_CONFIG_YAML_B64")

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if cfgPath == "" {
		return false, errors.New("environment provided configuration but no --config path supplied")
	}

	var cfg *config.Config
	var err error
	if jsonPayload != "" {
		cfg, err = config.Decode([]byte(jsonPayload), "json")
		if err != nil {
			return false, fmt.Errorf("decode environment config json: %w", err)
		}
	} else {
		data, derr := base64.StdEncoding.DecodeString(yamlPayload)
		if derr != nil {
			return false, fmt.Errorf("decode environment config yaml: %w", derr)
		}
		cfg, err = config.Decode(data, "yaml")
		if err != nil {
			return false, fmt.Errorf("parse environment config yaml: %w", err)
		}
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}
