// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the JSON configuration shared by
// the client and server binaries, with a .env overlay for deployment
// secrets/overrides.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/merkle"
)

// Config holds every tunable the client and server binaries share.
// Fields are exported so cmd/ packages and tests can build one by hand
// without going through JSON.
type Config struct {
	// Addr is the server's listen address, e.g. "127.0.0.1:8006".
	Addr string `json:"addr"`
	// DBDriver names the database driver. The server store always opens
	// SQLite through its own hook-wrapped sqlite3 driver and does not read
	// this field.
	DBDriver string `json:"db_driver"`
	// DBDSN is the server's SQLite file path (or DSN for other drivers).
	DBDSN string `json:"db_dsn"`
	// NodeName is this process's HLC node id before normalization.
	NodeName string `json:"node_name"`
	// ServerURL is the base URL the client targets for sync.
	ServerURL string `json:"server_url"`
	// MerkleBase is the trie's digit base; must match across all peers
	// of a group.
	MerkleBase int `json:"merkle_base"`
	// GroupID is the default replication group the client demo uses.
	GroupID string `json:"group_id"`
	// SyncIntervalSeconds is how often the client's periodic sync
	// activity wakes up.
	SyncIntervalSeconds int `json:"sync_interval_seconds"`
	// HTTPTimeoutSeconds bounds the client's sync HTTP call.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`
	// LogLevel is one of err/warn/info/debug.
	LogLevel string `json:"log_level"`
}

// Defaults mirrors spec.md §6's environment defaults: server on
// 127.0.0.1:8006, client targeting localhost:8006, node name "CLIENT",
// base-3 trie.
func Defaults() Config {
	return Config{
		Addr:                "127.0.0.1:8006",
		DBDriver:            "sqlite3",
		DBDSN:               "./var/reconsync.db",
		NodeName:            "CLIENT",
		ServerURL:           "http://localhost:8006",
		MerkleBase:          merkle.DefaultBase,
		GroupID:             "default",
		SyncIntervalSeconds: 3,
		HTTPTimeoutSeconds:  10,
		LogLevel:            "info",
	}
}

//go:embed schema.json
var schemaJSON string

// Load reads path (if non-empty) over Defaults(), overlays CLIENT and
// RECONSYNC_SERVER environment variables the way cc-backend overlays its
// own config with loadEnv("./.env"), and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Validate(data); err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.checkInvariants(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverlay reads a .env file (if present) and then the process
// environment, letting CLIENT and RECONSYNC_SERVER override NodeName and
// ServerURL respectively — the two knobs spec.md §6 calls out by name.
func applyEnvOverlay(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("CLIENT"); v != "" {
		cfg.NodeName = v
	}
	if v := os.Getenv("RECONSYNC_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("RECONSYNC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("RECONSYNC_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("RECONSYNC_MERKLE_BASE"); v != "" {
		if base, err := strconv.Atoi(v); err == nil {
			cfg.MerkleBase = base
		}
	}
}

func (c Config) checkInvariants() error {
	if c.MerkleBase < 2 {
		return fmt.Errorf("config: merkle_base must be >= 2, got %d", c.MerkleBase)
	}
	if c.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("config: sync_interval_seconds must be positive, got %d", c.SyncIntervalSeconds)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("config: http_timeout_seconds must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}

// HTTPTimeout is HTTPTimeoutSeconds as a time.Duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SyncInterval is SyncIntervalSeconds as a time.Duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// NormalizedNode is NodeName padded/truncated to the HLC wire width.
func (c Config) NormalizedNode() string {
	return hlc.NormalizeNode(c.NodeName)
}

// Validate checks instance (raw config JSON) against the embedded
// schema, the way cc-backend's internal/config.Validate checks each
// cluster's config.json before unmarshaling it.
func Validate(instance []byte) error {
	sch, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: instance is not valid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
