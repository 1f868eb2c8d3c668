// Package config loads engine tuning parameters from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

// Area unit policies.
const (
	AreaUnitsCells = "cells"
	AreaUnitsMap   = "map"
)

// Compression levels accepted by compression_level.
var compressionLevels = map[string]bool{
	"default": true,
	"fastest": true,
	"better":  true,
	"best":    true,
}

// EngineConfig holds run tuning. Every field is optional; the Get* methods
// supply defaults for anything the JSON omits, so partial configs are safe.
type EngineConfig struct {
	// Scheduler
	TileSize         *int    `json:"tile_size,omitempty"`
	Workers          *int    `json:"workers,omitempty"` // 0 = GOMAXPROCS
	PrefetchTiles    *int    `json:"prefetch_tiles,omitempty"`
	ProgressInterval *string `json:"progress_interval,omitempty"` // duration string like "10s"; "0s" disables

	// Output
	OutputNodata     *float64 `json:"output_nodata,omitempty"`
	AreaUnits        *string  `json:"area_units,omitempty"`
	CompressionLevel *string  `json:"compression_level,omitempty"`

	// Tiled reader
	BlockCacheTiles *int `json:"block_cache_tiles,omitempty"`

	// Run ledger and report
	LedgerPath    *string `json:"ledger_path,omitempty"`
	HistogramBins *int    `json:"histogram_bins,omitempty"`

	// DataRoot confines input, output and report paths to one directory tree.
	DataRoot *string `json:"data_root,omitempty"`
}

// EmptyEngineConfig returns an EngineConfig with all fields set to nil.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file must have a .json extension and be under 1 MiB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *EngineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/runs/
	}
	for _, path := range candidates {
		if cfg, err := LoadEngineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *EngineConfig) Validate() error {
	if c.TileSize != nil && *c.TileSize < 1 {
		return fmt.Errorf("tile_size must be positive, got %d", *c.TileSize)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.PrefetchTiles != nil && *c.PrefetchTiles < 0 {
		return fmt.Errorf("prefetch_tiles must be non-negative, got %d", *c.PrefetchTiles)
	}
	if c.ProgressInterval != nil && *c.ProgressInterval != "" {
		d, err := time.ParseDuration(*c.ProgressInterval)
		if err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *c.ProgressInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("progress_interval must be non-negative, got %s", d)
		}
	}
	if c.AreaUnits != nil && *c.AreaUnits != AreaUnitsCells && *c.AreaUnits != AreaUnitsMap {
		return fmt.Errorf("area_units must be %q or %q, got %q", AreaUnitsCells, AreaUnitsMap, *c.AreaUnits)
	}
	if c.CompressionLevel != nil && !compressionLevels[*c.CompressionLevel] {
		return fmt.Errorf("unknown compression_level %q", *c.CompressionLevel)
	}
	if c.BlockCacheTiles != nil && *c.BlockCacheTiles < 1 {
		return fmt.Errorf("block_cache_tiles must be positive, got %d", *c.BlockCacheTiles)
	}
	if c.HistogramBins != nil && *c.HistogramBins < 1 {
		return fmt.Errorf("histogram_bins must be positive, got %d", *c.HistogramBins)
	}
	return nil
}

// GetTileSize returns the tile edge length in cells.
func (c *EngineConfig) GetTileSize() int {
	if c.TileSize == nil {
		return 256
	}
	return *c.TileSize
}

// GetWorkers returns the worker count, resolving 0 to GOMAXPROCS.
func (c *EngineConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetPrefetchTiles returns how many tiles the reader may run ahead of the workers.
func (c *EngineConfig) GetPrefetchTiles() int {
	if c.PrefetchTiles == nil {
		return 2
	}
	return *c.PrefetchTiles
}

// GetProgressInterval returns how often progress is logged; 0 disables it.
func (c *EngineConfig) GetProgressInterval() time.Duration {
	if c.ProgressInterval == nil || *c.ProgressInterval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.ProgressInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetOutputNodata returns the sentinel written for undefined cells.
func (c *EngineConfig) GetOutputNodata() float64 {
	if c.OutputNodata == nil {
		return -9999
	}
	return *c.OutputNodata
}

// GetAreaUnits returns AreaUnitsCells or AreaUnitsMap.
func (c *EngineConfig) GetAreaUnits() string {
	if c.AreaUnits == nil {
		return AreaUnitsCells
	}
	return *c.AreaUnits
}

// GetCompressionLevel returns the tiled writer's zstd level name.
func (c *EngineConfig) GetCompressionLevel() string {
	if c.CompressionLevel == nil {
		return "default"
	}
	return *c.CompressionLevel
}

// GetBlockCacheTiles returns the tiled reader's decoded-block cache capacity.
func (c *EngineConfig) GetBlockCacheTiles() int {
	if c.BlockCacheTiles == nil {
		return 64
	}
	return *c.BlockCacheTiles
}

// GetLedgerPath returns the run ledger database path; empty disables recording.
func (c *EngineConfig) GetLedgerPath() string {
	if c.LedgerPath == nil {
		return ""
	}
	return *c.LedgerPath
}

// GetHistogramBins returns the number of report histogram bins.
func (c *EngineConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 32
	}
	return *c.HistogramBins
}

// GetDataRoot returns the directory that all run paths must resolve into;
// empty allows any path.
func (c *EngineConfig) GetDataRoot() string {
	if c.DataRoot == nil {
		return ""
	}
	return *c.DataRoot
}

// Helper functions to create pointers, used by flag overrides and tests.
func PtrInt(v int) *int             { return &v }
func PtrString(v string) *string    { return &v }
func PtrFloat64(v float64) *float64 { return &v }
