package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultConfigPath is the path to the canonical benchmark defaults file.
const DefaultConfigPath = "config/benchmark.defaults.json"

// Scan convention names accepted by the convention field.
const (
	ConventionDirectory = "directory"
	ConventionFilename  = "filename"
)

// BenchmarkConfig holds the settings shared by the benchmark and kpi tools.
// Fields omitted from a file fall back to the Get* defaults, so partial
// configs are safe.
type BenchmarkConfig struct {
	// Engine invocation
	EnginePath *string `json:"engine_path,omitempty"`
	Workers    *int    `json:"workers,omitempty"` // 0 selects NumCPU-1
	Timeout    *string `json:"timeout,omitempty"` // duration string like "10m"
	QVGA       *bool   `json:"qvga,omitempty"`

	// Sequence discovery
	Convention *string `json:"convention,omitempty"`

	// KPI pipeline
	KPIRoot        *string `json:"kpi_root,omitempty"`
	KPIScriptsDir  *string `json:"kpi_scripts_dir,omitempty"`
	KPIInterpreter *string `json:"kpi_interpreter,omitempty"`

	// Optional run history database
	HistoryPath *string `json:"history_path,omitempty"`
}

// EmptyBenchmarkConfig returns a BenchmarkConfig with all fields unset.
func EmptyBenchmarkConfig() *BenchmarkConfig {
	return &BenchmarkConfig{}
}

// LoadBenchmarkConfig loads a BenchmarkConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadBenchmarkConfig(path string) (*BenchmarkConfig, error) {
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

	cfg := EmptyBenchmarkConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *BenchmarkConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadBenchmarkConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *BenchmarkConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.Timeout != nil && *c.Timeout != "" {
		d, err := time.ParseDuration(*c.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", *c.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must be non-negative, got %s", d)
		}
	}

	if c.Convention != nil {
		switch *c.Convention {
		case "", ConventionDirectory, ConventionFilename:
		default:
			return fmt.Errorf("convention must be %q or %q, got %q", ConventionDirectory, ConventionFilename, *c.Convention)
		}
	}

	if c.EnginePath != nil && *c.EnginePath == "" {
		return fmt.Errorf("engine_path must not be empty")
	}

	return nil
}

// Merge overlays every field set in o onto c.
func (c *BenchmarkConfig) Merge(o *BenchmarkConfig) {
	if o == nil {
		return
	}
	if o.EnginePath != nil {
		c.EnginePath = o.EnginePath
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
	if o.Timeout != nil {
		c.Timeout = o.Timeout
	}
	if o.QVGA != nil {
		c.QVGA = o.QVGA
	}
	if o.Convention != nil {
		c.Convention = o.Convention
	}
	if o.KPIRoot != nil {
		c.KPIRoot = o.KPIRoot
	}
	if o.KPIScriptsDir != nil {
		c.KPIScriptsDir = o.KPIScriptsDir
	}
	if o.KPIInterpreter != nil {
		c.KPIInterpreter = o.KPIInterpreter
	}
	if o.HistoryPath != nil {
		c.HistoryPath = o.HistoryPath
	}
}

// GetEnginePath returns the engine executable path or the default.
func (c *BenchmarkConfig) GetEnginePath() string {
	if c.EnginePath == nil || *c.EnginePath == "" {
		return "bin/measure"
	}
	return *c.EnginePath
}

// GetWorkers returns the worker pool size. Unset or zero selects one fewer
// than the number of CPUs, never less than one.
func (c *BenchmarkConfig) GetWorkers() int {
	if c.Workers != nil && *c.Workers > 0 {
		return *c.Workers
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// GetTimeout parses and returns the per-invocation timeout. Zero disables it.
func (c *BenchmarkConfig) GetTimeout() time.Duration {
	if c.Timeout == nil || *c.Timeout == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.Timeout)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetQVGA returns the qvga value or the default.
func (c *BenchmarkConfig) GetQVGA() bool {
	if c.QVGA == nil {
		return false
	}
	return *c.QVGA
}

// GetConvention returns the scan convention name or the default.
func (c *BenchmarkConfig) GetConvention() string {
	if c.Convention == nil || *c.Convention == "" {
		return ConventionDirectory
	}
	return *c.Convention
}

// GetKPIRoot returns the directory holding the KPI category folders.
func (c *BenchmarkConfig) GetKPIRoot() string {
	if c.KPIRoot == nil || *c.KPIRoot == "" {
		return "benchmark_data/kpis"
	}
	return *c.KPIRoot
}

// GetKPIScriptsDir returns the directory holding the KPI validation scripts.
func (c *BenchmarkConfig) GetKPIScriptsDir() string {
	if c.KPIScriptsDir == nil || *c.KPIScriptsDir == "" {
		return "ThirdParty/tm2-validation-scripts"
	}
	return *c.KPIScriptsDir
}

// GetKPIInterpreter returns the interpreter used to launch KPI scripts.
// Empty means the scripts are executed directly.
func (c *BenchmarkConfig) GetKPIInterpreter() string {
	if c.KPIInterpreter == nil {
		return ""
	}
	return *c.KPIInterpreter
}

// GetHistoryPath returns the history database path, empty when disabled.
func (c *BenchmarkConfig) GetHistoryPath() string {
	if c.HistoryPath == nil {
		return ""
	}
	return *c.HistoryPath
}

// Helper functions to create pointers
func PtrString(v string) *string { return &v }
func PtrInt(v int) *int          { return &v }
func PtrBool(v bool) *bool       { return &v }
