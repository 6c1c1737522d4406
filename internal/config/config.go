// Package config handles loading and validating cexrpt configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for cexrpt.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.cexrpt/data. Override: CEXRPT_DATA_DIR env var.
	Engine        EngineConfig         `json:"engine" yaml:"engine"`
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Cache         CacheConfig          `json:"cache" yaml:"cache"`
	Ledger        *LedgerConfig        `json:"ledger,omitempty" yaml:"ledger,omitempty"`               // nil = built-in demo fixture, no database
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// EngineConfig bounds what the engine accepts for execution.
type EngineConfig struct {
	MaxScriptBytes int `json:"max_script_bytes" yaml:"max_script_bytes"` // Submission size ceiling. Default: 65536.
}

// SandboxConfig bounds a single script run.
type SandboxConfig struct {
	BudgetSeconds   int   `json:"budget_seconds" yaml:"budget_seconds"`       // Wall clock budget per run. Default: 30.
	MaxSteps        int64 `json:"max_steps" yaml:"max_steps"`                 // Interpreter step budget. 0 = default (500M), negative = unlimited.
	MaxOutputBytes  int   `json:"max_output_bytes" yaml:"max_output_bytes"`   // Captured print cap. Default: 1 MiB.
	TeardownGraceMS int   `json:"teardown_grace_ms" yaml:"teardown_grace_ms"` // Wait for a cancelled run to unwind before abandoning it. Default: 500.
}

// Budget returns the wall clock budget. 0 = use the runtime default.
func (s SandboxConfig) Budget() time.Duration {
	return time.Duration(s.BudgetSeconds) * time.Second
}

// TeardownGrace returns the teardown grace period. 0 = use the runtime default.
func (s SandboxConfig) TeardownGrace() time.Duration {
	return time.Duration(s.TeardownGraceMS) * time.Millisecond
}

// CacheConfig configures the capability data cache.
type CacheConfig struct {
	TTLSeconds         int    `json:"ttl_seconds" yaml:"ttl_seconds"`                   // Freshness window. 0 = default (300), negative = never reuse.
	LoadTimeoutSeconds int    `json:"load_timeout_seconds" yaml:"load_timeout_seconds"` // Provider load deadline. Default: 10.
	SweepSchedule      string `json:"sweep_schedule" yaml:"sweep_schedule"`             // Cron spec for the stale-entry sweep. Empty = janitor disabled.
}

// TTL returns the freshness window. 0 = use the cache default.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LoadTimeout returns the provider load deadline. 0 = use the cache default.
func (c CacheConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSeconds) * time.Second
}

// LedgerConfig configures the reference data provider backend.
// When nil, scripts read the built-in deterministic demo fixture.
type LedgerConfig struct {
	Driver   string                `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteLedgerConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresLedgerConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// LedgerDriver returns the configured driver, defaulting to "sqlite".
func (l *LedgerConfig) LedgerDriver() string {
	if l != nil && l.Driver != "" {
		return l.Driver
	}
	return "sqlite"
}

// SQLiteLedgerConfig holds SQLite-specific settings.
type SQLiteLedgerConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data_dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresLedgerConfig holds PostgreSQL-specific settings.
type PostgresLedgerConfig struct {
	DSN          string `json:"dsn" yaml:"dsn"` // Override: CEXRPT_DB_DSN env var.
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"` // Default: 10
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"` // Default: 5
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "cexrpt"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeLedger  bool `json:"include_ledger" yaml:"include_ledger"`
	IncludeSandbox bool `json:"include_sandbox" yaml:"include_sandbox"`
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/cexrpt.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".cexrpt", "config.yaml")
}

// Default returns a validated zero-config Config: demo fixture provider,
// built-in sandbox and cache defaults, observability off.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.resolveDataDir()
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()
	cfg.resolveDataDir()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides — env vars take
// precedence over config file values.
func (c *Config) applyEnv() {
	if envDD := os.Getenv("CEXRPT_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}
	if envDSN := os.Getenv("CEXRPT_DB_DSN"); envDSN != "" {
		if c.Ledger == nil {
			c.Ledger = &LedgerConfig{Driver: "postgres"}
		}
		if c.Ledger.Postgres == nil {
			c.Ledger.Postgres = &PostgresLedgerConfig{}
		}
		c.Ledger.Postgres.DSN = envDSN
	}
}

func (c *Config) resolveDataDir() {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.DataDir = filepath.Join(home, ".cexrpt", "data")
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".cexrpt", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite ledger path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "cexrpt.db")
}

func (c *Config) validate() error {
	if c.Engine.MaxScriptBytes < 0 {
		return fmt.Errorf("engine.max_script_bytes must not be negative")
	}
	if c.Sandbox.BudgetSeconds < 0 {
		return fmt.Errorf("sandbox.budget_seconds must not be negative")
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must not be negative")
	}
	if c.Sandbox.TeardownGraceMS < 0 {
		return fmt.Errorf("sandbox.teardown_grace_ms must not be negative")
	}
	if c.Cache.LoadTimeoutSeconds < 0 {
		return fmt.Errorf("cache.load_timeout_seconds must not be negative")
	}
	// Ledger driver validation.
	if c.Ledger != nil {
		switch c.Ledger.LedgerDriver() {
		case "sqlite":
			// valid; path defaults from data_dir
		case "postgres":
			if c.Ledger.Postgres == nil || c.Ledger.Postgres.DSN == "" {
				return fmt.Errorf("ledger.postgres.dsn is required for the postgres driver (or set CEXRPT_DB_DSN)")
			}
		default:
			return fmt.Errorf("ledger.driver %q is not supported (use sqlite or postgres)", c.Ledger.Driver)
		}
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		switch t.Protocol {
		case "", "grpc", "http":
			// valid
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0.0 and 1.0")
		}
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
	}
	return nil
}
