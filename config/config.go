package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"patternmatch/database"
	"patternmatch/fingerprint"
)

// EnvPrefix namespaces the environment overrides, e.g.
// PATTERNMATCH_MATCH_THRESHOLD=12 sets match.threshold.
const EnvPrefix = "PATTERNMATCH_"

// Config is the full service configuration. Defaults are applied first,
// then an optional yaml file, then environment overrides.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Storage  StorageConfig  `koanf:"storage"`
	Match    MatchConfig    `koanf:"match"`
	Scan     ScanConfig     `koanf:"scan"`
	Events   EventsConfig   `koanf:"events"`
	Log      LogConfig      `koanf:"log"`
}

type DatabaseConfig struct {
	Path        string `koanf:"path"`
	MaxBatchOps int    `koanf:"max_batch_ops"`
	MaxBatchGet int    `koanf:"max_batch_get"`
}

type StorageConfig struct {
	Root string `koanf:"root"`
}

type MatchConfig struct {
	Threshold int `koanf:"threshold"`
}

type ScanConfig struct {
	MaxToScan  int           `koanf:"max_to_scan"`
	PageSize   int           `koanf:"page_size"`
	MaxWorkers int           `koanf:"max_workers"`
	RunBudget  time.Duration `koanf:"run_budget"`
}

type EventsConfig struct {
	Topic string `koanf:"topic"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// Default returns the configuration used when no file or env override is
// present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "patternmatch.db",
			MaxBatchOps: database.DefaultMaxBatchOps,
			MaxBatchGet: database.DefaultBatchGetSize,
		},
		Storage: StorageConfig{
			Root: "./storage",
		},
		Match: MatchConfig{
			Threshold: fingerprint.DefaultThreshold,
		},
		Scan: ScanConfig{
			MaxToScan:  400,
			PageSize:   100,
			MaxWorkers: 8,
			RunBudget:  100 * time.Second,
		},
		Events: EventsConfig{
			Topic: "assets.finalized",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load builds the configuration from defaults, the yaml file at path (when
// it exists) and PATTERNMATCH_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// PATTERNMATCH_SCAN_MAX_TO_SCAN → scan.max_to_scan: only the first
	// underscore separates the section from the key.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(key, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Match.Threshold < 0 || c.Match.Threshold > fingerprint.HashBits {
		return fmt.Errorf("match.threshold %d outside [0, %d]", c.Match.Threshold, fingerprint.HashBits)
	}
	if c.Scan.MaxToScan <= 0 {
		return fmt.Errorf("scan.max_to_scan must be positive, got %d", c.Scan.MaxToScan)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	return nil
}
