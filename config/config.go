// Package config loads server configuration.
//
// Sources are applied in order, later ones winning:
//
//	defaults -> .env file -> GEARGUARD_* environment -> YAML file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	Store           string        `yaml:"store"`
	DatabasePath    string        `yaml:"database_path"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	SeedScenario    string        `yaml:"seed_scenario"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaults() *Config {
	return &Config{
		Addr:            ":8080",
		Store:           StoreSQLite,
		DatabasePath:    "gearguard.db",
		LogLevel:        "info",
		LogFormat:       "console",
		AllowedOrigins:  []string{"*"},
		MetricsEnabled:  true,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load builds the configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Addr = getEnv("GEARGUARD_ADDR", c.Addr)
	c.Store = getEnv("GEARGUARD_STORE", c.Store)
	c.DatabasePath = getEnv("GEARGUARD_DB_PATH", c.DatabasePath)
	c.LogLevel = getEnv("GEARGUARD_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("GEARGUARD_LOG_FORMAT", c.LogFormat)
	c.SeedScenario = getEnv("GEARGUARD_SEED_SCENARIO", c.SeedScenario)

	if v := os.Getenv("GEARGUARD_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("GEARGUARD_METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEARGUARD_METRICS_ENABLED: %w", err)
		}
		c.MetricsEnabled = enabled
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DatabasePath == "" {
			return errors.New("database_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreMemory, StoreSQLite)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
