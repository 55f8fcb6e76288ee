// Package config loads environment-based settings and the partners
// definition file.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for partnerlink.
type Config struct {
	// PartnersFile is the YAML file defining downstream partners.
	PartnersFile string `env:"PARTNERS_FILE" envDefault:"partners.yaml"`

	// QueuePath is the bbolt database holding queued export records.
	// Defaults to ~/.partnerlink/queue.db.
	QueuePath string `env:"QUEUE_PATH"`

	// AuthBypass disables all credential handling: requests are
	// forwarded to partners without tokens. For test and mocked
	// environments only.
	AuthBypass bool `env:"AUTH_BYPASS" envDefault:"false"`

	// Drain loop tuning.
	DrainInterval time.Duration `env:"DRAIN_INTERVAL" envDefault:"30s"`
	DrainBatch    int           `env:"DRAIN_BATCH" envDefault:"64"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing partner credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.QueuePath == "" {
		path, err := defaultQueuePath()
		if err != nil {
			return nil, err
		}

		cfg.QueuePath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve PartnersFile to an absolute path at startup so the file
	// watcher keeps working if the process later changes directory.
	absFile, err := filepath.Abs(cfg.PartnersFile)
	if err != nil {
		return nil, fmt.Errorf("resolving partners file to absolute path: %w", err)
	}

	cfg.PartnersFile = absFile

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PartnersFile == "" {
		return fmt.Errorf("PARTNERS_FILE must not be empty")
	}

	if c.DrainInterval <= 0 {
		return fmt.Errorf("DRAIN_INTERVAL must be positive")
	}

	if c.DrainBatch <= 0 {
		return fmt.Errorf("DRAIN_BATCH must be positive")
	}

	return nil
}

// defaultQueuePath returns ~/.partnerlink/queue.db.
func defaultQueuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".partnerlink", "queue.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
