package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docuvault/docuvault-backend/internal/logger"
)

// WorkerConfig tunes the extraction worker loop. Values come from the YAML
// file at WORKER_CONFIG_PATH; anything unset falls back to the defaults below.
type WorkerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	StaleCutoff       time.Duration `yaml:"stale_cutoff"`
	ChunkMaxChars     int           `yaml:"chunk_max_chars"`
	QAPairsPerBlob    int           `yaml:"qa_pairs_per_blob"`
	QAMaxConcurrency  int           `yaml:"qa_max_concurrency"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      1 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		MaxAttempts:       3,
		RetryDelay:        30 * time.Second,
		StaleCutoff:       2 * time.Minute,
		ChunkMaxChars:     1200,
		QAPairsPerBlob:    8,
		QAMaxConcurrency:  4,
	}
}

// LoadWorkerConfig reads WORKER_CONFIG_PATH if set, otherwise returns the
// defaults. A set-but-unreadable path is an error so a typo does not silently
// run the worker on defaults.
func LoadWorkerConfig(log *logger.Logger) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()

	path := os.Getenv("WORKER_CONFIG_PATH")
	if path == "" {
		log.Info("WORKER_CONFIG_PATH not set, using default worker config")
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("Failed to read worker config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("Failed to parse worker config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("Invalid worker config %q: %w", path, err)
	}

	log.Info("Loaded worker config", "path", path)
	return cfg, nil
}

func (c WorkerConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if c.StaleCutoff <= c.HeartbeatInterval {
		return fmt.Errorf("stale_cutoff must exceed heartbeat_interval")
	}
	if c.ChunkMaxChars < 100 {
		return fmt.Errorf("chunk_max_chars must be at least 100")
	}
	if c.QAPairsPerBlob < 1 {
		return fmt.Errorf("qa_pairs_per_blob must be at least 1")
	}
	if c.QAMaxConcurrency < 1 {
		return fmt.Errorf("qa_max_concurrency must be at least 1")
	}
	return nil
}
