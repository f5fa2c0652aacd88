package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type EmbeddingConfig struct {
	// Backend selects the embedder implementation: "hash" (deterministic,
	// no external dependency) or "server" (OpenAI-compatible /v1/embeddings).
	Backend   string `yaml:"backend"`
	Dimension int    `yaml:"dimension"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type RankingConfig struct {
	TopK int `yaml:"top_k"`
	// StockReference is the stock quantity at which the quantity component
	// of the stock factor saturates at 1.
	StockReference int `yaml:"stock_reference"`
	// RecencyHalfLifeDays controls the exponential decay of the recency
	// factor: a product this many days old scores 0.5.
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`
	// SnapshotMaxAge is how long a candidate snapshot is served before it is
	// rebuilt from the store, as a Go duration string.
	SnapshotMaxAge string `yaml:"snapshot_max_age"`
}

type IngestConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

type EvaluationConfig struct {
	// Interval between periodic evaluation runs as a Go duration string.
	// "0" disables the periodic runner; runs can still be triggered on demand.
	Interval string `yaml:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Embedding: EmbeddingConfig{
			Backend:   "hash",
			Dimension: 256,
			Model:     "feature-hash-v1",
			BaseURL:   "http://localhost:11434/v1",
			APIKeyEnv: "SHOPRANK_EMBED_API_KEY",
		},
		Ranking: RankingConfig{
			TopK:                10,
			StockReference:      100,
			RecencyHalfLifeDays: 30,
			SnapshotMaxAge:      "1m",
		},
		Ingest: IngestConfig{
			PollInterval: "500ms",
		},
		Evaluation: EvaluationConfig{
			Interval: "0",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shoprank"
	}
	return filepath.Join(home, ".shoprank")
}

// Path returns the config file location: $SHOPRANK_CONFIG if set, else
// ./shoprank.yaml if it exists, else ~/.config/shoprank/config.yaml.
func Path() string {
	if p := os.Getenv("SHOPRANK_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("shoprank.yaml"); err == nil {
		return "shoprank.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "shoprank.yaml"
	}
	return filepath.Join(home, ".config", "shoprank", "config.yaml")
}

// Load reads configuration in layers: built-in defaults, then the YAML
// config file (missing file is fine), then SHOPRANK_* environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFrom(Path())
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the config as YAML to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
