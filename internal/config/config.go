// Package config centralizes acemem configuration. Settings come from the
// environment (optionally seeded from a .env file) or a yaml file; the
// environment wins when both are present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Distance metrics for the vector index.
const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
)

// Store modes. In shared mode every session uses the same store files; in
// isolated mode each session gets its own pair under user_data/.
const (
	ModeShared   = "shared"
	ModeIsolated = "isolated"
)

// Default thresholds reflect the encoder's empirical score distribution:
// squared-L2 distances cluster below ~1.8 for related texts, inner-product
// similarities above ~0.7.
const (
	DefaultThresholdL2     = 1.8
	DefaultThresholdCosine = 0.7
)

// Config holds all settings for the memory substrate and learning loop.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Language  string          `yaml:"language"`
}

// StoreConfig configures the document database and vector index files.
type StoreConfig struct {
	// BasePath is the path prefix for the shared store files; the database
	// lives at <BasePath>.db and the vector index at <BasePath>.faiss.
	BasePath string `yaml:"base_path"`

	// Metric is "l2" or "cosine"; immutable for the lifetime of a store.
	Metric string `yaml:"metric"`

	// DistanceThreshold is the search cutoff. Zero means metric default.
	DistanceThreshold float64 `yaml:"distance_threshold"`

	// Mode is "shared" or "isolated".
	Mode string `yaml:"mode"`
}

// EmbeddingConfig selects and configures the encoder backend.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai".
	Provider string `yaml:"provider"`

	// Model is the embedding model identifier. Models whose id contains
	// "ruri" use the asymmetric query/document prefix convention.
	Model string `yaml:"model"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
}

// OracleConfig configures the language-oracle client used by reflection.
type OracleConfig struct {
	// Provider: "openai" (any OpenAI-compatible endpoint) or "genai".
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store: StoreConfig{
			BasePath: "ace_memory",
			Metric:   MetricL2,
			Mode:     ModeShared,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Model:          "embeddinggemma",
			OllamaEndpoint: "http://localhost:11434",
		},
		Oracle: OracleConfig{
			Provider:    "openai",
			Model:       "gpt-oss-120b",
			BaseURL:     "https://api.ai.sakura.ad.jp/v1/",
			Temperature: 0.0,
		},
		Language: "en",
	}
}

// FromEnv builds a Config from defaults plus environment overrides.
// A .env file in the working directory is loaded first if present.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a yaml config file over defaults, then applies environment
// overrides on top. Only variables actually set in the environment replace
// file values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// applyEnv overwrites individual fields from set environment variables,
// leaving everything else untouched.
func applyEnv(cfg *Config) {
	if v, ok := lookup("ACE_DB_PATH"); ok {
		// Allow "ace_memory.db" style values; extensions are re-derived.
		cfg.Store.BasePath = strings.TrimSuffix(v, ".db")
	}
	if v, ok := lookup("ACE_DISTANCE_METRIC"); ok {
		cfg.Store.Metric = strings.ToLower(v)
	}
	if v, ok := lookup("ACE_DISTANCE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Store.DistanceThreshold = f
		}
	}
	if v, ok := lookup("LTM_MODE"); ok {
		cfg.Store.Mode = strings.ToLower(v)
	}

	setString(&cfg.Embedding.Provider, "ACE_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "ACE_EMBEDDING_MODEL")
	setString(&cfg.Embedding.OllamaEndpoint, "OLLAMA_ENDPOINT")
	setString(&cfg.Embedding.GenAIAPIKey, "GENAI_API_KEY")

	setString(&cfg.Oracle.Provider, "LLM_PROVIDER")
	setString(&cfg.Oracle.Model, "LLM_MODEL")
	setString(&cfg.Oracle.BaseURL, "LLM_BASE_URL")
	setString(&cfg.Oracle.APIKey, "LLM_API_KEY")
	if cfg.Oracle.APIKey == "" {
		setString(&cfg.Oracle.APIKey, "SAKURA_API_KEY")
	}
	if v, ok := lookup("LLM_TEMPERATURE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Oracle.Temperature = f
		}
	}

	if v, ok := lookup("ACE_LANG"); ok {
		cfg.Language = strings.ToLower(v)
	}
}

// Validate checks metric and mode values.
func (c Config) Validate() error {
	switch c.Store.Metric {
	case MetricL2, MetricCosine:
	default:
		return fmt.Errorf("invalid metric %q (use %q or %q)", c.Store.Metric, MetricL2, MetricCosine)
	}
	switch c.Store.Mode {
	case ModeShared, ModeIsolated:
	default:
		return fmt.Errorf("invalid mode %q (use %q or %q)", c.Store.Mode, ModeShared, ModeIsolated)
	}
	return nil
}

// Threshold returns the effective search cutoff: the configured value, or
// the metric default when unset.
func (c Config) Threshold() float64 {
	if c.Store.DistanceThreshold != 0 {
		return c.Store.DistanceThreshold
	}
	if c.Store.Metric == MetricCosine {
		return DefaultThresholdCosine
	}
	return DefaultThresholdL2
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}
