package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/finlens-ai/finlens/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all FinLens configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Library   LibraryConfig   `yaml:"library"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
}

// CacheConfig controls the budget cache and per-API daily limits.
// A missing entry in Limits means the API is unmetered.
type CacheConfig struct {
	DBPath  string           `yaml:"db_path"`
	Enabled bool             `yaml:"enabled"`
	TTL     time.Duration    `yaml:"ttl"`
	Limits  map[string]int64 `yaml:"daily_limits"`
}

// RetrievalConfig controls chunking and passage selection.
type RetrievalConfig struct {
	MaxChunkLength  int `yaml:"max_chunk_length"`
	MaxPassages     int `yaml:"max_passages"`
	RerankThreshold int `yaml:"rerank_threshold"`
}

// LibraryConfig locates the document library.
type LibraryConfig struct {
	Dir   string            `yaml:"dir"`
	Books []models.Document `yaml:"books"`
}

// LLMConfig defines the upstream completion endpoint (OpenAI-compatible).
type LLMConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SearchConfig defines the upstream search/news endpoint.
type SearchConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			DBPath:  "finlens.db",
			Enabled: true,
			TTL:     time.Hour,
			Limits: map[string]int64{
				"llm":    500,
				"search": 100,
			},
		},
		Retrieval: RetrievalConfig{
			MaxChunkLength:  500,
			MaxPassages:     3,
			RerankThreshold: 8,
		},
		Library: LibraryConfig{
			Dir: "data/books",
		},
		LLM: LLMConfig{
			URL:   "https://api.groq.com/openai",
			Model: "llama-3.3-70b-versatile",
		},
		Search: SearchConfig{
			URL: "https://api.tavily.com",
		},
	}
}

// Load reads a YAML config file, expands environment variables in it,
// and applies FINLENS_* environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides config fields from FINLENS_* environment variables.
// Per-API limits use FINLENS_LIMIT_<NAME>, e.g. FINLENS_LIMIT_LLM=200.
func (c *Config) ApplyEnv() {
	c.Cache.DBPath = getEnvString("FINLENS_CACHE_DB", c.Cache.DBPath)
	c.Cache.Enabled = getEnvBool("FINLENS_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.TTL = getEnvDuration("FINLENS_CACHE_TTL", c.Cache.TTL)
	c.Retrieval.MaxChunkLength = getEnvInt("FINLENS_MAX_CHUNK_LENGTH", c.Retrieval.MaxChunkLength)
	c.Retrieval.MaxPassages = getEnvInt("FINLENS_MAX_PASSAGES", c.Retrieval.MaxPassages)
	c.Retrieval.RerankThreshold = getEnvInt("FINLENS_RERANK_THRESHOLD", c.Retrieval.RerankThreshold)
	c.Library.Dir = getEnvString("FINLENS_LIBRARY_DIR", c.Library.Dir)
	c.LLM.URL = getEnvString("FINLENS_LLM_URL", c.LLM.URL)
	c.LLM.APIKey = getEnvString("FINLENS_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnvString("FINLENS_LLM_MODEL", c.LLM.Model)
	c.Search.URL = getEnvString("FINLENS_SEARCH_URL", c.Search.URL)
	c.Search.APIKey = getEnvString("FINLENS_SEARCH_API_KEY", c.Search.APIKey)

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "FINLENS_LIMIT_") {
			continue
		}
		api := strings.ToLower(strings.TrimPrefix(name, "FINLENS_LIMIT_"))
		if api == "" {
			continue
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			if c.Cache.Limits == nil {
				c.Cache.Limits = make(map[string]int64)
			}
			c.Cache.Limits[api] = n
		}
	}
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
