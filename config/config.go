// Package config loads marginalia settings from a YAML file, an optional
// .env file, and MARGINALIA_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/marginalia/ai"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendBadger = "badger"
	CacheBackendSQLite = "sqlite"
)

// DefaultTokenEnv names the variable holding the API token.
const DefaultTokenEnv = "MARGINALIA_API_TOKEN"

// AIConfig selects the embedding and completion services.
type AIConfig struct {
	EmbeddingHost      string        `yaml:"embedding_host"`
	CompletionHost     string        `yaml:"completion_host"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	CompletionModel    string        `yaml:"completion_model"`
	ReasoningModel     string        `yaml:"reasoning_model,omitempty"`
	APITokenEnv        string        `yaml:"api_token_env"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	EmbeddingBatchSize int           `yaml:"embedding_batch_size"`
	EmbeddingCacheSize int           `yaml:"embedding_cache_size"`
	EmbeddingCacheTTL  time.Duration `yaml:"embedding_cache_ttl"`
}

// StorageConfig locates the library and cache databases.
type StorageConfig struct {
	Dir          string `yaml:"dir"`
	CacheBackend string `yaml:"cache_backend"`
}

// CacheConfig tunes the query result cache.
type CacheConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	MaxEntries              int           `yaml:"max_entries"`
	TTL                     time.Duration `yaml:"ttl"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
	FuzzyWindow             int           `yaml:"fuzzy_window"`
	SameDocumentSimilarity  float64       `yaml:"same_document_similarity"`
	CrossDocumentSimilarity float64       `yaml:"cross_document_similarity"`
}

// SearchConfig tunes the search engine and concept index.
type SearchConfig struct {
	FragmentSize       int     `yaml:"fragment_size"`
	PoolSize           int     `yaml:"pool_size"`
	ChunkSize          int     `yaml:"chunk_size"`
	EarlyStop          int     `yaml:"early_stop"`
	CurrentBoost       float64 `yaml:"current_boost"`
	LLMScoring         bool    `yaml:"llm_scoring"`
	ConceptConcurrency int     `yaml:"concept_concurrency"`

	// Per-call bounds on provider requests made while searching and indexing.
	EmbeddingTimeout   time.Duration `yaml:"embedding_timeout"`
	ScoringTimeout     time.Duration `yaml:"scoring_timeout"`
	ExtractionTimeout  time.Duration `yaml:"extraction_timeout"`
	ExtractionAttempts int           `yaml:"extraction_attempts"`
}

// RAGConfig tunes answer synthesis.
type RAGConfig struct {
	SynthesisTimeout   time.Duration `yaml:"synthesis_timeout"`
	SynthesisThreshold float64       `yaml:"synthesis_threshold"`
}

// Config is the root configuration.
type Config struct {
	AI      AIConfig      `yaml:"ai"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Search  SearchConfig  `yaml:"search"`
	RAG     RAGConfig     `yaml:"rag"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			EmbeddingHost:      aiDefaults.EmbeddingHost,
			CompletionHost:     aiDefaults.CompletionHost,
			EmbeddingModel:     aiDefaults.EmbeddingModel,
			CompletionModel:    aiDefaults.CompletionModel,
			APITokenEnv:        DefaultTokenEnv,
			EmbeddingBatchSize: aiDefaults.EmbeddingBatchSize,
			EmbeddingCacheSize: aiDefaults.EmbeddingCacheSize,
			EmbeddingCacheTTL:  aiDefaults.EmbeddingCacheTTL,
		},
		Storage: StorageConfig{
			Dir:          defaultDataDir(),
			CacheBackend: CacheBackendBadger,
		},
		Cache: CacheConfig{
			Enabled:                 true,
			MaxEntries:              1000,
			TTL:                     24 * time.Hour,
			SweepInterval:           10 * time.Minute,
			FuzzyWindow:             40,
			SameDocumentSimilarity:  0.85,
			CrossDocumentSimilarity: 0.92,
		},
		Search: SearchConfig{
			FragmentSize:       500,
			PoolSize:           8,
			ChunkSize:          3,
			EarlyStop:          10,
			CurrentBoost:       1.2,
			ConceptConcurrency: 4,
			EmbeddingTimeout:   30 * time.Second,
			ScoringTimeout:     10 * time.Second,
			ExtractionTimeout:  30 * time.Second,
			ExtractionAttempts: 3,
		},
		RAG: RAGConfig{
			SynthesisTimeout:   45 * time.Second,
			SynthesisThreshold: 0.55,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marginalia", "data")
	}
	return "marginalia-data"
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// DefaultPath returns ./marginalia.yaml if it exists, otherwise the user
// config location.
func DefaultPath() string {
	if _, err := os.Stat("marginalia.yaml"); err == nil {
		return "marginalia.yaml"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marginalia", "config.yaml")
	}
	return "marginalia.yaml"
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Storage.CacheBackend {
	case CacheBackendBadger, CacheBackendSQLite:
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Storage.CacheBackend)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must not be negative")
	}
	for name, v := range map[string]float64{
		"cache.same_document_similarity":  c.Cache.SameDocumentSimilarity,
		"cache.cross_document_similarity": c.Cache.CrossDocumentSimilarity,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("config: %s must be in (0,1], got %v", name, v)
		}
	}
	if c.RAG.SynthesisThreshold < 0 || c.RAG.SynthesisThreshold > 1 {
		return fmt.Errorf("config: rag.synthesis_threshold must be in [0,1], got %v", c.RAG.SynthesisThreshold)
	}
	for name, v := range map[string]int{
		"search.fragment_size":       c.Search.FragmentSize,
		"search.pool_size":           c.Search.PoolSize,
		"search.chunk_size":          c.Search.ChunkSize,
		"search.early_stop":          c.Search.EarlyStop,
		"search.extraction_attempts": c.Search.ExtractionAttempts,
	} {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, v)
		}
	}
	for name, v := range map[string]time.Duration{
		"search.embedding_timeout":  c.Search.EmbeddingTimeout,
		"search.scoring_timeout":    c.Search.ScoringTimeout,
		"search.extraction_timeout": c.Search.ExtractionTimeout,
		"rag.synthesis_timeout":     c.RAG.SynthesisTimeout,
	} {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, v)
		}
	}
	if c.Search.CurrentBoost < 1 {
		return fmt.Errorf("config: search.current_boost must be at least 1, got %v", c.Search.CurrentBoost)
	}
	return nil
}

// AIConfig converts the AI section into an ai.Config, reading the token
// from the configured environment variable.
func (c *Config) AIConfig() *ai.Config {
	tokenEnv := c.AI.APITokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithCompletionHost(c.AI.CompletionHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithCompletionModel(c.AI.CompletionModel),
		ai.WithReasoningModel(c.AI.ReasoningModel),
		ai.WithAPIToken(os.Getenv(tokenEnv)),
		ai.WithRequestsPerSecond(c.AI.RequestsPerSecond),
		ai.WithEmbeddingCache(c.AI.EmbeddingCacheSize, c.AI.EmbeddingCacheTTL),
		func(cfg *ai.Config) { cfg.EmbeddingBatchSize = c.AI.EmbeddingBatchSize },
	)
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides settings from MARGINALIA_* variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("MARGINALIA_HOST", &cfg.AI.EmbeddingHost)
	str("MARGINALIA_HOST", &cfg.AI.CompletionHost)
	str("MARGINALIA_EMBEDDING_HOST", &cfg.AI.EmbeddingHost)
	str("MARGINALIA_COMPLETION_HOST", &cfg.AI.CompletionHost)
	str("MARGINALIA_EMBEDDING_MODEL", &cfg.AI.EmbeddingModel)
	str("MARGINALIA_COMPLETION_MODEL", &cfg.AI.CompletionModel)
	str("MARGINALIA_REASONING_MODEL", &cfg.AI.ReasoningModel)
	str("MARGINALIA_DATA_DIR", &cfg.Storage.Dir)
	str("MARGINALIA_CACHE_BACKEND", &cfg.Storage.CacheBackend)

	var errs []error
	if v, ok := lookup("MARGINALIA_REQUESTS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("MARGINALIA_REQUESTS_PER_SECOND", err))
		cfg.AI.RequestsPerSecond = f
	}
	if v, ok := lookup("MARGINALIA_CACHE_MAX_ENTRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("MARGINALIA_CACHE_MAX_ENTRIES", err))
		cfg.Cache.MaxEntries = n
	}
	if v, ok := lookup("MARGINALIA_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("MARGINALIA_CACHE_TTL", err))
		cfg.Cache.TTL = d
	}
	if v, ok := lookup("MARGINALIA_CACHE_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("MARGINALIA_CACHE_ENABLED", err))
		cfg.Cache.Enabled = b
	}
	return errors.Join(errs...)
}

func envErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("config: %s: %w", name, err)
}
