package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// Index drivers.
const (
	IndexDriverMemory   = "memory"
	IndexDriverRedis    = "redis"
	IndexDriverPostgres = "postgres"
)

// Config holds the pdfchat configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Index        IndexConfig        `yaml:"index"`
	Blob         BlobConfig         `yaml:"blob"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	LLM          LLMConfig          `yaml:"llm"`
	Normalizer   NormalizerConfig   `yaml:"normalizer"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Router       RouterConfig       `yaml:"router"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Ingest       IngestConfig       `yaml:"ingest"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// RedisConfig holds the Redis connection used by the redis index and the embedding cache.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the connection used by the postgres index.
type PostgresConfig struct {
	DSN              string `yaml:"dsn"`
	Debug            bool   `yaml:"debug"` // log every query
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// IndexConfig selects and tunes the vector index.
type IndexConfig struct {
	Driver          string `yaml:"driver"` // memory, redis, postgres (default: memory)
	Name            string `yaml:"name"`   // FT index, table or collection name
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	PersistPath     string `yaml:"persist_path"` // memory driver only; empty keeps vectors in RAM
}

// BlobConfig holds the original-file store settings.
type BlobConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // metrics label only
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"` // 0 lets the model choose
	MaxBatchSize        int    `yaml:"max_batch_size"`
	Cache               bool   `yaml:"cache"` // requires redis
	CacheTTLSec         int    `yaml:"cache_ttl_sec"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// LLMConfig holds the chat model settings.
type LLMConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// NormalizerConfig tunes page cleanup.
type NormalizerConfig struct {
	MinLineLength int   `yaml:"min_line_length"`
	KeepHeadings  *bool `yaml:"keep_headings"` // default true
}

// ChunkerConfig tunes chunking, in characters.
type ChunkerConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
}

// RouterConfig selects the general-query strategy.
type RouterConfig struct {
	Strategy  string   `yaml:"strategy"` // keyword, embedding (default: keyword)
	Threshold float64  `yaml:"threshold"`
	Keywords  []string `yaml:"keywords"`
	Phrases   []string `yaml:"phrases"`
}

// RetrievalConfig tunes recall and filtering.
type RetrievalConfig struct {
	TopK             int      `yaml:"top_k"`
	Buffer           int      `yaml:"buffer"`
	IndexMinScore    *float64 `yaml:"index_min_score"` // 0 disables; default 0.87
	RelevanceFloor   float64  `yaml:"relevance_floor"`
	SnippetMinLength int      `yaml:"snippet_min_length"`
	MaxSources       int      `yaml:"max_sources"`
	TimeoutSec       int      `yaml:"timeout_sec"`
}

// ConversationConfig bounds the history window and the number of live sessions.
type ConversationConfig struct {
	MaxTurns    int `yaml:"max_turns"`
	MaxSessions int `yaml:"max_sessions"` // least recently used sessions are evicted past this
}

// IngestConfig tunes the embedding fan-out.
type IngestConfig struct {
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
}

// Load reads configuration from a YAML file by environment name (local, dev, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates the config at path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.applyHTTPDefaults()
	c.applyStoreDefaults()
	c.applyModelDefaults()
	c.applyPipelineDefaults()
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
}

func (c *Config) applyStoreDefaults() {
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Postgres.ReadinessTimeout <= 0 {
		c.Postgres.ReadinessTimeout = 10
	}
	if c.Index.Driver == "" {
		c.Index.Driver = IndexDriverMemory
	}
	if c.Index.Name == "" {
		c.Index.Name = "pdfchat_chunks"
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = c.Embedding.Dimensions
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = domain.DefaultVectorConfig().Dimensions
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = filepath.Join("data", "files")
	}
	if c.Blob.BaseURL == "" {
		c.Blob.BaseURL = fmt.Sprintf("http://localhost:%d/files", c.HTTP.Port)
	}
}

func (c *Config) applyModelDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = domain.DefaultVectorConfig().Model
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 30 * 24 * 3600
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = c.Embedding.APIKey
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = c.Embedding.BaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
}

func (c *Config) applyPipelineDefaults() {
	if c.Normalizer.MinLineLength <= 0 {
		c.Normalizer.MinLineLength = 20
	}
	if c.Normalizer.KeepHeadings == nil {
		keep := true
		c.Normalizer.KeepHeadings = &keep
	}
	if c.Chunker.MaxSize <= 0 {
		c.Chunker.MaxSize = 500
	}
	if c.Chunker.Overlap <= 0 {
		c.Chunker.Overlap = 50
	}
	if c.Router.Strategy == "" {
		c.Router.Strategy = "keyword"
	}
	if c.Router.Threshold == 0 {
		c.Router.Threshold = 0.80
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.Buffer <= 0 {
		c.Retrieval.Buffer = 2
	}
	if c.Retrieval.IndexMinScore == nil {
		s := 0.87
		c.Retrieval.IndexMinScore = &s
	}
	if c.Retrieval.RelevanceFloor == 0 {
		c.Retrieval.RelevanceFloor = 0.70
	}
	if c.Retrieval.SnippetMinLength <= 0 {
		c.Retrieval.SnippetMinLength = 150
	}
	if c.Retrieval.MaxSources <= 0 {
		c.Retrieval.MaxSources = 3
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = 30
	}
	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 10
	}
	if c.Conversation.MaxSessions <= 0 {
		c.Conversation.MaxSessions = 1000
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 64
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Index.Driver {
	case IndexDriverMemory:
	case IndexDriverRedis:
		if len(c.Redis.Addrs) == 0 {
			return errors.New("redis.addrs is required for index.driver redis")
		}
	case IndexDriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for index.driver postgres")
		}
	default:
		return fmt.Errorf("index.driver must be memory, redis or postgres, got %q", c.Index.Driver)
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.Dimensions != c.Index.Dimensions {
		return fmt.Errorf("index.dimensions (%d) must match embedding.dimensions (%d)",
			c.Index.Dimensions, c.Embedding.Dimensions)
	}
	if c.Embedding.Cache && len(c.Redis.Addrs) == 0 {
		return errors.New("redis.addrs is required when embedding.cache is enabled")
	}

	if c.Chunker.Overlap >= c.Chunker.MaxSize {
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.max_size (%d)",
			c.Chunker.Overlap, c.Chunker.MaxSize)
	}

	switch c.Router.Strategy {
	case "keyword", "embedding":
	default:
		return fmt.Errorf("router.strategy must be \"keyword\" or \"embedding\", got %q", c.Router.Strategy)
	}
	if c.Router.Threshold < 0.5 || c.Router.Threshold > 1 {
		return fmt.Errorf("router.threshold must be in [0.5, 1], got %v", c.Router.Threshold)
	}

	if s := *c.Retrieval.IndexMinScore; s < 0 || s > 1 {
		return fmt.Errorf("retrieval.index_min_score must be in [0, 1], got %v", s)
	}
	if c.Retrieval.RelevanceFloor < 0 || c.Retrieval.RelevanceFloor > 1 {
		return fmt.Errorf("retrieval.relevance_floor must be in [0, 1], got %v", c.Retrieval.RelevanceFloor)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// relative to this source file, for tests and go run from subdirectories
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b)))
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
