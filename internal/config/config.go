// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"RAG_HOST" yaml:"host"`
	Port int    `envconfig:"RAG_PORT" yaml:"port"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Inference configuration (embeddings, sparse encodings, rerank scores)
	Inference InferenceConfig `yaml:"inference"`

	// LLM configuration (routing, rewriting, generation)
	LLM LLMConfig `yaml:"llm"`

	// Retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Eval configuration
	Eval EvalConfig `yaml:"eval"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Ingest configuration
	Ingest IngestConfig `yaml:"ingest"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `envconfig:"QDRANT_HOST" yaml:"host"`
	Port       int    `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey     string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS     bool   `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	Collection string `envconfig:"QDRANT_COLLECTION" yaml:"collection"`
}

// InferenceConfig holds settings for the embedding/rerank inference service.
type InferenceConfig struct {
	URL             string `envconfig:"RAG_INFERENCE_URL" yaml:"url"`
	EmbedModel      string `envconfig:"RAG_EMBED_MODEL" yaml:"embed_model"`
	SparseModel     string `envconfig:"RAG_SPARSE_MODEL" yaml:"sparse_model"`
	RerankModel     string `envconfig:"RAG_RERANK_MODEL" yaml:"rerank_model"`
	EmbedDim        int    `envconfig:"RAG_EMBED_DIM" yaml:"embed_dim"`
	TimeoutSeconds  int    `envconfig:"RAG_INFERENCE_TIMEOUT" yaml:"timeout_seconds"`
	RerankBatchSize int    `envconfig:"RAG_RERANK_BATCH_SIZE" yaml:"rerank_batch_size"`
}

// LLMConfig holds settings for the chat completion service.
type LLMConfig struct {
	URL            string  `envconfig:"RAG_LLM_URL" yaml:"url"`
	APIKey         string  `envconfig:"RAG_LLM_API_KEY" yaml:"api_key"`
	RouterModel    string  `envconfig:"RAG_ROUTER_MODEL" yaml:"router_model"`
	RewriteModel   string  `envconfig:"RAG_REWRITE_MODEL" yaml:"rewrite_model"`
	GeneratorModel string  `envconfig:"RAG_GENERATOR_MODEL" yaml:"generator_model"`
	Temperature    float64 `envconfig:"RAG_LLM_TEMPERATURE" yaml:"temperature"`
	TimeoutSeconds int     `envconfig:"RAG_LLM_TIMEOUT" yaml:"timeout_seconds"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	CandidateLimit int `envconfig:"RAG_CANDIDATE_LIMIT" yaml:"candidate_limit"`
	RRFConstant    int `envconfig:"RAG_RRF_CONSTANT" yaml:"rrf_constant"`
	TimeoutSeconds int `envconfig:"RAG_RETRIEVAL_TIMEOUT" yaml:"timeout_seconds"`
	// UseLLMRouter enables LLM-based routing in addition to the keyword policy.
	UseLLMRouter bool `envconfig:"RAG_USE_LLM_ROUTER" yaml:"use_llm_router"`
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	BatchConcurrency int    `envconfig:"RAG_EVAL_CONCURRENCY" yaml:"batch_concurrency"`
	RagasURL         string `envconfig:"RAG_RAGAS_URL" yaml:"ragas_url"`
	TimeoutSeconds   int    `envconfig:"RAG_EVAL_TIMEOUT" yaml:"timeout_seconds"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Enabled    bool   `envconfig:"RAG_CACHE_ENABLED" yaml:"enabled"`
	RedisURL   string `envconfig:"RAG_REDIS_URL" yaml:"redis_url"`
	TTLSeconds int    `envconfig:"RAG_CACHE_TTL" yaml:"ttl_seconds"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RAG_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RAG_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RAG_KAFKA_GROUP" yaml:"kafka_group"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	ChunkSize    int    `envconfig:"RAG_CHUNK_SIZE" yaml:"chunk_size"`
	ChunkOverlap int    `envconfig:"RAG_CHUNK_OVERLAP" yaml:"chunk_overlap"`
	UploadDir    string `envconfig:"RAG_UPLOAD_DIR" yaml:"upload_dir"`
	MaxFileBytes int64  `envconfig:"RAG_MAX_FILE_BYTES" yaml:"max_file_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RAG_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RAG_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"RAG_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"RAG_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Qdrant = QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "documents",
	}

	cfg.Inference = InferenceConfig{
		URL:             "http://localhost:7997",
		EmbedModel:      "text-embedding-3-small",
		SparseModel:     "bm25",
		RerankModel:     "bge-reranker-v2-m3",
		EmbedDim:        1536,
		TimeoutSeconds:  60,
		RerankBatchSize: 32,
	}

	cfg.LLM = LLMConfig{
		URL:            "http://localhost:8001/v1",
		RouterModel:    "gpt-4o-mini",
		RewriteModel:   "gpt-4o-mini",
		GeneratorModel: "gpt-4o",
		Temperature:    0.0,
		TimeoutSeconds: 120,
	}

	cfg.Retrieval = RetrievalConfig{
		CandidateLimit: 30,
		RRFConstant:    60,
		TimeoutSeconds: 30,
		UseLLMRouter:   true,
	}

	cfg.Eval = EvalConfig{
		BatchConcurrency: 4,
		TimeoutSeconds:   300,
	}

	cfg.Cache = CacheConfig{
		Enabled:    false,
		RedisURL:   "redis://localhost:6379",
		TTLSeconds: 3600,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Ingest = IngestConfig{
		ChunkSize:    512,
		ChunkOverlap: 64,
		UploadDir:    "./uploads",
		MaxFileBytes: 32 << 20,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Qdrant.Collection == "" {
		errs = append(errs, "qdrant collection must not be empty")
	}

	if c.Inference.EmbedDim < 1 {
		errs = append(errs, "embed_dim must be positive")
	}

	if c.Retrieval.CandidateLimit < 1 {
		errs = append(errs, "candidate_limit must be positive")
	}

	if c.Retrieval.RRFConstant < 1 {
		errs = append(errs, "rrf_constant must be positive")
	}

	if c.Eval.BatchConcurrency < 1 {
		errs = append(errs, "batch_concurrency must be positive")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true, "": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Ingest.ChunkSize < 64 {
		errs = append(errs, "chunk_size must be at least 64")
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, "chunk_overlap must be less than chunk_size")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
