// Package config loads runtime settings from .env, an optional YAML file
// and the environment, in that order of increasing precedence.
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

// Config contains all runtime settings for the assistant.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	GRPCBindAddr     string        `yaml:"grpc_bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	MetricsNamespace string        `yaml:"metrics_namespace"`

	// LLMProvider is anthropic, openai, groq or mock.
	LLMProvider     string  `yaml:"llm_provider"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
	GroqAPIKey      string  `yaml:"groq_api_key"`
	LLMModel        string  `yaml:"llm_model"`
	LLMTemperature  float64 `yaml:"llm_temperature"`
	LLMMaxTokens    int     `yaml:"llm_max_tokens"`
	LLMBaseURL      string  `yaml:"llm_base_url"`

	// MemoryBackend is chromem, hnsw or postgres.
	MemoryBackend       string  `yaml:"memory_backend"`
	MemoryPersistDir    string  `yaml:"memory_persist_dir"`
	MemoryCollection    string  `yaml:"memory_collection_name"`
	DatabaseURL         string  `yaml:"database_url"`
	SimilarityThreshold float64 `yaml:"memory_similarity_threshold"`
	MaxResults          int     `yaml:"memory_max_results"`

	// Embedder is mock, openai or onnx.
	Embedder           string `yaml:"embedder"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDim       int    `yaml:"embedding_dim"`
	ONNXModelPath      string `yaml:"onnx_model_path"`
	ONNXTokenizerPath  string `yaml:"onnx_tokenizer_path"`
	ONNXLibraryPath    string `yaml:"onnx_library_path"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`

	HistoryDBPath string `yaml:"history_db_path"`

	ContextTokenBudget int `yaml:"context_token_budget"`
	ContextCandidates  int `yaml:"context_candidates"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BindAddr:           ":8080",
		GRPCBindAddr:       ":9090",
		ShutdownTimeout:    15 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
		MetricsNamespace:   "recall",
		LLMProvider:        "groq",
		LLMTemperature:     0.7,
		LLMMaxTokens:       4096,
		MemoryBackend:      "chromem",
		MemoryPersistDir:   "./data/memory",
		MemoryCollection:   "ai_assistant_memory",
		MaxResults:         5,
		Embedder:           "mock",
		EmbeddingDim:       384,
		EmbeddingCacheSize: 4096,
		HistoryDBPath:      "./data/history.db",
		ContextTokenBudget: 600,
		ContextCandidates:  8,
	}
}

// Load reads .env (if present), the YAML file named by CONFIG_FILE (if
// set), then environment variables, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := stringsTrimSpace("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.GRPCBindAddr = envOrDefault("GRPC_BIND_ADDR", cfg.GRPCBindAddr)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)

	cfg.LLMProvider = strings.ToLower(envOrDefault("LLM_PROVIDER", cfg.LLMProvider))
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.GroqAPIKey = envOrDefault("GROQ_API_KEY", cfg.GroqAPIKey)
	cfg.LLMModel = envOrDefault("LLM_MODEL", envOrDefault("GROQ_MODEL_NAME", cfg.LLMModel))
	cfg.LLMBaseURL = envOrDefault("LLM_BASE_URL", cfg.LLMBaseURL)

	cfg.MemoryBackend = strings.ToLower(envOrDefault("MEMORY_BACKEND", cfg.MemoryBackend))
	cfg.MemoryPersistDir = envOrDefault("MEMORY_PERSIST_DIR", cfg.MemoryPersistDir)
	cfg.MemoryCollection = envOrDefault("MEMORY_COLLECTION_NAME", cfg.MemoryCollection)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.Embedder = strings.ToLower(envOrDefault("EMBEDDER", cfg.Embedder))
	cfg.EmbeddingModel = envOrDefault("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.ONNXModelPath = envOrDefault("ONNX_MODEL_PATH", cfg.ONNXModelPath)
	cfg.ONNXTokenizerPath = envOrDefault("ONNX_TOKENIZER_PATH", cfg.ONNXTokenizerPath)
	cfg.ONNXLibraryPath = envOrDefault("ONNX_LIBRARY_PATH", cfg.ONNXLibraryPath)
	cfg.HistoryDBPath = envOrDefault("HISTORY_DB_PATH", cfg.HistoryDBPath)

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature); err != nil {
		return err
	}
	if cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens); err != nil {
		return err
	}
	if cfg.SimilarityThreshold, err = floatFromEnv("MEMORY_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold); err != nil {
		return err
	}
	if cfg.MaxResults, err = intFromEnv("MEMORY_MAX_RESULTS", cfg.MaxResults); err != nil {
		return err
	}
	if cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim); err != nil {
		return err
	}
	if cfg.EmbeddingCacheSize, err = intFromEnv("EMBEDDING_CACHE_SIZE", cfg.EmbeddingCacheSize); err != nil {
		return err
	}
	if cfg.ContextTokenBudget, err = intFromEnv("CONTEXT_TOKEN_BUDGET", cfg.ContextTokenBudget); err != nil {
		return err
	}
	if cfg.ContextCandidates, err = intFromEnv("CONTEXT_CANDIDATES", cfg.ContextCandidates); err != nil {
		return err
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai", "groq", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider)
	}
	switch c.MemoryBackend {
	case "chromem", "hnsw":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("MEMORY_BACKEND %q is not supported", c.MemoryBackend)
	}
	switch c.Embedder {
	case "mock", "openai", "onnx":
	default:
		return fmt.Errorf("EMBEDDER %q is not supported", c.Embedder)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not supported", c.LogFormat)
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return errors.New("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.LLMMaxTokens <= 0 {
		return errors.New("LLM_MAX_TOKENS must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.New("MEMORY_SIMILARITY_THRESHOLD must be between 0 and 1")
	}
	if c.MaxResults <= 0 {
		return errors.New("MEMORY_MAX_RESULTS must be positive")
	}
	if c.EmbeddingDim <= 0 {
		return errors.New("EMBEDDING_DIM must be positive")
	}
	if c.EmbeddingCacheSize < 0 {
		return errors.New("EMBEDDING_CACHE_SIZE must be >= 0")
	}
	if c.ContextTokenBudget < 0 {
		return errors.New("CONTEXT_TOKEN_BUDGET must be >= 0")
	}
	if c.ContextCandidates <= 0 {
		return errors.New("CONTEXT_CANDIDATES must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// APIKey returns the key for the configured LLM provider.
func (c Config) APIKey() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "groq":
		return c.GroqAPIKey
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
