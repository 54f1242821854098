// Package config loads service configuration from defaults, an optional file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/extraction"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Records    RecordsConfig    `mapstructure:"records"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Answer     AnswerConfig     `mapstructure:"answer"`
	Metadata   MetadataConfig   `mapstructure:"metadata"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Mode is "stdio" or "http".
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
	// Timeout bounds each upsert, search and delete call.
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Dimension      int           `mapstructure:"dimension"`
	ChatModel      string        `mapstructure:"chat_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type BlobConfig struct {
	// Backend is "fs" or "s3".
	Backend     string        `mapstructure:"backend"`
	Root        string        `mapstructure:"root"`
	Bucket      string        `mapstructure:"bucket"`
	Region      string        `mapstructure:"region"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type RecordsConfig struct {
	// Path of the SQLite database; empty disables records.
	Path string `mapstructure:"path"`
}

type ExtractionConfig struct {
	MinTextLength    int           `mapstructure:"min_text_length"`
	QualityThreshold float64       `mapstructure:"quality_threshold"`
	LongTextLength   int           `mapstructure:"long_text_length"`
	OCRTier          string        `mapstructure:"ocr_tier"`
	OCRLanguage      string        `mapstructure:"ocr_language"`
	OCRPageTimeout   time.Duration `mapstructure:"ocr_page_timeout"`
	OCREnabled       bool          `mapstructure:"ocr_enabled"`
	TempDir          string        `mapstructure:"temp_dir"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
}

type ChunkingConfig struct {
	Size       int `mapstructure:"size"`
	Overlap    int `mapstructure:"overlap"`
	MinLength  int `mapstructure:"min_length"`
	MaxMetrics int `mapstructure:"max_metrics"`
}

type EmbeddingConfig struct {
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	BatchSize         int           `mapstructure:"batch_size"`
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	TokensPerMinute   int           `mapstructure:"tokens_per_minute"`
	SuccessThreshold  float64       `mapstructure:"success_threshold"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
}

type RetrievalConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	FallbackThreshold float64 `mapstructure:"fallback_threshold"`
}

type CacheConfig struct {
	EmbeddingTTL  time.Duration `mapstructure:"embedding_ttl"`
	EmbeddingMax  int           `mapstructure:"embedding_max"`
	ResponseTTL   time.Duration `mapstructure:"response_ttl"`
	ResponseMax   int           `mapstructure:"response_max"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// RedisAddr switches both caches to redis when set.
	RedisAddr string `mapstructure:"redis_addr"`
}

type AnswerConfig struct {
	ScopeToUser     bool    `mapstructure:"scope_to_user"`
	MaxContextChars int     `mapstructure:"max_context_chars"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
}

type MetadataConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxContentTokens is how much document text the generator reads before truncating.
	MaxContentTokens int `mapstructure:"max_content_tokens"`
}

var defaults = map[string]any{
	"server.port": "8080",
	"server.mode": "stdio",

	"log.level":  "info",
	"log.format": "text",

	"qdrant.host":       "localhost",
	"qdrant.port":       6334,
	"qdrant.api_key":    "",
	"qdrant.use_tls":    false,
	"qdrant.collection": "motor_documents",
	"qdrant.timeout":    "30s",

	"openai.api_key":         "",
	"openai.embedding_model": "text-embedding-3-small",
	"openai.dimension":       1536,
	"openai.chat_model":      "gpt-4o-mini",
	"openai.timeout":         "60s",

	"blob.backend":      "fs",
	"blob.root":         "./data/uploads",
	"blob.bucket":       "",
	"blob.region":       "",
	"blob.read_timeout": "2m",

	"records.path": "./data/records.db",

	"extraction.min_text_length":   100,
	"extraction.quality_threshold": 0.7,
	"extraction.long_text_length":  1000,
	"extraction.ocr_tier":          "balanced",
	"extraction.ocr_language":      "eng",
	"extraction.ocr_page_timeout":  "60s",
	"extraction.ocr_enabled":       true,
	"extraction.temp_dir":          "",
	"extraction.max_file_size":     50 << 20,

	"chunking.size":        1000,
	"chunking.overlap":     200,
	"chunking.min_length":  50,
	"chunking.max_metrics": 10,

	"embedding.max_concurrency":     8,
	"embedding.batch_size":          100,
	"embedding.requests_per_window": 500,
	"embedding.window":              "60s",
	"embedding.tokens_per_minute":   1000000,
	"embedding.success_threshold":   0.5,
	"embedding.max_attempts":        3,
	"embedding.base_delay":          "1s",
	"embedding.max_delay":           "10s",

	"retrieval.max_attempts":       3,
	"retrieval.fallback_threshold": 0.3,

	"cache.embedding_ttl":  "1h",
	"cache.embedding_max":  1000,
	"cache.response_ttl":   "15m",
	"cache.response_max":   500,
	"cache.sweep_interval": "5m",
	"cache.redis_addr":     "",

	"answer.scope_to_user":     true,
	"answer.max_context_chars": 24000,
	"answer.max_tokens":        800,
	"answer.temperature":       0.2,

	"metadata.enabled":            true,
	"metadata.max_content_tokens": 16000,
}

// Load reads configuration. path may be empty, in which case only defaults and the environment
// are used. Environment variables override file values with dots replaced by underscores, so
// qdrant.host is read from QDRANT_HOST and openai.api_key from OPENAI_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive"))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, chunking.size)"))
	}
	if c.Embedding.SuccessThreshold <= 0 || c.Embedding.SuccessThreshold > 1 {
		errs = append(errs, fmt.Errorf("embedding.success_threshold must be in (0, 1]"))
	}
	if c.Embedding.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("embedding.max_concurrency must be positive"))
	}
	if c.Embedding.MaxAttempts <= 0 || c.Retrieval.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be positive"))
	}
	if c.OpenAI.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("openai.dimension must be positive"))
	}
	if _, err := extraction.ParseTier(c.Extraction.OCRTier); err != nil {
		errs = append(errs, fmt.Errorf("extraction.ocr_tier: %w", err))
	}
	switch c.Blob.Backend {
	case "fs":
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob.backend %q", c.Blob.Backend))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from log.level and log.format.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
