// Package config loads ragpipe configuration from defaults, YAML files,
// a .env file and RAGPIPE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// Config represents the complete ragpipe configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// ChunkingConfig configures the sliding token window.
type ChunkingConfig struct {
	// Size is the window width in tokens.
	Size int `yaml:"size" json:"size"`

	// Overlap is the fraction of a window shared with the next one, in [0, 1).
	// The stride floor(Size*(1-Overlap)) must be at least 1.
	Overlap float64 `yaml:"overlap" json:"overlap"`

	// ExcerptLength bounds metadata.source_excerpt, in runes.
	ExcerptLength int `yaml:"excerpt_length" json:"excerpt_length"`

	// Tokenizer selects the tokenizer adapter: "word" or "bpe".
	Tokenizer   string `yaml:"tokenizer" json:"tokenizer"`
	BPEEncoding string `yaml:"bpe_encoding" json:"bpe_encoding"`

	// KeyPrefix prepends the task profile's key prefix to chunk text
	// before embedding. Stored chunk text is never prefixed.
	KeyPrefix bool `yaml:"key_prefix" json:"key_prefix"`
}

// RetrievalConfig configures query-time defaults.
type RetrievalConfig struct {
	TopK    int    `yaml:"top_k" json:"top_k"`
	RerankK int    `yaml:"rerank_k" json:"rerank_k"`
	Task    string `yaml:"task" json:"task"`
}

// EmbeddingsConfig configures the embedding oracles.
type EmbeddingsConfig struct {
	// Provider is "auto", "static", "ollama" or "openai".
	Provider string `yaml:"provider" json:"provider"`
	// Model embeds documents. Empty means the provider default.
	Model string `yaml:"model" json:"model"`
	// QueryModel embeds queries. Empty reuses Model.
	QueryModel string        `yaml:"query_model" json:"query_model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	OpenAIBaseURL   string `yaml:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKeyEnv string `yaml:"openai_api_key_env" json:"openai_api_key_env"`
}

// RerankerConfig configures the relevance oracle.
type RerankerConfig struct {
	// Provider is "auto", "http" or "lexical".
	Provider        string        `yaml:"provider" json:"provider"`
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	Model           string        `yaml:"model" json:"model"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	SkipHealthCheck bool          `yaml:"skip_health_check" json:"skip_health_check"`
}

// IngestConfig configures document loading.
type IngestConfig struct {
	Workers       int           `yaml:"workers" json:"workers"`
	CSVColumn     string        `yaml:"csv_column" json:"csv_column"`
	CSVLimit      int           `yaml:"csv_limit" json:"csv_limit"`
	WatchDir      string        `yaml:"watch_dir" json:"watch_dir"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the daemon and MCP server.
type ServerConfig struct {
	LogLevel   string `yaml:"log_level" json:"log_level"`
	SocketPath string `yaml:"socket_path" json:"socket_path"`

	// LogMaxSizeMB is the size at which server.log rotates.
	LogMaxSizeMB int `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	// LogMaxFiles is how many rotated logs are kept; 0 keeps none.
	LogMaxFiles int `yaml:"log_max_files" json:"log_max_files"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			Size:          192,
			Overlap:       0.85,
			ExcerptLength: 100,
			Tokenizer:     "word",
			BPEEncoding:   "cl100k_base",
		},
		Retrieval: RetrievalConfig{
			TopK:    5,
			RerankK: 5,
			Task:    "qa",
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "auto",
			BatchSize:       32,
			CacheSize:       1000,
			Timeout:         60 * time.Second,
			OllamaHost:      "http://localhost:11434",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
		},
		Reranker: RerankerConfig{
			Provider: "auto",
			Endpoint: "http://localhost:9659",
			Model:    "BAAI/bge-reranker-v2-m3",
			Timeout:  30 * time.Second,
		},
		Ingest: IngestConfig{
			Workers:       4,
			CSVColumn:     "Plot",
			CSVLimit:      100,
			WatchDebounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			LogLevel:     "info",
			LogMaxSizeMB: 10,
			LogMaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/ragpipe/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ragpipe/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragpipe", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragpipe", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project config file in dir, preferring
// .ragpipe.yaml over .ragpipe.yml. Empty if neither exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".ragpipe.yaml", ".ragpipe.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// Load loads configuration for the working directory dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/ragpipe/config.yaml)
//  3. Project config (.ragpipe.yaml in dir)
//  4. Environment variables (RAGPIPE_*), including those from dir/.env
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads dir/.env into the process environment.
// Variables already set in the environment win.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return ragerrors.ConfigError(fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their previous value and explicit zeros are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return ragerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path)
	}

	return nil
}

// applyEnvOverrides applies RAGPIPE_* environment variable overrides.
// Malformed numeric values are configuration errors rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"RAGPIPE_CHUNK_SIZE", &c.Chunking.Size},
		{"RAGPIPE_EXCERPT_LENGTH", &c.Chunking.ExcerptLength},
		{"RAGPIPE_TOP_K", &c.Retrieval.TopK},
		{"RAGPIPE_RERANK_K", &c.Retrieval.RerankK},
		{"RAGPIPE_BATCH_SIZE", &c.Embeddings.BatchSize},
		{"RAGPIPE_INGEST_WORKERS", &c.Ingest.Workers},
		{"RAGPIPE_LOG_MAX_SIZE_MB", &c.Server.LogMaxSizeMB},
		{"RAGPIPE_LOG_MAX_FILES", &c.Server.LogMaxFiles},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ragerrors.ConfigError(fmt.Sprintf("%s must be an integer, got %q", e.key, v), err)
		}
		*e.dst = n
	}

	if v := os.Getenv("RAGPIPE_CHUNK_OVERLAP"); v != "" {
		f, err := parseFloat64(v)
		if err != nil {
			return ragerrors.ConfigError(fmt.Sprintf("RAGPIPE_CHUNK_OVERLAP must be a number, got %q", v), err)
		}
		c.Chunking.Overlap = f
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"RAGPIPE_TOKENIZER", &c.Chunking.Tokenizer},
		{"RAGPIPE_TASK", &c.Retrieval.Task},
		{"RAGPIPE_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider},
		{"RAGPIPE_EMBEDDINGS_MODEL", &c.Embeddings.Model},
		{"RAGPIPE_QUERY_MODEL", &c.Embeddings.QueryModel},
		{"RAGPIPE_OLLAMA_HOST", &c.Embeddings.OllamaHost},
		{"RAGPIPE_OPENAI_BASE_URL", &c.Embeddings.OpenAIBaseURL},
		{"RAGPIPE_RERANKER_PROVIDER", &c.Reranker.Provider},
		{"RAGPIPE_RERANKER_ENDPOINT", &c.Reranker.Endpoint},
		{"RAGPIPE_RERANKER_MODEL", &c.Reranker.Model},
		{"RAGPIPE_WATCH_DIR", &c.Ingest.WatchDir},
		{"RAGPIPE_LOG_LEVEL", &c.Server.LogLevel},
		{"RAGPIPE_SOCKET_PATH", &c.Server.SocketPath},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}

	if v := os.Getenv("RAGPIPE_KEY_PREFIX"); v != "" {
		c.Chunking.KeyPrefix = strings.ToLower(v) == "true" || v == "1"
	}

	return nil
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Stride returns the window advance implied by Size and Overlap.
func (c ChunkingConfig) Stride() int {
	return chunk.Stride(c.Size, c.Overlap)
}

// Validate validates the configuration and returns a configuration error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.Size < 1 {
		return ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("chunking.size must be at least 1, got %d", c.Chunking.Size), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= 1 {
		return ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("chunking.overlap must be in [0, 1), got %g", c.Chunking.Overlap), nil)
	}
	if s := c.Chunking.Stride(); s < 1 {
		return ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("chunking.size %d with overlap %g gives stride %d, must be at least 1",
				c.Chunking.Size, c.Chunking.Overlap, s), nil).
			WithSuggestion("lower chunking.overlap or raise chunking.size")
	}
	if c.Chunking.ExcerptLength < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("chunking.excerpt_length must be non-negative, got %d", c.Chunking.ExcerptLength), nil)
	}
	if err := oneOf("chunking.tokenizer", c.Chunking.Tokenizer, "word", "bpe"); err != nil {
		return err
	}

	if c.Retrieval.TopK < 1 {
		return ragerrors.ConfigError(fmt.Sprintf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK), nil)
	}
	if c.Retrieval.RerankK < 1 {
		return ragerrors.ConfigError(fmt.Sprintf("retrieval.rerank_k must be at least 1, got %d", c.Retrieval.RerankK), nil)
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "auto", "static", "ollama", "openai"); err != nil {
		return err
	}
	if c.Embeddings.BatchSize < 1 {
		return ragerrors.ConfigError(fmt.Sprintf("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.CacheSize < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize), nil)
	}

	if err := oneOf("reranker.provider", c.Reranker.Provider, "auto", "http", "lexical"); err != nil {
		return err
	}

	if c.Ingest.Workers < 1 {
		return ragerrors.ConfigError(fmt.Sprintf("ingest.workers must be at least 1, got %d", c.Ingest.Workers), nil)
	}
	if c.Ingest.CSVLimit < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("ingest.csv_limit must be non-negative, got %d", c.Ingest.CSVLimit), nil)
	}

	if err := oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if c.Server.LogMaxSizeMB < 1 {
		return ragerrors.ConfigError(fmt.Sprintf("server.log_max_size_mb must be at least 1, got %d", c.Server.LogMaxSizeMB), nil)
	}
	if c.Server.LogMaxFiles < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("server.log_max_files must be non-negative, got %d", c.Server.LogMaxFiles), nil)
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return ragerrors.ConfigError(
		fmt.Sprintf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value), nil)
}

// WriteYAML writes the configuration to a YAML file, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
