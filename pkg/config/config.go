// Package config loads and validates filesearch configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Search, Redis, Kafka, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Search  SearchConfig  `yaml:"search"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of API requests per minute allowed per client
	// address; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// CorpusConfig controls which files are crawled into the corpus and where the
// built index snapshot lives.
type CorpusConfig struct {
	Root            string        `yaml:"root"`
	Extensions      []string      `yaml:"extensions"`
	SnapshotPath    string        `yaml:"snapshotPath"`
	MaxFileSize     int64         `yaml:"maxFileSize"`
	ReadConcurrency int           `yaml:"readConcurrency"`
	Watch           bool          `yaml:"watch"`
	WatchDebounce   time.Duration `yaml:"watchDebounce"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	WorkerCount   int           `yaml:"workerCount"`
	MatchAllTerms bool          `yaml:"matchAllTerms"`
	DefaultLimit  int           `yaml:"defaultLimit"`
	MaxResults    int           `yaml:"maxResults"`
	QueryTimeout  time.Duration `yaml:"queryTimeout"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the analytics event sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the query engine cannot run with.
func (c *Config) Validate() error {
	if c.Search.WorkerCount < 1 {
		return fmt.Errorf("search.workerCount must be >= 1, got %d", c.Search.WorkerCount)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must be >= 0, got %d", c.Server.RateLimit)
	}
	if c.Corpus.ReadConcurrency < 1 {
		return fmt.Errorf("corpus.readConcurrency must be >= 1, got %d", c.Corpus.ReadConcurrency)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
		},
		Corpus: CorpusConfig{
			Root:            ".",
			Extensions:      []string{".txt", ".md", ".rst", ".log", ".csv"},
			SnapshotPath:    "data/corpus.fsx",
			MaxFileSize:     10 * 1024 * 1024,
			ReadConcurrency: 8,
			WatchDebounce:   2 * time.Second,
		},
		Search: SearchConfig{
			WorkerCount:  4,
			DefaultLimit: 10,
			MaxResults:   100,
			QueryTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "search-events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FS_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("FS_CORPUS_ROOT"); v != "" {
		cfg.Corpus.Root = v
	}
	if v := os.Getenv("FS_CORPUS_EXTENSIONS"); v != "" {
		cfg.Corpus.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_CORPUS_SNAPSHOT_PATH"); v != "" {
		cfg.Corpus.SnapshotPath = v
	}
	if v := os.Getenv("FS_CORPUS_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Corpus.Watch = watch
		}
	}
	if v := os.Getenv("FS_SEARCH_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.WorkerCount = n
		}
	}
	if v := os.Getenv("FS_SEARCH_MATCH_ALL_TERMS"); v != "" {
		if all, err := strconv.ParseBool(v); err == nil {
			cfg.Search.MatchAllTerms = all
		}
	}
	if v := os.Getenv("FS_SEARCH_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.QueryTimeout = d
		}
	}
	if v := os.Getenv("FS_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
