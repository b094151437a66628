package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Queue      QueueConfig      `yaml:"queue"`
	Labeling   LabelingConfig   `yaml:"labeling"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	MetricsPort int    `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// NATSConfig configures job lifecycle event delivery. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type QueueConfig struct {
	// Backend is "redis" or "memory".
	Backend        string        `yaml:"backend"`
	Stream         string        `yaml:"stream"`
	Group          string        `yaml:"group"`
	ConsumerPrefix string        `yaml:"consumer_prefix"`
	BlockTimeout   time.Duration `yaml:"block_timeout"`
}

type LabelingConfig struct {
	WorkerCount       int           `yaml:"worker_count"`
	StatusTTL         time.Duration `yaml:"status_ttl"`
	DetectFaces       bool          `yaml:"detect_faces"`
	SweepOnStartup    *bool         `yaml:"sweep_on_startup"`
	BackfillOnStartup bool          `yaml:"backfill_on_startup"`
}

// SweepEnabled reports whether the worker runs a recovery sweep at startup.
// Unset means enabled.
func (l LabelingConfig) SweepEnabled() bool {
	return l.SweepOnStartup == nil || *l.SweepOnStartup
}

type ChangeFeedConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Channel     string        `yaml:"channel"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type EmbeddingConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClusteringConfig struct {
	Eps            float64 `yaml:"eps"`
	MinSamples     int     `yaml:"min_samples"`
	MatchThreshold float64 `yaml:"match_threshold"`
	MinGroupSize   int     `yaml:"min_group_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Queue.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid queue backend %q", c.Queue.Backend)
	}
	if c.Labeling.WorkerCount < 1 {
		return fmt.Errorf("labeling.worker_count must be positive, got %d", c.Labeling.WorkerCount)
	}
	if c.Clustering.MatchThreshold > 1 {
		return fmt.Errorf("clustering.match_threshold must be <= 1, got %v", c.Clustering.MatchThreshold)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "redis"
	}
	if cfg.Queue.Stream == "" {
		cfg.Queue.Stream = "image_label_stream"
	}
	if cfg.Queue.Group == "" {
		cfg.Queue.Group = "image_label_group"
	}
	if cfg.Queue.ConsumerPrefix == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.Queue.ConsumerPrefix = host
	}
	if cfg.Queue.BlockTimeout == 0 {
		cfg.Queue.BlockTimeout = 2 * time.Second
	}
	if cfg.Labeling.WorkerCount == 0 {
		cfg.Labeling.WorkerCount = 4
	}
	if cfg.Labeling.StatusTTL == 0 {
		cfg.Labeling.StatusTTL = 10800 * time.Second
	}
	if cfg.ChangeFeed.Channel == "" {
		cfg.ChangeFeed.Channel = "image_meta_data_insert"
	}
	if cfg.ChangeFeed.PollTimeout == 0 {
		cfg.ChangeFeed.PollTimeout = time.Second
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:8000"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Clustering.Eps == 0 {
		cfg.Clustering.Eps = 0.41
	}
	if cfg.Clustering.MinSamples == 0 {
		cfg.Clustering.MinSamples = 4
	}
	if cfg.Clustering.MatchThreshold == 0 {
		cfg.Clustering.MatchThreshold = 0.95
	}
	if cfg.Clustering.MinGroupSize == 0 {
		cfg.Clustering.MinGroupSize = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PL_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PL_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PL_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PL_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PL_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PL_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PL_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("PL_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PL_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PL_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PL_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PL_QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = v
	}
	if v := os.Getenv("PL_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("PL_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Labeling.WorkerCount = n
		}
	}
	if v := os.Getenv("PL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
