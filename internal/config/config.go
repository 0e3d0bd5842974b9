package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the data-plane HTTP server configuration
type ServerConfig struct {
	NodeID string `yaml:"node_id"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	// AdvertiseAddr is the host:port peers dial for replication. Defaults
	// to host:port, which only works when host is a routable address.
	AdvertiseAddr   string        `yaml:"advertise_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config represents the complete configuration for a ringd node
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Gossip      GossipConfig      `yaml:"gossip"`
	Replication ReplicationConfig `yaml:"replication"`
	Expiration  ExpirationConfig  `yaml:"expiration"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	NearCache   NearCacheConfig   `yaml:"near_cache"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Ringbuffers []RingbufferDef   `yaml:"ringbuffers"`
}

// GossipConfig holds cluster membership configuration
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// ReplicationConfig holds backup fan-out configuration
type ReplicationConfig struct {
	// SyncTimeout bounds one synchronous backup round trip.
	SyncTimeout    time.Duration `yaml:"sync_timeout"`
	AsyncWorkers   int           `yaml:"async_workers"`
	AsyncQueueSize int           `yaml:"async_queue_size"`
}

// ExpirationConfig drives the periodic TTL sweep
type ExpirationConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RateLimitConfig holds data-plane rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// NearCacheConfig holds read-path cache configuration
type NearCacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxEntries     int           `yaml:"max_entries"`
	TTL            time.Duration `yaml:"ttl"`
	InMemoryFormat string        `yaml:"in_memory_format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RingbufferDef is one named ringbuffer definition. A zero capacity picks
// the built-in default; a zero time_to_live_seconds disables expiration.
type RingbufferDef struct {
	Name              string `yaml:"name"`
	Capacity          int32  `yaml:"capacity"`
	BackupCount       int    `yaml:"backup_count"`
	AsyncBackupCount  int    `yaml:"async_backup_count"`
	InMemoryFormat    string `yaml:"in_memory_format"`
	TimeToLiveSeconds int64  `yaml:"time_to_live_seconds"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7400
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.AdvertiseAddr == "" {
		cfg.Server.AdvertiseAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	if cfg.Gossip.BindPort == 0 {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = 1 * time.Second
	}

	if cfg.Replication.SyncTimeout == 0 {
		cfg.Replication.SyncTimeout = 5 * time.Second
	}
	if cfg.Replication.AsyncWorkers == 0 {
		cfg.Replication.AsyncWorkers = 4
	}
	if cfg.Replication.AsyncQueueSize == 0 {
		cfg.Replication.AsyncQueueSize = 256
	}

	if cfg.Expiration.CleanupInterval == 0 {
		cfg.Expiration.CleanupInterval = 1 * time.Second
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 1000
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 2000
	}

	if cfg.NearCache.MaxEntries == 0 {
		cfg.NearCache.MaxEntries = 10000
	}
	if cfg.NearCache.TTL == 0 {
		cfg.NearCache.TTL = 60 * time.Second
	}
	if cfg.NearCache.InMemoryFormat == "" {
		cfg.NearCache.InMemoryFormat = "binary"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9100
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	for i := range cfg.Ringbuffers {
		if cfg.Ringbuffers[i].InMemoryFormat == "" {
			cfg.Ringbuffers[i].InMemoryFormat = "binary"
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Gossip.BindPort < 1 || c.Gossip.BindPort > 65535 {
		return fmt.Errorf("gossip.bind_port must be between 1 and 65535")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive")
	}

	seen := make(map[string]bool, len(c.Ringbuffers))
	for _, def := range c.Ringbuffers {
		if def.Name == "" {
			return fmt.Errorf("ringbuffers entries require a name")
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate ringbuffer name: %s", def.Name)
		}
		seen[def.Name] = true
		if def.Capacity < 0 {
			return fmt.Errorf("ringbuffer %s: capacity must not be negative", def.Name)
		}
		if def.TimeToLiveSeconds < 0 {
			return fmt.Errorf("ringbuffer %s: time_to_live_seconds must not be negative", def.Name)
		}
		switch def.InMemoryFormat {
		case "binary", "object":
		default:
			return fmt.Errorf("ringbuffer %s: in_memory_format must be binary or object", def.Name)
		}
	}
	return nil
}
