// Package config loads the flat on-disk node configuration for nexusd:
// a plain struct decoded with yaml.v3, defaults applied in code rather
// than a framework, then validated.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/nexusdb/pkg/log"
)

// Config is a single node's full configuration: where it listens, where it
// stores data, how it logs, and how it participates in a cluster.
type Config struct {
	// Node identifies this server within a deployment. Defaults to the
	// hostname if left blank.
	Node string `yaml:"node"`

	// DataDir is the directory the bbolt store and any WAL files live
	// under.
	DataDir string `yaml:"dataDir"`

	// ListenAddr is the REST collection-management/shard-sync listen
	// address (pkg/api.Server).
	ListenAddr string `yaml:"listenAddr"`

	// ClusterAddr is the gRPC cluster data-plane listen address
	// (pkg/query/cluster's RemoteServer).
	ClusterAddr string `yaml:"clusterAddr"`

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string `yaml:"metricsAddr"`

	Log     LogConfig     `yaml:"log"`
	Cache   CacheConfig   `yaml:"cache"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// LogConfig mirrors pkg/log.Config, decoded from YAML.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig sizes the document-body LRU cache per collection.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// ClusterConfig names this node's cluster peers and sync timing.
type ClusterConfig struct {
	Servers        []string      `yaml:"servers"`
	ReadLockTTL    time.Duration `yaml:"readLockTTL"`
	SyncRetryDelay time.Duration `yaml:"syncRetryDelay"`
}

// Default returns the configuration a fresh single-node install starts
// with.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		ListenAddr:  "127.0.0.1:8599",
		ClusterAddr: "127.0.0.1:8600",
		MetricsAddr: "127.0.0.1:8601",
		Log:         LogConfig{Level: "info", JSON: true},
		Cache:       CacheConfig{Capacity: 4096},
		Cluster: ClusterConfig{
			ReadLockTTL:    30 * time.Second,
			SyncRetryDelay: 2 * time.Second,
		},
	}
}

// Load reads and parses path, applying defaults for any field left zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Node == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("config: resolving hostname: %w", err)
		}
		c.Node = hostname
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 4096
	}
	if c.Cluster.ReadLockTTL == 0 {
		c.Cluster.ReadLockTTL = 30 * time.Second
	}
	if c.Cluster.SyncRetryDelay == 0 {
		c.Cluster.SyncRetryDelay = 2 * time.Second
	}
	return nil
}

// Validate checks invariants Load cannot fix with a default.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listenAddr is required")
	}
	if c.ClusterAddr == "" {
		return fmt.Errorf("config: clusterAddr is required")
	}
	if c.ListenAddr == c.ClusterAddr {
		return fmt.Errorf("config: listenAddr and clusterAddr must differ")
	}
	return nil
}

// LogConfig converts the YAML-bound LogConfig into pkg/log's own Config.
func (c *Config) LogConfig() log.Config {
	level := log.InfoLevel
	switch c.Log.Level {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	return log.Config{Level: level, JSONOutput: c.Log.JSON}
}
