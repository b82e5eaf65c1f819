// CLAUDE:SUMMARY Configuration structs (pipeline, resilience, redis, credentials, logging) and YAML loader for coursesync.
package coursesync

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/coursesync/connectivity"
	"github.com/hazyhaar/coursesync/linkproc"
	"github.com/hazyhaar/coursesync/sheetsvc"
	"github.com/hazyhaar/coursesync/shield"
)

// Config holds all coursesync configuration.
type Config struct {
	DBPath string `yaml:"db_path"`
	Listen string `yaml:"listen"`

	Pipeline   linkproc.Config               `yaml:"pipeline"`
	Resilience connectivity.ResilienceConfig `yaml:"resilience"`
	Google     sheetsvc.Credentials          `yaml:"google"`
	Redis      RedisConfig                   `yaml:"redis"`
	Log        LogConfig                     `yaml:"log"`

	// AllowPrivateEndpoints lets http and mcp routes target loopback and
	// private addresses, for processors deployed next to the daemon.
	AllowPrivateEndpoints bool `yaml:"allow_private_endpoints"`

	// RouteWatchInterval is the poll period of the routes table.
	RouteWatchInterval time.Duration          `yaml:"route_watch_interval"`
	RateLimits         []shield.RateLimitRule `yaml:"rate_limits"`
	// MaxFileSize caps a download handled by the local processors, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// TransportOptions returns the http and mcp transport options the config
// asks for.
func (c *Config) TransportOptions() []connectivity.HTTPOption {
	if c.AllowPrivateEndpoints {
		return []connectivity.HTTPOption{connectivity.WithAllowPrivate()}
	}
	return nil
}

// RedisConfig enables the distributed run lock. Empty Addr keeps the lock
// in-process.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// LogConfig controls the daemon's log output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "coursesync.db"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = 30 * time.Minute
	}
	if c.RouteWatchInterval <= 0 {
		c.RouteWatchInterval = 2 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 5
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
