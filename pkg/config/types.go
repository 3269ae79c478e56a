package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Server      ServerConfig      `yaml:"server"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Sensor      SensorConfig      `yaml:"sensor"`
}

// StoreConfig selects and tunes the byte store.
type StoreConfig struct {
	Path    string `yaml:"path"`
	Backend string `yaml:"backend"` // "pebble" or "memory"
	// DisableWAL turns off pebble's write-ahead log. Writes acknowledged
	// since the last flush are lost on a crash.
	DisableWAL    bool      `yaml:"disable_wal"`
	Sync          bool      `yaml:"sync"`
	MemTableSize  SizeBytes `yaml:"memtable_size"`
	HashCacheSize int       `yaml:"hash_cache_size"`
}

// CacheConfig bounds the read cache. A limit of 0 disables it.
type CacheConfig struct {
	Limit *int `yaml:"limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig controls the per-operation trace files.
type TelemetryConfig struct {
	Enabled       bool      `yaml:"enabled"`
	BufferSize    SizeBytes `yaml:"buffer_size"`
	QueueCapacity int       `yaml:"queue_capacity"`
	FlushInterval Duration  `yaml:"flush_interval"`
	FileMaxSize   SizeBytes `yaml:"file_max_size"`
}

// ServerConfig holds the ops endpoint settings. An empty address leaves
// the endpoint off.
type ServerConfig struct {
	Address   string `yaml:"address"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// MaintenanceConfig schedules the ranking integrity check.
type MaintenanceConfig struct {
	CheckCron string `yaml:"check_cron"`
	// LockTTL bounds how long one process holds the check lease.
	LockTTL Duration `yaml:"lock_ttl"`
}

// SensorConfig holds the disk and memory watch thresholds.
type SensorConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`
	DiskHighPct    int      `yaml:"disk_high_pct"`
	DiskLowPct     int      `yaml:"disk_low_pct"`
	MemHighPct     int      `yaml:"mem_high_pct"`
	RecoveryWindow Duration `yaml:"recovery_window"`
}

// CacheLimit is the effective read cache limit.
func (c *Config) CacheLimit() int {
	if c.Cache.Limit == nil {
		return defaultCacheLimit
	}
	return *c.Cache.Limit
}

// SizeBytes is a byte count read from "64MB"-style strings or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

// ParseSize accepts humanized sizes and plain byte counts.
func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if i < 0 {
			return 0, fmt.Errorf("invalid size value: %q", raw)
		}
		return SizeBytes(i), nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %q", raw)
	}
	return SizeBytes(v), nil
}

// Duration reads "100ms"-style strings or plain numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
