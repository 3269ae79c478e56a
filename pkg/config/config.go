package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaults
const (
	defaultDBPath        = "./database"
	defaultBackend       = BackendPebble
	defaultLogLevel      = "info"
	defaultCacheLimit    = 10000
	defaultHashCacheSize = 4096
	defaultMemTableSize  = 64 << 20

	defaultTelemetryBufferSize    = 256 << 10
	defaultTelemetryQueueCapacity = 2048
	defaultTelemetryFlushInterval = 2 * time.Second
	defaultTelemetryFileMaxSize   = 40 << 20

	defaultRateRPS   = 50
	defaultRateBurst = 100

	defaultCheckLockTTL = 5 * time.Minute

	defaultSensorPollInterval   = 5 * time.Second
	defaultSensorDiskHighPct    = 90
	defaultSensorDiskLowPct     = 80
	defaultSensorMemHighPct     = 90
	defaultSensorRecoveryWindow = 30 * time.Second
)

// store backends
const (
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath returns the config file path, preferring the flag,
// then CHATSTORE_CONFIG.
func ResolveConfigPath(flagPath string, flagSet bool, getenv func(string) string) string {
	if flagSet {
		return flagPath
	}
	if p := getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEffectiveConfig layers the sources: flags over env over file over
// defaults. Defaults themselves are filled in by ValidateConfig.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	cfg := &Config{}
	source := "defaults"
	if fileExists && fileCfg != nil {
		*cfg = *fileCfg
		source = "config"
	}
	if envRes.EnvUsed && envCfg != nil {
		overlayEnv(cfg, envCfg, envRes.Set)
		source = "env"
	}
	if flags.Set["db"] {
		cfg.Store.Path = flags.DB
		source = "flags"
	}
	if flags.Set["addr"] {
		cfg.Server.Address = flags.Addr
		source = "flags"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = flags.DB
	}
	return EffectiveConfigResult{Config: cfg, DBPath: cfg.Store.Path, Source: source}, nil
}

func overlayEnv(dst, env *Config, set map[string]bool) {
	if set["DB_PATH"] {
		dst.Store.Path = env.Store.Path
	}
	if set["STORE_BACKEND"] {
		dst.Store.Backend = env.Store.Backend
	}
	if set["STORE_DISABLE_WAL"] {
		dst.Store.DisableWAL = env.Store.DisableWAL
	}
	if set["STORE_SYNC"] {
		dst.Store.Sync = env.Store.Sync
	}
	if set["STORE_MEMTABLE_SIZE"] {
		dst.Store.MemTableSize = env.Store.MemTableSize
	}
	if set["HASH_CACHE_SIZE"] {
		dst.Store.HashCacheSize = env.Store.HashCacheSize
	}
	if set["CACHE_LIMIT"] {
		dst.Cache.Limit = env.Cache.Limit
	}
	if set["LOG_LEVEL"] {
		dst.Logging.Level = env.Logging.Level
	}
	if set["TELEMETRY_ENABLED"] {
		dst.Telemetry.Enabled = env.Telemetry.Enabled
	}
	if set["SERVER_ADDR"] {
		dst.Server.Address = env.Server.Address
	}
	if set["RATE_RPS"] {
		dst.Server.RateLimit.RPS = env.Server.RateLimit.RPS
	}
	if set["RATE_BURST"] {
		dst.Server.RateLimit.Burst = env.Server.RateLimit.Burst
	}
	if set["CHECK_CRON"] {
		dst.Maintenance.CheckCron = env.Maintenance.CheckCron
	}
	if set["SENSOR_POLL_INTERVAL"] {
		dst.Sensor.PollInterval = env.Sensor.PollInterval
	}
}
