package config

import (
	"fmt"

	"chatstore/pkg/state/logger"

	"github.com/adhocore/gronx"
)

// ValidateConfig fills in defaults and fails fast on values the service
// cannot run with.
func ValidateConfig(eff *EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultDBPath
	}
	eff.DBPath = cfg.Store.Path

	switch cfg.Store.Backend {
	case "":
		cfg.Store.Backend = defaultBackend
	case BackendPebble, BackendMemory:
	default:
		return fmt.Errorf("unknown store.backend %q: want %s or %s", cfg.Store.Backend, BackendPebble, BackendMemory)
	}
	if cfg.Store.MemTableSize == 0 {
		cfg.Store.MemTableSize = defaultMemTableSize
	}
	if cfg.Store.HashCacheSize < 0 {
		return fmt.Errorf("store.hash_cache_size must not be negative: %d", cfg.Store.HashCacheSize)
	}
	if cfg.Store.HashCacheSize == 0 {
		cfg.Store.HashCacheSize = defaultHashCacheSize
	}

	if cfg.Cache.Limit == nil {
		n := defaultCacheLimit
		cfg.Cache.Limit = &n
	} else if *cfg.Cache.Limit < 0 {
		return fmt.Errorf("cache.limit must not be negative: %d", *cfg.Cache.Limit)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if _, ok := logger.ParseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}

	t := &cfg.Telemetry
	if t.BufferSize == 0 {
		t.BufferSize = defaultTelemetryBufferSize
	}
	if t.QueueCapacity <= 0 {
		t.QueueCapacity = defaultTelemetryQueueCapacity
	}
	if t.FlushInterval == 0 {
		t.FlushInterval = Duration(defaultTelemetryFlushInterval)
	}
	if t.FileMaxSize == 0 {
		t.FileMaxSize = defaultTelemetryFileMaxSize
	}

	rl := &cfg.Server.RateLimit
	if rl.RPS <= 0 {
		rl.RPS = defaultRateRPS
	}
	if rl.Burst <= 0 {
		rl.Burst = defaultRateBurst
	}

	m := &cfg.Maintenance
	if m.CheckCron != "" && !gronx.New().IsValid(m.CheckCron) {
		return fmt.Errorf("invalid maintenance.check_cron expression: %s", m.CheckCron)
	}
	if m.LockTTL == 0 {
		m.LockTTL = Duration(defaultCheckLockTTL)
	}

	s := &cfg.Sensor
	if s.PollInterval == 0 {
		s.PollInterval = Duration(defaultSensorPollInterval)
	}
	if s.DiskHighPct == 0 {
		s.DiskHighPct = defaultSensorDiskHighPct
	}
	if s.DiskLowPct == 0 {
		s.DiskLowPct = defaultSensorDiskLowPct
	}
	if s.MemHighPct == 0 {
		s.MemHighPct = defaultSensorMemHighPct
	}
	if s.RecoveryWindow == 0 {
		s.RecoveryWindow = Duration(defaultSensorRecoveryWindow)
	}
	if s.DiskLowPct > s.DiskHighPct {
		return fmt.Errorf("sensor.disk_low_pct (%d) above sensor.disk_high_pct (%d)", s.DiskLowPct, s.DiskHighPct)
	}
	return nil
}
