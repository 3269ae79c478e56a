package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "CHATSTORE_"

// envKeys lists the recognised variables without the prefix.
var envKeys = []string{
	"DB_PATH",
	"STORE_BACKEND",
	"STORE_DISABLE_WAL",
	"STORE_SYNC",
	"STORE_MEMTABLE_SIZE",
	"HASH_CACHE_SIZE",
	"CACHE_LIMIT",
	"LOG_LEVEL",
	"TELEMETRY_ENABLED",
	"SERVER_ADDR",
	"RATE_RPS",
	"RATE_BURST",
	"CHECK_CRON",
	"SENSOR_POLL_INTERVAL",
}

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	DB      string
	Config  string
	Addr    string
	Top     int
	Ranking string
	Check   bool
	Serve   bool
	Set     map[string]bool
}

// EnvResult records which environment variables were present.
type EnvResult struct {
	EnvUsed bool
	Set     map[string]bool
}

// EffectiveConfigResult is the merged configuration and where it came
// from.
type EffectiveConfigResult struct {
	Config *Config
	DBPath string
	Source string // "defaults", "config", "env" or "flags"
}

// ParseConfigFlags parses args into Flags.
func ParseConfigFlags(fset *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fset.StringVar(&f.DB, "db", defaultDBPath, "database directory")
	fset.StringVar(&f.Config, "config", "./config.yaml", "path to config file")
	fset.StringVar(&f.Addr, "addr", "", "ops endpoint listen address (serve mode)")
	fset.IntVar(&f.Top, "top", 0, "print the top N channels of -ranking")
	fset.StringVar(&f.Ranking, "ranking", "members", "ranking for -top: members or messages")
	fset.BoolVar(&f.Check, "check", false, "verify both ranking trees")
	fset.BoolVar(&f.Serve, "serve", false, "run the ops endpoint and scheduled checks until signalled")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}
	f.Set = make(map[string]bool)
	fset.Visit(func(fl *flag.Flag) { f.Set[fl.Name] = true })
	return f, nil
}

// ParseConfigFile loads the config file the flags point at. A missing
// file is not an error.
func ParseConfigFile(flags Flags, getenv func(string) string) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"], getenv)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads the CHATSTORE_ variables into a fresh Config.
func ParseConfigEnvs(getenv func(string) string) (*Config, EnvResult, error) {
	res := EnvResult{Set: make(map[string]bool)}
	envs := make(map[string]string, len(envKeys))
	for _, k := range envKeys {
		if v := strings.TrimSpace(getenv(EnvPrefix + k)); v != "" {
			envs[k] = v
			res.Set[k] = true
			res.EnvUsed = true
		}
	}

	cfg := &Config{}
	var errs []error
	bad := func(k string, err error) {
		errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
	}

	if v, ok := envs["DB_PATH"]; ok {
		cfg.Store.Path = v
	}
	if v, ok := envs["STORE_BACKEND"]; ok {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v, ok := envs["STORE_DISABLE_WAL"]; ok {
		cfg.Store.DisableWAL = parseBool(v)
	}
	if v, ok := envs["STORE_SYNC"]; ok {
		cfg.Store.Sync = parseBool(v)
	}
	if v, ok := envs["STORE_MEMTABLE_SIZE"]; ok {
		size, err := ParseSize(v)
		if err != nil {
			bad("STORE_MEMTABLE_SIZE", err)
		}
		cfg.Store.MemTableSize = size
	}
	if v, ok := envs["HASH_CACHE_SIZE"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad("HASH_CACHE_SIZE", err)
		}
		cfg.Store.HashCacheSize = n
	}
	if v, ok := envs["CACHE_LIMIT"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad("CACHE_LIMIT", err)
		}
		cfg.Cache.Limit = &n
	}
	if v, ok := envs["LOG_LEVEL"]; ok {
		cfg.Logging.Level = v
	}
	if v, ok := envs["TELEMETRY_ENABLED"]; ok {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v, ok := envs["SERVER_ADDR"]; ok {
		cfg.Server.Address = v
	}
	if v, ok := envs["RATE_RPS"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			bad("RATE_RPS", err)
		}
		cfg.Server.RateLimit.RPS = f
	}
	if v, ok := envs["RATE_BURST"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad("RATE_BURST", err)
		}
		cfg.Server.RateLimit.Burst = n
	}
	if v, ok := envs["CHECK_CRON"]; ok {
		cfg.Maintenance.CheckCron = v
	}
	if v, ok := envs["SENSOR_POLL_INTERVAL"]; ok {
		d, err := ParseDuration(v)
		if err != nil {
			bad("SENSOR_POLL_INTERVAL", err)
		}
		cfg.Sensor.PollInterval = d
	}
	return cfg, res, errors.Join(errs...)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
