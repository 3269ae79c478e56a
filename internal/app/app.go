package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"

	"chatstore/internal/maintenance"
	"chatstore/pkg/chat/channels"
	"chatstore/pkg/config"
	"chatstore/pkg/router"
	"chatstore/pkg/state"
	"chatstore/pkg/state/logger"
	"chatstore/pkg/state/sensor"
	"chatstore/pkg/store/avltree"
	"chatstore/pkg/store/cache"
	"chatstore/pkg/store/docs"
	"chatstore/pkg/store/keys"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/metrics"
	"chatstore/pkg/telemetry"
)

// App groups the store stack and the optional serve-mode components.
type App struct {
	eff     config.EffectiveConfigResult
	version string
	paths   state.Paths

	reg      *prometheus.Registry
	metrics  *metrics.Store
	pebble   *kv.Pebble
	cache    *cache.Store
	channels *channels.Service

	hwSensor    *sensor.Sensor
	checks      *maintenance.Scheduler
	checkCancel context.CancelFunc
	srvFast     *fasthttp.Server
	limiter     *router.Limiter

	ready atomic.Bool
	state string
}

// New opens the store and builds the channel service. It starts nothing in
// the background; Run does that.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, errors.New("effective config is nil")
	}
	paths, err := state.Setup(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("state dirs under %s: %w", eff.DBPath, err)
	}

	a := &App{eff: eff, version: version, paths: paths, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(collectors.NewGoCollector())
	if a.metrics, err = metrics.New(a.reg); err != nil {
		return nil, err
	}

	var backing kv.Store
	switch cfg.Store.Backend {
	case config.BackendMemory:
		backing = kv.NewMemory().WithMetrics(a.metrics)
		logger.Warn("durability_disabled", "durability", "memory backend, nothing is persisted")
	default:
		p, err := kv.OpenPebble(paths.Store, kv.PebbleOptions{
			DisableWAL:   cfg.Store.DisableWAL,
			Sync:         cfg.Store.Sync,
			MemTableSize: uint64(cfg.Store.MemTableSize.Int64()),
			Metrics:      a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
		}
		a.pebble = p
		a.reg.MustRegister(p.Collector())
		backing = p
	}

	a.cache = cache.New(backing, cfg.CacheLimit(), cache.WithMetrics(a.metrics))
	db := docs.New(a.cache,
		docs.WithHasher(keys.NewHasher(cfg.Store.HashCacheSize)),
		docs.WithMetrics(a.metrics),
	)
	if a.channels, err = channels.Open(a.cache, db, avltree.WithMetrics(a.metrics)); err != nil {
		a.closeStore()
		return nil, err
	}

	if cfg.Telemetry.Enabled {
		err := telemetry.Init(paths.Tel, telemetry.Options{
			BufferSize:    int(cfg.Telemetry.BufferSize.Int64()),
			QueueCapacity: cfg.Telemetry.QueueCapacity,
			FlushInterval: cfg.Telemetry.FlushInterval.Duration(),
			MaxFileSize:   cfg.Telemetry.FileMaxSize.Int64(),
		})
		if err != nil {
			a.closeStore()
			return nil, err
		}
	}

	a.ready.Store(true)
	a.state = "ready"
	logger.Info("app_ready", "backend", cfg.Store.Backend, "cache_limit", cfg.CacheLimit())
	return a, nil
}

// Channels is the chat layer over the store.
func (a *App) Channels() *channels.Service { return a.channels }

// Registry holds every metric the app exports.
func (a *App) Registry() *prometheus.Registry { return a.reg }

// Top lists the k highest channels of the named ranking.
func (a *App) Top(ctx context.Context, rankingName string, k int) ([]string, error) {
	by, err := channels.ParseBy(rankingName)
	if err != nil {
		return nil, err
	}
	return a.channels.Top(ctx, by, k)
}

// Check verifies the ordering and balance of both ranking trees.
func (a *App) Check(ctx context.Context) error {
	var errs []error
	for _, r := range a.channels.Rankings() {
		t := r.Tree()
		if err := t.Check(ctx); err != nil {
			logger.Error("ranking_check_failed", "ranking", r.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		n, err := t.Len(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		logger.Info("ranking_check_passed", "ranking", r.Name(), "entries", n)
	}
	return errors.Join(errs...)
}

// Run starts the sensor, the scheduled check and, when an address is
// configured, the ops endpoint. It blocks until ctx is done or the
// endpoint fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config

	a.hwSensor = sensor.New(sensor.Config{
		Path:           a.paths.DB,
		PollInterval:   cfg.Sensor.PollInterval.Duration(),
		DiskHighPct:    cfg.Sensor.DiskHighPct,
		DiskLowPct:     cfg.Sensor.DiskLowPct,
		MemHighPct:     cfg.Sensor.MemHighPct,
		RecoveryWindow: cfg.Sensor.RecoveryWindow.Duration(),
	})
	a.hwSensor.Start()

	if cfg.Maintenance.CheckCron != "" {
		s, err := a.checkScheduler()
		if err != nil {
			return err
		}
		a.checks = s
		a.checkCancel = s.Start(ctx)
	}

	a.state = "running"
	var errCh <-chan error
	if cfg.Server.Address != "" {
		errCh = a.startHTTP(cfg.Server.Address)
		go a.sweepLimiter(ctx)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// checkScheduler runs Check on the configured cron, one process at a time.
func (a *App) checkScheduler() (*maintenance.Scheduler, error) {
	m := a.eff.Config.Maintenance
	return maintenance.New("ranking_check", m.CheckCron, m.LockTTL.Duration(), a.paths.Audit, a.Check)
}

func (a *App) closeStore() error {
	if a.pebble == nil {
		return nil
	}
	err := a.pebble.Close()
	a.pebble = nil
	return err
}
