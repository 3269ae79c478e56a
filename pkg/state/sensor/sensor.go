// Package sensor watches the volume holding the database and host memory,
// logging when usage crosses the configured thresholds and again when it
// recovers.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"chatstore/pkg/state/logger"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

type Config struct {
	// Path is any path on the volume to watch, normally the db root.
	Path           string
	PollInterval   time.Duration
	DiskHighPct    int
	DiskLowPct     int
	MemHighPct     int
	RecoveryWindow time.Duration
}

// Reading is one poll's result.
type Reading struct {
	DiskUsedPct float64
	MemUsedPct  float64
	At          time.Time
}

type Sensor struct {
	cfg   Config
	probe func() (Reading, error)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	last          Reading
	diskAlert     bool
	memAlert      bool
	lastDiskAlert time.Time
	lastMemAlert  time.Time
}

func New(cfg Config) *Sensor {
	s := &Sensor{cfg: cfg, stopCh: make(chan struct{})}
	s.probe = s.probeHost
	return s
}

func (s *Sensor) probeHost() (Reading, error) {
	du, err := disk.Usage(s.cfg.Path)
	if err != nil {
		return Reading{}, fmt.Errorf("disk usage of %s: %w", s.cfg.Path, err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Reading{}, fmt.Errorf("virtual memory: %w", err)
	}
	return Reading{DiskUsedPct: du.UsedPercent, MemUsedPct: vm.UsedPercent, At: time.Now()}, nil
}

// Start polls in the background until Stop.
func (s *Sensor) Start() {
	if s.cfg.PollInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.run()
}

func (s *Sensor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sensor) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Check(); err != nil {
				logger.Warn("sensor_probe_failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Check takes one reading and updates the alert state.
func (s *Sensor) Check() (Reading, error) {
	r, err := s.probe()
	if err != nil {
		return Reading{}, err
	}
	s.evaluate(r)
	return r, nil
}

// Last is the most recent successful reading.
func (s *Sensor) Last() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Alerts reports whether the disk and memory alerts are raised.
func (s *Sensor) Alerts() (diskHigh, memHigh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert, s.memAlert
}

func (s *Sensor) evaluate(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
	now := r.At

	switch {
	case r.DiskUsedPct > float64(s.cfg.DiskHighPct):
		if !s.diskAlert {
			logger.Warn("disk_usage_high", "path", s.cfg.Path, "used_pct", r.DiskUsedPct, "threshold", s.cfg.DiskHighPct)
			s.diskAlert = true
		}
		s.lastDiskAlert = now
	case s.diskAlert && r.DiskUsedPct < float64(s.cfg.DiskLowPct):
		// must stay low for the whole recovery window
		if now.Sub(s.lastDiskAlert) >= s.cfg.RecoveryWindow {
			logger.Info("disk_usage_recovered", "path", s.cfg.Path, "used_pct", r.DiskUsedPct)
			s.diskAlert = false
		}
	}

	switch {
	case r.MemUsedPct > float64(s.cfg.MemHighPct):
		if !s.memAlert {
			logger.Warn("memory_usage_high", "used_pct", r.MemUsedPct, "threshold", s.cfg.MemHighPct)
			s.memAlert = true
		}
		s.lastMemAlert = now
	case s.memAlert:
		if now.Sub(s.lastMemAlert) >= s.cfg.RecoveryWindow {
			logger.Info("memory_usage_recovered", "used_pct", r.MemUsedPct)
			s.memAlert = false
		}
	}
}
