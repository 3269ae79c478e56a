// Package maintenance runs jobs on a cron schedule, one process at a time,
// guarded by a file lease.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"chatstore/pkg/state/logger"

	"github.com/adhocore/gronx"
)

// Job is one maintenance run.
type Job func(ctx context.Context) error

type Scheduler struct {
	name  string
	cron  string
	ttl   time.Duration
	lease *FileLease
	owner string
	job   Job

	mu      sync.Mutex
	running bool
	runs    int
}

// New builds a scheduler for job. The lease file lives in leaseDir.
func New(name, cron string, ttl time.Duration, leaseDir string, job Job) (*Scheduler, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("maintenance %s: invalid cron expression %q", name, cron)
	}
	host, _ := os.Hostname()
	return &Scheduler{
		name:  name,
		cron:  cron,
		ttl:   ttl,
		lease: NewFileLease(leaseDir, name),
		owner: fmt.Sprintf("%s/%d", host, os.Getpid()),
		job:   job,
	}, nil
}

// Start runs the schedule until ctx is done or the returned cancel is
// called.
func (s *Scheduler) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	logger.Info("maintenance_scheduled", "job", s.name, "cron", s.cron)
	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now(), false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "job", s.name, "cron", s.cron, "error", err)
			next = time.Now().Add(30 * time.Second)
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-t.C:
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("maintenance_run_failed", "job", s.name, "error", err)
			}
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// RunOnce runs the job now if no other run holds the lease. It returns
// nil without running when the lease is held elsewhere or a run is
// already in progress in this process.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ok, err := s.lease.Acquire(s.owner, s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.lease.Release(s.owner); err != nil {
			logger.Warn("maintenance_lease_release_failed", "job", s.name, "error", err)
		}
	}()

	start := time.Now()
	logger.Info("maintenance_run_start", "job", s.name)
	err = s.job(ctx)
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	logger.Info("maintenance_run_done", "job", s.name, "took", time.Since(start).String(), "ok", err == nil)
	return err
}

// Runs counts completed runs.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
