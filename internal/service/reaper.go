package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/infrastructure/metrics"
	"github.com/bnema/transcoder/internal/port"
)

const interruptedMessage = "interrupted"

// Reaper recovers from encoders that died without their owner noticing:
// it fails jobs whose lock is gone or stale and deletes stale locks.
type Reaper struct {
	store     port.JobStore
	locks     port.JobLocker
	interval  time.Duration
	retention time.Duration
}

func NewReaper(store port.JobStore, locks port.JobLocker, interval, retention time.Duration) *Reaper {
	return &Reaper{
		store:     store,
		locks:     locks,
		interval:  interval,
		retention: retention,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	// Fail any jobs orphaned by previous runs
	if _, err := r.RecoverInterrupted(ctx); err != nil {
		logger.Error.Printf("failed to recover interrupted jobs: %v", err)
	}

	go r.run(ctx)
	logger.Info.Printf("reaper started, interval %s", r.interval)
}

func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("reaper shutting down")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap runs one sweep: stale locks first, then orphaned jobs, then
// pruning of old finished jobs.
func (r *Reaper) Reap(ctx context.Context) {
	n, err := r.locks.Sweep()
	if err != nil {
		logger.Error.Printf("sweep locks: %v", err)
	}
	if n > 0 {
		metrics.LocksReclaimedTotal.Add(float64(n))
		logger.Info.Printf("reclaimed %d stale locks", n)
	}

	if _, err := r.RecoverInterrupted(ctx); err != nil {
		logger.Error.Printf("recover interrupted jobs: %v", err)
	}

	if r.retention > 0 {
		pruned, err := r.store.DeleteFinishedBefore(ctx, time.Now().Add(-r.retention))
		if err != nil {
			logger.Error.Printf("prune jobs: %v", err)
		} else if pruned > 0 {
			logger.Debug.Printf("pruned %d finished jobs", pruned)
		}
	}
}

// RecoverInterrupted marks pending and running jobs failed unless a live
// lock still names them.
func (r *Reaper) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := r.store.ListByStatus(ctx, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		info, live, err := r.locks.Inspect(job.Name)
		if err != nil {
			logger.Error.Printf("inspect lock for job %s: %v", job.ID, err)
			continue
		}
		if live && (info == nil || info.JobID == job.ID) {
			continue
		}

		if err := r.store.Fail(ctx, job.ID, interruptedMessage); err != nil {
			logger.Error.Printf("fail interrupted job %s: %v", job.ID, err)
			continue
		}
		logger.Warn.Printf("job %s (%s) was interrupted", job.ID, logger.SanitizeForLog(job.Name))
		metrics.JobsInterruptedTotal.Inc()
		recovered++
	}
	return recovered, nil
}
