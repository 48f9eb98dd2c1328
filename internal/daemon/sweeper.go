package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/axon-dev/axon/internal/queue"
)

// criticalFailureThreshold is how many consecutive sweep failures trigger a
// critical log entry.
const criticalFailureThreshold = 3

// runSweeper ticks until ctx is cancelled.
func (d *Daemon) runSweeper(ctx context.Context) {
	interval := d.sweepInterval()
	d.logger.Info("sweeper_started",
		slog.String("component", "sweeper"),
		slog.Duration("interval", interval),
		slog.Duration("stale_threshold", d.staleThreshold()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("sweeper_stopped", slog.String("component", "sweeper"))
			return
		case <-ticker.C:
			d.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one sweep and tracks consecutive failures.
func (d *Daemon) sweepOnce(ctx context.Context) {
	err := d.sweep(ctx)

	d.mu.Lock()
	if err != nil {
		d.consecutiveFailures++
	} else {
		d.consecutiveFailures = 0
	}
	failures := d.consecutiveFailures
	d.mu.Unlock()

	if err == nil {
		return
	}

	if failures >= criticalFailureThreshold {
		d.logger.Error("CRITICAL: sweeper failing repeatedly",
			slog.String("component", "sweeper"),
			slog.Int("consecutive_failures", failures),
			slog.String("error", err.Error()))
	} else {
		d.logger.Warn("sweep_failed",
			slog.String("component", "sweeper"),
			slog.Int("consecutive_failures", failures),
			slog.String("error", err.Error()))
	}
}

// sweep recovers stuck jobs, processes stale pending jobs serially, and
// removes failed jobs whose crawls are gone for good.
func (d *Daemon) sweep(ctx context.Context) error {
	var errs []error

	stuck, err := d.queue.GetStuckProcessingJobs(stuckThreshold)
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range stuck {
		if err := d.queue.ResetToPending(job.JobID); err != nil {
			errs = append(errs, err)
			continue
		}
		d.logger.Warn("stuck_job_recovered",
			slog.String("component", "sweeper"),
			slog.String("job_id", job.JobID))
	}

	stale, err := d.queue.GetStalePendingJobs(d.staleThreshold())
	if err != nil {
		errs = append(errs, err)
	}
	// Serial processing keeps the sweeper from flooding TEI and Qdrant;
	// concurrency comes only from webhook dispatch.
	for _, job := range stale {
		if ctx.Err() != nil {
			break
		}
		d.processJob(ctx, job.JobID, nil)
	}

	if err := d.cleanupTombstones(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// cleanupTombstones removes failed jobs whose crawl no longer exists
// upstream; retrying them can never succeed.
func (d *Daemon) cleanupTombstones() error {
	jobs, _, err := d.queue.List()
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if job.Status != queue.StatusFailed || !isJobNotFoundMessage(job.LastError) {
			continue
		}
		if err := d.queue.Remove(job.JobID); err != nil {
			d.logger.Warn("tombstone_cleanup_failed",
				slog.String("component", "sweeper"),
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()))
			continue
		}
		d.logger.Info("tombstone_removed",
			slog.String("component", "sweeper"),
			slog.String("job_id", job.JobID))
	}
	return nil
}
