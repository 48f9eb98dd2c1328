// Package queue is the durable on-disk job queue shared by the CLI and the
// daemon. Each job lives in its own JSON file guarded by an advisory file
// lock, so concurrent daemon workers, the sweeper, and CLI commands can all
// mutate jobs safely.
package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio"

	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/validation"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// Queue manages job files in a single directory.
type Queue struct {
	dir        string
	logger     *slog.Logger
	maxRetries int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the retry budget stamped on newly enqueued jobs.
// Non-positive values keep the default.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// Open creates (if needed) and opens a queue directory. The directory is
// private to the owner because job files carry crawl URLs and error details.
func Open(dir string, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if dir == "" {
		return nil, axonerrors.New(axonerrors.ErrCodeConfigInvalid, "queue directory is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, axonerrors.New(axonerrors.ErrCodeQueueIO, "failed to create queue directory", err)
	}

	q := &Queue{dir: dir, logger: logger, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Dir returns the queue directory path.
func (q *Queue) Dir() string {
	return q.dir
}

func (q *Queue) jobPath(jobID string) string {
	return filepath.Join(q.dir, jobID+".json")
}

func (q *Queue) lockPath(jobID string) string {
	return q.jobPath(jobID) + ".lock"
}

// writeJob persists a job atomically with owner-only permissions.
func (q *Queue) writeJob(job *Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(q.jobPath(job.JobID), data, fileMode); err != nil {
		return axonerrors.New(axonerrors.ErrCodeQueueIO, "failed to write job file", err)
	}
	return nil
}

// readJob loads and validates a job file.
func (q *Queue) readJob(jobID string) (*Job, error) {
	data, err := os.ReadFile(q.jobPath(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, axonerrors.Newf(axonerrors.ErrCodeJobNotFound, "job %s not found", jobID)
		}
		return nil, axonerrors.New(axonerrors.ErrCodeQueueIO, "failed to read job file", err)
	}
	return decodeJob(data)
}

// Enqueue creates a new pending job. The apiKey stays in memory only.
func (q *Queue) Enqueue(jobID, url, apiKey string) (*Job, error) {
	if err := validation.ValidateJobID(jobID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &Job{
		JobID:      jobID,
		URL:        url,
		Status:     StatusPending,
		Retries:    0,
		MaxRetries: q.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
		APIKey:     apiKey,
	}
	if err := q.writeJob(job); err != nil {
		return nil, err
	}

	q.logger.Info("job_enqueued",
		slog.String("job_id", jobID),
		slog.String("url", url))
	return job, nil
}

// withJobLock runs a read-modify-write cycle under the job's advisory lock.
// The mutator sees a validated job; UpdatedAt is stamped after it returns.
// lockRetries controls contention behavior: zero for tryClaim-style callers.
func (q *Queue) withJobLock(jobID string, lockRetries int, mutate func(*Job) error) error {
	if err := validation.ValidateJobID(jobID); err != nil {
		return err
	}

	lock, err := acquireJobLock(q.lockPath(jobID), lockRetries)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lock.release(); relErr != nil {
			q.logger.Warn("job_lock_release_failed",
				slog.String("job_id", jobID),
				slog.String("error", relErr.Error()))
		}
	}()

	job, err := q.readJob(jobID)
	if err != nil {
		return err
	}
	if err := mutate(job); err != nil {
		return err
	}

	job.UpdatedAt = time.Now().UTC()
	if err := job.validate(); err != nil {
		return err
	}
	return q.writeJob(job)
}

// errNotClaimable distinguishes "job is not pending" from real failures
// inside TryClaim.
var errNotClaimable = errors.New("job not claimable")

// TryClaim atomically transitions pending -> processing. It returns false
// when the job is not pending or the lock is contended; exactly one of N
// concurrent claimants succeeds.
func (q *Queue) TryClaim(jobID string) (bool, error) {
	err := q.withJobLock(jobID, 0, func(job *Job) error {
		if job.Status != StatusPending {
			return errNotClaimable
		}
		job.Status = StatusProcessing
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNotClaimable):
		return false, nil
	case axonerrors.HasCode(err, axonerrors.ErrCodeLockContended):
		return false, nil
	default:
		return false, err
	}
}

// MarkCompleted transitions a job to terminal success.
func (q *Queue) MarkCompleted(jobID string) error {
	return q.withJobLock(jobID, defaultLockRetries, func(job *Job) error {
		job.Status = StatusCompleted
		job.LastError = ""
		return nil
	})
}

// MarkFailed records a failure. The job goes back to pending with an
// incremented retry count until the budget is exhausted, then turns failed.
func (q *Queue) MarkFailed(jobID, errMsg string) error {
	return q.withJobLock(jobID, defaultLockRetries, func(job *Job) error {
		job.LastError = errMsg
		if job.Retries+1 >= job.MaxRetries {
			job.Retries = job.MaxRetries
			job.Status = StatusFailed
		} else {
			job.Retries++
			job.Status = StatusPending
		}
		return nil
	})
}

// MarkPendingNoRetry defers a job without consuming a retry. Used when the
// upstream crawl is still running.
func (q *Queue) MarkPendingNoRetry(jobID, errMsg string) error {
	return q.withJobLock(jobID, defaultLockRetries, func(job *Job) error {
		job.Status = StatusPending
		job.LastError = errMsg
		return nil
	})
}

// MarkConfigError fails a job permanently due to missing configuration.
func (q *Queue) MarkConfigError(jobID, errMsg string) error {
	return q.markTerminalFailed(jobID, errMsg)
}

// MarkPermanentFailed fails a job permanently; no retries remain.
func (q *Queue) MarkPermanentFailed(jobID, errMsg string) error {
	return q.markTerminalFailed(jobID, errMsg)
}

func (q *Queue) markTerminalFailed(jobID, errMsg string) error {
	return q.withJobLock(jobID, defaultLockRetries, func(job *Job) error {
		job.Status = StatusFailed
		job.Retries = job.MaxRetries
		job.LastError = errMsg
		return nil
	})
}

// UpdateProgress persists progress counters. Uses zero lock retries: a
// skipped progress write is cheaper than stalling the pipeline. Callers
// throttle how often they invoke it.
func (q *Queue) UpdateProgress(jobID string, processed, failed, total int) error {
	err := q.withJobLock(jobID, 0, func(job *Job) error {
		now := time.Now().UTC()
		job.TotalDocuments = &total
		job.ProcessedDocuments = &processed
		job.FailedDocuments = &failed
		job.ProgressUpdatedAt = &now
		return nil
	})
	if axonerrors.HasCode(err, axonerrors.ErrCodeLockContended) {
		return nil
	}
	return err
}

// DetailedStatus classifies the on-disk state of a job file.
type DetailedStatus string

const (
	// StatusFound means the job file exists and is valid.
	StatusFound DetailedStatus = "found"
	// StatusNotFound means no job file exists.
	StatusNotFound DetailedStatus = "not_found"
	// StatusCorrupted means the file exists but fails schema validation.
	StatusCorrupted DetailedStatus = "corrupted"
)

// DetailedResult is the outcome of GetDetailed.
type DetailedResult struct {
	Status DetailedStatus
	Job    *Job
	Err    error
}

// GetDetailed reports whether a job exists, is corrupted, or is readable.
func (q *Queue) GetDetailed(jobID string) DetailedResult {
	if err := validation.ValidateJobID(jobID); err != nil {
		return DetailedResult{Status: StatusNotFound, Err: err}
	}

	job, err := q.readJob(jobID)
	switch {
	case err == nil:
		return DetailedResult{Status: StatusFound, Job: job}
	case axonerrors.HasCode(err, axonerrors.ErrCodeJobNotFound):
		return DetailedResult{Status: StatusNotFound, Err: err}
	default:
		return DetailedResult{Status: StatusCorrupted, Err: err}
	}
}

// List returns all valid jobs plus the count of corrupted files skipped.
func (q *Queue) List() ([]*Job, int, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, 0, axonerrors.New(axonerrors.ErrCodeQueueIO, "failed to read queue directory", err)
	}

	var jobs []*Job
	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		jobID := strings.TrimSuffix(name, ".json")
		if validation.ValidateJobID(jobID) != nil {
			skipped++
			continue
		}

		job, err := q.readJob(jobID)
		if err != nil {
			skipped++
			q.logger.Warn("job_file_skipped",
				slog.String("file", name),
				slog.String("error", err.Error()))
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, skipped, nil
}

// GetPendingJobs returns pending jobs with retry budget left, FIFO by
// creation time.
func (q *Queue) GetPendingJobs() ([]*Job, error) {
	jobs, _, err := q.List()
	if err != nil {
		return nil, err
	}

	var pending []*Job
	for _, job := range jobs {
		if job.Status == StatusPending && job.Retries < job.MaxRetries {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

// GetStalePendingJobs returns pending jobs not touched within maxAge.
func (q *Queue) GetStalePendingJobs(maxAge time.Duration) ([]*Job, error) {
	pending, err := q.GetPendingJobs()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	var stale []*Job
	for _, job := range pending {
		if !job.UpdatedAt.After(cutoff) {
			stale = append(stale, job)
		}
	}
	return stale, nil
}

// GetStuckProcessingJobs returns processing jobs not touched within maxAge.
// These are jobs whose worker died mid-flight; the sweeper reverts them to
// pending.
func (q *Queue) GetStuckProcessingJobs(maxAge time.Duration) ([]*Job, error) {
	jobs, _, err := q.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	var stuck []*Job
	for _, job := range jobs {
		if job.Status == StatusProcessing && job.Retries < job.MaxRetries && !job.UpdatedAt.After(cutoff) {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

// ResetToPending reverts a stuck processing job to pending, keeping its
// retry count and history.
func (q *Queue) ResetToPending(jobID string) error {
	return q.withJobLock(jobID, defaultLockRetries, func(job *Job) error {
		if job.Status != StatusProcessing {
			return nil
		}
		job.Status = StatusPending
		return nil
	})
}

// CleanupTerminal removes completed and failed jobs older than the horizon.
// Returns the number of jobs removed.
func (q *Queue) CleanupTerminal(olderThan time.Duration) (int, error) {
	jobs, _, err := q.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	for _, job := range jobs {
		if job.Status != StatusCompleted && job.Status != StatusFailed {
			continue
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := q.Remove(job.JobID); err != nil {
			q.logger.Warn("job_cleanup_failed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}

// Remove deletes a job file and its lock file.
func (q *Queue) Remove(jobID string) error {
	if err := validation.ValidateJobID(jobID); err != nil {
		return err
	}
	if err := os.Remove(q.jobPath(jobID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return axonerrors.New(axonerrors.ErrCodeQueueIO,
			fmt.Sprintf("failed to remove job %s", jobID), err)
	}
	// Lock files are disposable; best effort.
	_ = os.Remove(q.lockPath(jobID))
	return nil
}

// Counts returns the number of pending and processing jobs, for the daemon
// status endpoint.
func (q *Queue) Counts() (pending, processing int, err error) {
	jobs, _, err := q.List()
	if err != nil {
		return 0, 0, err
	}
	for _, job := range jobs {
		switch job.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		}
	}
	return pending, processing, nil
}
