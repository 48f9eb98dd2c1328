package queue

import (
	"bytes"
	"encoding/json"
	"time"

	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/validation"
)

// Status is the lifecycle state of an embed job.
type Status string

const (
	// StatusPending means the job is waiting to be processed.
	StatusPending Status = "pending"
	// StatusProcessing means a worker has claimed the job.
	StatusProcessing Status = "processing"
	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal failure after retries are exhausted.
	StatusFailed Status = "failed"
)

// DefaultMaxRetries is the retry budget for new jobs.
const DefaultMaxRetries = 3

// Job is one durable embed job, persisted as <jobId>.json in the queue
// directory. The on-disk schema is strict: unknown fields fail validation.
type Job struct {
	JobID      string `json:"jobId"`
	URL        string `json:"url"`
	Status     Status `json:"status"`
	Retries    int    `json:"retries"`
	MaxRetries int    `json:"maxRetries"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LastError string `json:"lastError,omitempty"`

	TotalDocuments     *int       `json:"totalDocuments,omitempty"`
	ProcessedDocuments *int       `json:"processedDocuments,omitempty"`
	FailedDocuments    *int       `json:"failedDocuments,omitempty"`
	ProgressUpdatedAt  *time.Time `json:"progressUpdatedAt,omitempty"`

	// APIKey is held in memory for the daemon's scraping API calls and is
	// never written to disk.
	APIKey string `json:"-"`
}

// validate checks the schema invariants a job file must satisfy. A file that
// fails validation is treated as corrupted and never returned to callers.
func (j *Job) validate() error {
	if err := validation.ValidateJobID(j.JobID); err != nil {
		return err
	}

	switch j.Status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return axonerrors.Newf(axonerrors.ErrCodeJobCorrupted, "unknown status %q", j.Status)
	}

	if j.Retries < 0 || j.MaxRetries < 0 || j.Retries > j.MaxRetries {
		return axonerrors.Newf(axonerrors.ErrCodeJobCorrupted,
			"invalid retry counters %d/%d", j.Retries, j.MaxRetries)
	}

	if j.TotalDocuments != nil && j.ProcessedDocuments != nil && j.FailedDocuments != nil {
		if *j.ProcessedDocuments+*j.FailedDocuments > *j.TotalDocuments {
			return axonerrors.Newf(axonerrors.ErrCodeJobCorrupted,
				"progress %d+%d exceeds total %d",
				*j.ProcessedDocuments, *j.FailedDocuments, *j.TotalDocuments)
		}
	}

	return nil
}

// decodeJob parses and validates a job file. Unknown fields are rejected so
// that secrets or stray data in a job file surface as corruption instead of
// being silently carried along.
func decodeJob(data []byte) (*Job, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var job Job
	if err := dec.Decode(&job); err != nil {
		return nil, axonerrors.New(axonerrors.ErrCodeJobCorrupted, "job file does not match schema", err)
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// encodeJob serializes a job for disk. The APIKey field carries `json:"-"`
// so every write path strips it.
func encodeJob(job *Job) ([]byte, error) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, axonerrors.Wrap(axonerrors.ErrCodeQueueIO, err)
	}
	return data, nil
}
