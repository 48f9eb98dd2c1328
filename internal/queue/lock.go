package queue

import (
	"time"

	"github.com/gofrs/flock"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

// Lock acquisition policy. Normal mutations retry briefly; tryClaim and
// low-priority progress writes use zero retries so contention means "someone
// else is on it" rather than a stall.
const (
	defaultLockRetries    = 5
	defaultLockRetryDelay = 200 * time.Millisecond
)

// jobLock is a cross-process advisory lock over one job file, held via an
// adjacent <jobId>.json.lock file. Advisory flock locks are released by the
// OS when the holding process dies, so a crashed daemon never wedges the
// queue.
type jobLock struct {
	fl *flock.Flock
}

// acquireJobLock tries to take the lock, retrying up to retries times with a
// fixed delay. retries == 0 means a single non-blocking attempt.
func acquireJobLock(path string, retries int) (*jobLock, error) {
	fl := flock.New(path)

	for attempt := 0; ; attempt++ {
		acquired, err := fl.TryLock()
		if err != nil {
			return nil, axonerrors.New(axonerrors.ErrCodeLockPermanent,
				"failed to acquire job lock", err)
		}
		if acquired {
			return &jobLock{fl: fl}, nil
		}
		if attempt >= retries {
			return nil, axonerrors.Newf(axonerrors.ErrCodeLockContended,
				"job lock %s held by another worker", path)
		}
		time.Sleep(defaultLockRetryDelay)
	}
}

// release unlocks the job file. Release failures are reported, not fatal;
// callers log and continue because flock cleans up on process exit anyway.
func (l *jobLock) release() error {
	if err := l.fl.Unlock(); err != nil {
		return axonerrors.New(axonerrors.ErrCodeLockContended, "failed to release job lock", err)
	}
	return nil
}
