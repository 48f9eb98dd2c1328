// Package validation provides input validators for identifiers that cross
// trust boundaries: crawl job IDs (which form file paths in the queue
// directory) and Qdrant collection names (which are interpolated into URLs).
package validation

import (
	"net/url"
	"regexp"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

// MaxJobIDLength is the maximum accepted job ID length.
const MaxJobIDLength = 128

// MaxCollectionLength is the maximum accepted collection name length.
const MaxCollectionLength = 128

var (
	jobIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	collectionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidateJobID checks that a job ID is safe to use as a file name component.
// Job IDs come from the remote scraping API and from webhook payloads, so
// anything outside [A-Za-z0-9_-] is rejected to prevent path traversal.
func ValidateJobID(id string) error {
	if id == "" {
		return axonerrors.New(axonerrors.ErrCodeInvalidJobID, "job ID is empty", nil)
	}
	if len(id) > MaxJobIDLength {
		return axonerrors.Newf(axonerrors.ErrCodeInvalidJobID,
			"job ID exceeds %d characters", MaxJobIDLength)
	}
	if !jobIDPattern.MatchString(id) {
		return axonerrors.Newf(axonerrors.ErrCodeInvalidJobID,
			"job ID %q contains invalid characters", id)
	}
	return nil
}

// ValidateCollectionName checks that a Qdrant collection name matches the
// accepted pattern. Names are additionally URL-encoded at every interpolation
// site; this check is the first line of defense.
func ValidateCollectionName(name string) error {
	if name == "" {
		return axonerrors.New(axonerrors.ErrCodeInvalidCollection, "collection name is empty", nil)
	}
	if len(name) > MaxCollectionLength {
		return axonerrors.Newf(axonerrors.ErrCodeInvalidCollection,
			"collection name exceeds %d characters", MaxCollectionLength)
	}
	if !collectionPattern.MatchString(name) {
		return axonerrors.Newf(axonerrors.ErrCodeInvalidCollection,
			"collection name %q contains invalid characters", name)
	}
	return nil
}

// DomainFromURL extracts the host component of a URL for payload filtering.
// Returns "unknown" when the URL cannot be parsed or has no host.
func DomainFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
