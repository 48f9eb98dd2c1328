// Package errors provides structured error handling for axon.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Queue and file I/O errors
//   - 3XX: Network errors (TEI, Qdrant, crawl API)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates queue file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigMissingURL = "ERR_103_CONFIG_MISSING_URL"

	// Queue / IO errors (200-299)
	ErrCodeJobNotFound   = "ERR_201_JOB_NOT_FOUND"
	ErrCodeJobCorrupted  = "ERR_202_JOB_CORRUPTED"
	ErrCodeQueueIO       = "ERR_203_QUEUE_IO"
	ErrCodeLockContended = "ERR_204_LOCK_CONTENDED"
	ErrCodeLockPermanent = "ERR_205_LOCK_PERMANENT"

	// Network errors (300-399)
	ErrCodeTeiInfoFailed       = "ERR_301_TEI_INFO_FAILED"
	ErrCodeTeiEmbedFailed      = "ERR_302_TEI_EMBED_FAILED"
	ErrCodeTeiTimeout          = "ERR_303_TEI_TIMEOUT"
	ErrCodeTeiMalformed        = "ERR_304_TEI_MALFORMED_RESPONSE"
	ErrCodeVectorStoreFailed   = "ERR_305_VECTOR_STORE_FAILED"
	ErrCodeDimensionMismatch   = "ERR_306_COLLECTION_DIMENSION_MISMATCH"
	ErrCodeCrawlRequestFailed  = "ERR_307_CRAWL_REQUEST_FAILED"
	ErrCodeCrawlJobNotFound    = "ERR_308_CRAWL_JOB_NOT_FOUND"
	ErrCodeCrawlStillRunning   = "ERR_309_CRAWL_STILL_RUNNING"
	ErrCodeCrawlFailedUpstream = "ERR_310_CRAWL_FAILED_UPSTREAM"
	ErrCodeCollectionNotFound  = "ERR_311_COLLECTION_NOT_FOUND"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidJobID      = "ERR_402_INVALID_JOB_ID"
	ErrCodeInvalidCollection = "ERR_403_INVALID_COLLECTION"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodePipelineFailed = "ERR_502_PIPELINE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeJobCorrupted, ErrCodeLockPermanent, ErrCodeDimensionMismatch:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTeiInfoFailed,
		ErrCodeTeiEmbedFailed,
		ErrCodeTeiTimeout,
		ErrCodeVectorStoreFailed,
		ErrCodeCrawlRequestFailed,
		ErrCodeLockContended:
		return true
	}
	return false
}
