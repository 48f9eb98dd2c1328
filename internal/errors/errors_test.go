package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeJobNotFound, CategoryIO},
		{ErrCodeTeiEmbedFailed, CategoryNetwork},
		{ErrCodeInvalidJobID, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{"bogus", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "msg", nil).Category)
		})
	}
}

func TestNew_DerivesRetryable(t *testing.T) {
	assert.True(t, New(ErrCodeTeiEmbedFailed, "embed failed", nil).Retryable)
	assert.True(t, New(ErrCodeVectorStoreFailed, "qdrant down", nil).Retryable)
	assert.False(t, New(ErrCodeCrawlJobNotFound, "gone", nil).Retryable)
	assert.False(t, New(ErrCodeDimensionMismatch, "768 != 1024", nil).Retryable)
}

func TestError_FormatsCodeAndMessage(t *testing.T) {
	err := New(ErrCodeJobCorrupted, "schema validation failed", nil)
	assert.Equal(t, "[ERR_202_JOB_CORRUPTED] schema validation failed", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeCrawlRequestFailed, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Message)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeJobNotFound, "job a1 not found", nil)
	b := New(ErrCodeJobNotFound, "different message", nil)
	c := New(ErrCodeJobCorrupted, "corrupted", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestHasCode_SearchesChain(t *testing.T) {
	inner := New(ErrCodeCrawlJobNotFound, "crawl job gone", nil)
	wrapped := fmt.Errorf("processing: %w", inner)

	assert.True(t, HasCode(wrapped, ErrCodeCrawlJobNotFound))
	assert.False(t, HasCode(wrapped, ErrCodeTeiTimeout))
	assert.False(t, HasCode(nil, ErrCodeTeiTimeout))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeDimensionMismatch, "mismatch", nil)))
	assert.False(t, IsFatal(New(ErrCodeTeiTimeout, "timeout", nil)))
	assert.False(t, IsFatal(nil))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeVectorStoreFailed, "upsert failed", nil).
		WithDetail("collection", "docs").
		WithDetail("points", "42")

	assert.Equal(t, "docs", err.Details["collection"])
	assert.Equal(t, "42", err.Details["points"])
}
