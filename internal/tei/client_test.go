package tei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

func testClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.BatchRetryDelay == 0 {
		cfg.BatchRetryDelay = time.Millisecond
	}
	return NewClient(cfg)
}

func TestInfo_ParsesAndMemoizes(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		calls.Add(1)
		fmt.Fprint(w, `{"model_id":"BAAI/bge-large-en-v1.5","max_input_length":512,"model_type":{"embedding":{"dim":768}}}`)
	})

	c := testClient(t, handler, Config{})

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BAAI/bge-large-en-v1.5", info.ModelID)
	assert.Equal(t, 768, info.Dimension)
	assert.Equal(t, 512, info.MaxInput)

	// Second call served from cache.
	_, err = c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInfo_CapitalizedVariantKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model_id":"m","model_type":{"Embedding":{"dim":384}}}`)
	})

	c := testClient(t, handler, Config{})

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 384, info.Dimension)
}

func TestInfo_AppliesDefaults(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	c := testClient(t, handler, Config{})

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unknown", info.ModelID)
	assert.Equal(t, 1024, info.Dimension)
	assert.Equal(t, 32768, info.MaxInput)
}

func TestInfo_ErrorCarriesStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	c := testClient(t, handler, Config{})

	_, err := c.Info(context.Background())
	require.Error(t, err)
	assert.Equal(t, axonerrors.ErrCodeTeiInfoFailed, axonerrors.GetCode(err))
	assert.Contains(t, err.Error(), "503")
}

func TestEmbedBatch_EmptyInputNoCall(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected for empty input")
	})

	c := testClient(t, handler, Config{})

	got, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbedBatch_RejectsOversizedBatch(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused", BatchSize: 2})

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Equal(t, axonerrors.ErrCodeInvalidInput, axonerrors.GetCode(err))
}

func TestEmbedBatch_ReturnsVectors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0.5}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	})

	c := testClient(t, handler, Config{})

	got, err := c.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0, 0.5}, got[0])
	assert.Equal(t, []float32{1, 0.5}, got[1])
}

func TestEmbedBatch_LengthMismatchIsMalformed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1,2]]`)
	})

	c := testClient(t, handler, Config{})

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, axonerrors.ErrCodeTeiMalformed, axonerrors.GetCode(err))
}

func TestEmbedChunks_PreservesOrderAcrossBatches(t *testing.T) {
	// Mock returns [i, j] for the j-th input of a batch whose first input
	// carries its batch number, mirroring a deterministic upstream.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Inputs))
		for j, input := range req.Inputs {
			var tag float32
			_, _ = fmt.Sscanf(input, "t%f", &tag)
			vectors[j] = []float32{tag, float32(j)}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	})

	c := testClient(t, handler, Config{BatchSize: 2, Concurrency: 2})

	got, err := c.EmbedChunks(context.Background(), []string{"t1", "t1", "t2", "t2"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, got)
}

func TestEmbedChunks_EmptyInput(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected")
	})

	c := testClient(t, handler, Config{})

	got, err := c.EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbedChunks_RetriesFailedBatch(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{1}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	})

	c := testClient(t, handler, Config{BatchSize: 4, BatchRetries: 2})

	got, err := c.EmbedChunks(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestEmbedChunks_NonRetryable4xxShortCircuits(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	})

	c := testClient(t, handler, Config{BatchRetries: 3})

	_, err := c.EmbedChunks(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "422 must not be retried")
}
