package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

// recordedRequest captures one request to the fake Qdrant server.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeQdrant is a minimal in-process Qdrant standing in for the REST API.
type fakeQdrant struct {
	mu          sync.Mutex
	requests    []recordedRequest
	collections map[string]int // name -> dimension
	failures    int            // number of 503s to serve before succeeding
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]int{}}
}

func (f *fakeQdrant) record(r *http.Request) recordedRequest {
	var body map[string]any
	if data, err := io.ReadAll(r.Body); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func (f *fakeQdrant) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeQdrant) countRequests(method, path string) int {
	n := 0
	for _, r := range f.recorded() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := f.record(r)

	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
		f.mu.Lock()
		dim, ok := f.collections["docs"]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"result":{"status":"green","points_count":7,"config":{"params":{"vectors":{"size":%d,"distance":"Cosine"}}}}}`, dim)

	case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
		vectors := rec.Body["vectors"].(map[string]any)
		f.mu.Lock()
		f.collections["docs"] = int(vectors["size"].(float64))
		f.mu.Unlock()
		fmt.Fprint(w, `{"result":true,"status":"ok"}`)

	default:
		fmt.Fprint(w, `{"result":{},"status":"ok"}`)
	}
}

func newTestClient(t *testing.T, fake *fakeQdrant) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	retryCfg := axonerrors.RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
	c, err := NewClient(srv.URL, WithRetryConfig(retryCfg))
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.Equal(t, axonerrors.ErrCodeConfigMissingURL, axonerrors.GetCode(err))
}

func TestEnsureCollection_CreatesMissingCollectionWithIndexes(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.EnsureCollection(context.Background(), "docs", 768))

	assert.Equal(t, 768, fake.collections["docs"])
	assert.Equal(t, 3, fake.countRequests(http.MethodPut, "/collections/docs/index"),
		"url, domain, and source_command indexes")

	fields := map[string]bool{}
	for _, r := range fake.recorded() {
		if r.Path == "/collections/docs/index" {
			fields[r.Body["field_name"].(string)] = true
			assert.Equal(t, "keyword", r.Body["field_schema"])
		}
	}
	assert.Equal(t, map[string]bool{"url": true, "domain": true, "source_command": true}, fields)
}

func TestEnsureCollection_MemoizesSuccess(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.EnsureCollection(context.Background(), "docs", 768))
	before := len(fake.recorded())

	require.NoError(t, c.EnsureCollection(context.Background(), "docs", 768))
	assert.Equal(t, before, len(fake.recorded()), "memoized call must not touch the network")
}

func TestEnsureCollection_DimensionMismatchOnServer(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections["docs"] = 1024
	c := newTestClient(t, fake)

	err := c.EnsureCollection(context.Background(), "docs", 768)

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1024, mismatch.Stored)
	assert.Equal(t, 768, mismatch.Requested)
}

func TestEnsureCollection_DimensionMismatchFromCache(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.EnsureCollection(context.Background(), "docs", 768))
	before := len(fake.recorded())

	err := c.EnsureCollection(context.Background(), "docs", 1024)

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, before, len(fake.recorded()), "cached mismatch is detected offline")
}

func TestEnsureCollection_RejectsInvalidName(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	err := c.EnsureCollection(context.Background(), "../etc", 768)
	require.Error(t, err)
	assert.Empty(t, fake.recorded(), "invalid names never reach the network")
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	fake := newFakeQdrant()
	fake.failures = 2
	c := newTestClient(t, fake)

	require.NoError(t, c.EnsureCollection(context.Background(), "docs", 768))
	assert.Equal(t, 768, fake.collections["docs"])
}

func TestGetCollectionInfo(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections["docs"] = 768
	c := newTestClient(t, fake)

	info, err := c.GetCollectionInfo(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "green", info.Status)
	assert.Equal(t, int64(7), info.PointsCount)
	assert.Equal(t, 768, info.Dimension)
	assert.Equal(t, "Cosine", info.Distance)
}

func TestGetCollectionInfo_NotFound(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	_, err := c.GetCollectionInfo(context.Background(), "docs")
	assert.True(t, isNotFound(err))
}
