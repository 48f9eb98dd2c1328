package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

func TestUpsertPoints_SendsPoints(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	points := []Point{
		{ID: "11111111-1111-1111-1111-111111111111", Vector: []float32{1, 2}, Payload: map[string]any{"url": "https://a"}},
	}
	require.NoError(t, c.UpsertPoints(context.Background(), "docs", points))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/collections/docs/points", reqs[0].Path)
	sent := reqs[0].Body["points"].([]any)
	require.Len(t, sent, 1)
}

func TestUpsertPoints_EmptyIsNoOp(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.UpsertPoints(context.Background(), "docs", nil))
	assert.Empty(t, fake.recorded())
}

func TestDeleteByURL(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.DeleteByURL(context.Background(), "docs", "https://a/b"))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/collections/docs/points/delete", reqs[0].Path)

	filter := reqs[0].Body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "url", cond["key"])
	assert.Equal(t, "https://a/b", cond["match"].(map[string]any)["value"])
}

func TestDeleteByURL_EmptyURLIsNoOp(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.DeleteByURL(context.Background(), "docs", ""))
	require.NoError(t, c.DeleteByDomain(context.Background(), "docs", ""))
	assert.Empty(t, fake.recorded(), "empty filters must not trigger mass deletes")
}

func TestDeleteAll_SendsExplicitEmptyMust(t *testing.T) {
	fake := newFakeQdrant()
	c := newTestClient(t, fake)

	require.NoError(t, c.DeleteAll(context.Background(), "docs"))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	filter := reqs[0].Body["filter"].(map[string]any)
	must, ok := filter["must"].([]any)
	require.True(t, ok, `"must" must serialize as an array, not null`)
	assert.Empty(t, must)
}

func TestQueryPoints_ParsesScoredPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/query", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, true, body["with_payload"])
		fmt.Fprint(w, `{"result":{"points":[{"id":"p1","score":0.9,"payload":{"url":"https://a"}}]}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	points, err := c.QueryPoints(context.Background(), "docs", []float32{1, 2, 3}, 5, nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "p1", points[0].ID)
	assert.InDelta(t, 0.9, points[0].Score, 1e-6)
	assert.Equal(t, "https://a", points[0].Payload["url"])
}

func TestScrollAll_PaginatesUntilNullOffset(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/scroll", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["with_vector"])

		page++
		switch page {
		case 1:
			assert.Nil(t, body["offset"])
			fmt.Fprint(w, `{"result":{"points":[{"id":"a"},{"id":"b"}],"next_page_offset":"cursor-1"}}`)
		case 2:
			assert.Equal(t, "cursor-1", body["offset"])
			fmt.Fprint(w, `{"result":{"points":[{"id":"c"}],"next_page_offset":null}}`)
		default:
			t.Error("unexpected extra page")
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	points, err := c.ScrollAll(context.Background(), "docs", nil)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 2, page)
}

func TestScrollByURL_OrdersByChunkIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"points":[
			{"id":"c","payload":{"chunk_index":2}},
			{"id":"a","payload":{"chunk_index":0}},
			{"id":"b","payload":{"chunk_index":1}}
		],"next_page_offset":null}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	points, err := c.ScrollByURL(context.Background(), "docs", "https://a")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{points[0].ID, points[1].ID, points[2].ID})
}

func TestCounts(t *testing.T) {
	var lastBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/count", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &lastBody)
		fmt.Fprint(w, `{"result":{"count":12}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	total, err := c.CountPoints(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Nil(t, lastBody["filter"])

	_, err = c.CountByURL(context.Background(), "docs", "https://a")
	require.NoError(t, err)
	require.NotNil(t, lastBody["filter"])

	_, err = c.CountByDomain(context.Background(), "docs", "example.com")
	require.NoError(t, err)
	filter := lastBody["filter"].(map[string]any)
	cond := filter["must"].([]any)[0].(map[string]any)
	assert.Equal(t, "domain", cond["key"])
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	retryCfg := axonerrors.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	c, err := NewClient(srv.URL, WithRetryConfig(retryCfg))
	require.NoError(t, err)

	err = c.UpsertPoints(context.Background(), "docs", []Point{{ID: "x"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "400 must not be retried")
}
