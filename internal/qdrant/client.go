// Package qdrant is a REST client for the Qdrant vector database, covering
// the collection lifecycle, point upserts, filtered deletes, similarity
// queries, scrolling, and counts.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/validation"
)

const (
	// DefaultTimeout bounds each Qdrant request.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxRetries is the number of retries on transient failures.
	DefaultMaxRetries = 3
	// ensureCacheSize caps the collection-existence memo.
	ensureCacheSize = 100
	// scrollPageSize is the page size used by ScrollAll.
	scrollPageSize = 100
)

// ErrCollectionNotFound marks a 404 on a collection lookup.
var ErrCollectionNotFound = axonerrors.New(axonerrors.ErrCodeCollectionNotFound,
	"collection not found", nil)

// DimensionMismatchError reports a collection whose stored vector dimension
// differs from the embedding model's dimension. This is fatal: embedding into
// the collection would silently corrupt search results.
type DimensionMismatchError struct {
	Collection string
	Stored     int
	Requested  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("collection %q has dimension %d, embedding model requires %d",
		e.Collection, e.Stored, e.Requested)
}

// Point is one stored vector plus payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ScoredPoint is a query result.
type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Filter restricts deletes, queries, and scrolls by payload fields.
type Filter struct {
	Must []Condition `json:"must"`
}

// Condition matches one payload field against a value.
type Condition struct {
	Key   string     `json:"key"`
	Match MatchValue `json:"match"`
}

// MatchValue wraps the matched value in Qdrant's filter shape.
type MatchValue struct {
	Value any `json:"value"`
}

// MatchKeyword builds a single-field keyword filter.
func MatchKeyword(key, value string) Filter {
	return Filter{Must: []Condition{{Key: key, Match: MatchValue{Value: value}}}}
}

// CollectionInfo summarizes a collection.
type CollectionInfo struct {
	Status      string
	PointsCount int64
	Dimension   int
	Distance    string
}

// Client talks to a Qdrant instance over REST. Successful EnsureCollection
// calls are memoized per collection name in a bounded LRU so repeated embeds
// skip the existence check.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   axonerrors.RetryConfig
	logger     *slog.Logger

	// name -> dimension confirmed on the server
	ensured *lru.Cache[string, int]
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg axonerrors.RetryConfig) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Qdrant client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, axonerrors.New(axonerrors.ErrCodeConfigMissingURL, "qdrant URL is required", nil)
	}

	cache, err := lru.New[string, int](ensureCacheSize)
	if err != nil {
		return nil, err
	}

	retryCfg := axonerrors.DefaultRetryConfig()
	retryCfg.MaxRetries = DefaultMaxRetries

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retryCfg:   retryCfg,
		logger:     slog.Default(),
		ensured:    cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// collectionPath builds a /collections/... path with the name URL-encoded.
// Names are validated by callers; encoding here is defense in depth.
func collectionPath(name string, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

// envelope is Qdrant's standard response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// do performs one request with retries on transient failures (network
// errors, 5xx, 408, 429). The decoded "result" field is unmarshaled into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return axonerrors.Wrap(axonerrors.ErrCodeVectorStoreFailed, err)
		}
	}

	return axonerrors.Retry(ctx, c.retryCfg, func() error {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return axonerrors.Wrap(axonerrors.ErrCodeVectorStoreFailed, err)
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network errors and timeouts are transient.
			return axonerrors.Wrap(axonerrors.ErrCodeVectorStoreFailed, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNotFound {
			return ErrCollectionNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			reqErr := axonerrors.Newf(axonerrors.ErrCodeVectorStoreFailed,
				"qdrant %s %s returned status %d: %s", method, path, resp.StatusCode, string(respBody))
			if resp.StatusCode < 500 &&
				resp.StatusCode != http.StatusRequestTimeout &&
				resp.StatusCode != http.StatusTooManyRequests {
				reqErr.Retryable = false
			}
			return reqErr
		}

		if out == nil {
			return nil
		}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return axonerrors.New(axonerrors.ErrCodeVectorStoreFailed,
				"failed to decode qdrant response", err)
		}
		if len(env.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Result, out); err != nil {
			return axonerrors.New(axonerrors.ErrCodeVectorStoreFailed,
				"failed to decode qdrant result", err)
		}
		return nil
	})
}

// collectionResult mirrors the GET /collections/<name> result shape.
type collectionResult struct {
	Status string `json:"status"`
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
	PointsCount int64 `json:"points_count"`
}

// GetCollectionInfo fetches collection status, dimension, and point count.
func (c *Client) GetCollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return CollectionInfo{}, err
	}

	var result collectionResult
	if err := c.do(ctx, http.MethodGet, collectionPath(name, ""), nil, &result); err != nil {
		return CollectionInfo{}, err
	}

	return CollectionInfo{
		Status:      result.Status,
		PointsCount: result.PointsCount,
		Dimension:   result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, nil
}

// indexedFields are the payload fields that get keyword indexes so deletes
// and filtered queries stay fast.
var indexedFields = []string{"url", "domain", "source_command"}

// EnsureCollection makes sure the named collection exists with the given
// vector dimension and keyword payload indexes. Success is memoized; a later
// call with a different dimension fails with DimensionMismatchError without
// touching the network.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := validation.ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return axonerrors.Newf(axonerrors.ErrCodeInvalidInput, "invalid dimension %d", dimension)
	}

	if stored, ok := c.ensured.Get(name); ok {
		if stored != dimension {
			return &DimensionMismatchError{Collection: name, Stored: stored, Requested: dimension}
		}
		return nil
	}

	info, err := c.GetCollectionInfo(ctx, name)
	switch {
	case err == nil:
		if info.Dimension != dimension {
			return &DimensionMismatchError{Collection: name, Stored: info.Dimension, Requested: dimension}
		}
	case isNotFound(err):
		createBody := map[string]any{
			"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
		}
		if err := c.do(ctx, http.MethodPut, collectionPath(name, ""), createBody, nil); err != nil {
			return err
		}
		c.logger.Info("collection_created",
			slog.String("collection", name),
			slog.Int("dimension", dimension))
	default:
		return err
	}

	if err := c.createPayloadIndexes(ctx, name); err != nil {
		return err
	}

	c.ensured.Add(name, dimension)
	return nil
}

// createPayloadIndexes creates keyword indexes for all indexed fields in
// parallel. All failures are aggregated, not just the first.
func (c *Client) createPayloadIndexes(ctx context.Context, name string) error {
	errs := make([]error, len(indexedFields))
	var wg sync.WaitGroup

	for i, field := range indexedFields {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := map[string]any{"field_name": field, "field_schema": "keyword"}
			if err := c.do(ctx, http.MethodPut, collectionPath(name, "/index"), body, nil); err != nil {
				errs[i] = fmt.Errorf("index %s: %w", field, err)
			}
		}()
	}
	wg.Wait()

	// errors.Join drops nil entries and reports every failure.
	return errors.Join(errs...)
}

// isNotFound reports whether err is a collection 404.
func isNotFound(err error) bool {
	return axonerrors.HasCode(err, axonerrors.ErrCodeCollectionNotFound)
}

// ForgetEnsured drops the memoized ensure state for a collection. Used after
// deleting a collection out of band.
func (c *Client) ForgetEnsured(name string) {
	c.ensured.Remove(name)
}
