// Package tei is a client for a text-embeddings-inference (TEI) HTTP service.
// It fetches model metadata from /info and generates embeddings via /embed,
// batching large inputs with bounded concurrency.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	axonerrors "github.com/axon-dev/axon/internal/errors"
)

// Defaults for client configuration.
const (
	// DefaultBatchSize is the maximum number of inputs per /embed request.
	DefaultBatchSize = 24
	// DefaultConcurrency is the maximum number of in-flight /embed requests.
	DefaultConcurrency = 4
	// DefaultBaseTimeout is the fixed portion of the per-request timeout.
	DefaultBaseTimeout = 30 * time.Second
	// DefaultPerItemTimeout is added to the timeout for each input in a batch.
	DefaultPerItemTimeout = 1 * time.Second
	// DefaultInfoTimeout bounds the /info request.
	DefaultInfoTimeout = 30 * time.Second
	// DefaultBatchRetries is the number of extra batch-level attempts after
	// the underlying HTTP retries are exhausted.
	DefaultBatchRetries = 2
	// DefaultBatchRetryDelay is the fixed delay between batch-level attempts.
	DefaultBatchRetryDelay = 30 * time.Second

	// Fallbacks when /info omits fields.
	defaultDimension = 1024
	defaultMaxInput  = 32768
	defaultModelID   = "unknown"
)

// Info describes the embedding model served by TEI.
type Info struct {
	ModelID   string
	Dimension int
	MaxInput  int
}

// Config configures the TEI client.
type Config struct {
	BaseURL         string
	BatchSize       int
	Concurrency     int
	BaseTimeout     time.Duration
	PerItemTimeout  time.Duration
	BatchRetries    int
	BatchRetryDelay time.Duration
	Logger          *slog.Logger
}

// Client talks to a TEI service. Model info is memoized after the first
// successful /info call.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	batchSize       int
	concurrency     int
	baseTimeout     time.Duration
	perItemTimeout  time.Duration
	batchRetries    int
	batchRetryDelay time.Duration
	logger          *slog.Logger

	mu   sync.Mutex
	info *Info
}

// NewClient creates a TEI client, applying defaults for unset fields.
func NewClient(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = DefaultBaseTimeout
	}
	if cfg.PerItemTimeout <= 0 {
		cfg.PerItemTimeout = DefaultPerItemTimeout
	}
	if cfg.BatchRetries == 0 {
		cfg.BatchRetries = DefaultBatchRetries
	} else if cfg.BatchRetries < 0 {
		cfg.BatchRetries = 0
	}
	if cfg.BatchRetryDelay <= 0 {
		cfg.BatchRetryDelay = DefaultBatchRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Timeouts are applied per request via context so they can scale with
	// batch size; the client itself carries no static timeout.
	return &Client{
		baseURL:         cfg.BaseURL,
		httpClient:      &http.Client{},
		batchSize:       cfg.BatchSize,
		concurrency:     cfg.Concurrency,
		baseTimeout:     cfg.BaseTimeout,
		perItemTimeout:  cfg.PerItemTimeout,
		batchRetries:    cfg.BatchRetries,
		batchRetryDelay: cfg.BatchRetryDelay,
		logger:          cfg.Logger,
	}
}

// BatchSize returns the configured maximum batch size.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// infoResponse mirrors the TEI /info body. The model_type object is keyed by
// a variant tag that differs across TEI versions (embedding vs Embedding).
type infoResponse struct {
	ModelID        string `json:"model_id"`
	MaxInputLength int    `json:"max_input_length"`
	ModelType      map[string]struct {
		Dim int `json:"dim"`
	} `json:"model_type"`
}

// Info fetches model metadata from GET /info. The result is memoized after
// the first successful call; the model dimension is authoritative for
// creating collections.
func (c *Client) Info(ctx context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info != nil {
		return *c.info, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, DefaultInfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return Info{}, axonerrors.Wrap(axonerrors.ErrCodeTeiInfoFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Info{}, axonerrors.New(axonerrors.ErrCodeTeiTimeout, "TEI /info timed out", err)
		}
		return Info{}, axonerrors.Wrap(axonerrors.ErrCodeTeiInfoFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Info{}, axonerrors.Newf(axonerrors.ErrCodeTeiInfoFailed,
			"TEI /info returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Info{}, axonerrors.New(axonerrors.ErrCodeTeiMalformed, "failed to decode TEI /info response", err)
	}

	info := Info{
		ModelID:   parsed.ModelID,
		Dimension: defaultDimension,
		MaxInput:  defaultMaxInput,
	}
	if info.ModelID == "" {
		info.ModelID = defaultModelID
	}
	if parsed.MaxInputLength > 0 {
		info.MaxInput = parsed.MaxInputLength
	}
	for _, variant := range parsed.ModelType {
		if variant.Dim > 0 {
			info.Dimension = variant.Dim
			break
		}
	}

	c.info = &info
	c.logger.Debug("tei_info",
		slog.String("model_id", info.ModelID),
		slog.Int("dimension", info.Dimension),
		slog.Int("max_input", info.MaxInput))

	return info, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedBatch generates embeddings for up to BatchSize inputs via POST /embed.
// The request timeout scales linearly with batch size. An empty input slice
// returns an empty result without a network call.
func (c *Client) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	if len(inputs) > c.batchSize {
		return nil, axonerrors.Newf(axonerrors.ErrCodeInvalidInput,
			"batch of %d exceeds maximum batch size %d", len(inputs), c.batchSize)
	}

	body, err := json.Marshal(embedRequest{Inputs: inputs})
	if err != nil {
		return nil, axonerrors.Wrap(axonerrors.ErrCodeTeiEmbedFailed, err)
	}

	timeout := c.baseTimeout + time.Duration(len(inputs))*c.perItemTimeout
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, axonerrors.Wrap(axonerrors.ErrCodeTeiEmbedFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, axonerrors.Newf(axonerrors.ErrCodeTeiTimeout,
				"TEI /embed timed out after %s for %d inputs", timeout, len(inputs))
		}
		return nil, axonerrors.Wrap(axonerrors.ErrCodeTeiEmbedFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		embedErr := axonerrors.Newf(axonerrors.ErrCodeTeiEmbedFailed,
			"TEI /embed returned status %d: %s", resp.StatusCode, string(respBody))
		// 4xx responses other than timeout/throttle will not succeed on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			embedErr.Retryable = false
		}
		return nil, embedErr
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, axonerrors.New(axonerrors.ErrCodeTeiMalformed, "failed to decode TEI /embed response", err)
	}
	if len(embeddings) != len(inputs) {
		return nil, axonerrors.Newf(axonerrors.ErrCodeTeiMalformed,
			"TEI returned %d embeddings for %d inputs", len(embeddings), len(inputs))
	}

	return embeddings, nil
}

// embedBatchWithRetry wraps EmbedBatch with batch-level retries: after the
// request fails, the whole batch is retried up to batchRetries more times
// after a fixed delay. Non-retryable failures short-circuit.
func (c *Client) embedBatchWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= c.batchRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("tei_batch_retry",
				slog.Int("attempt", attempt),
				slog.Int("inputs", len(inputs)),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.batchRetryDelay):
			}
		}

		embeddings, err := c.EmbedBatch(ctx, inputs)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err

		if ae, ok := err.(*axonerrors.AxonError); ok && !ae.Retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("batch failed after %d attempts: %w", c.batchRetries+1, lastErr)
}

// EmbedChunks embeds an arbitrary number of texts by splitting them into
// contiguous batches and dispatching up to Concurrency batches in parallel.
// Results are returned in input order. Empty input returns an empty result
// without any network call.
func (c *Client) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, b := range batches {
		g.Go(func() error {
			embeddings, err := c.embedBatchWithRetry(gctx, b.texts)
			if err != nil {
				return err
			}
			copy(results[b.start:], embeddings)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
