// Package crawl is a client for the remote scraping API. The embedder only
// needs two operations: starting a crawl and fetching its status with the
// scraped documents.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/validation"
)

// DefaultTimeout bounds each scraping API request.
const DefaultTimeout = 60 * time.Second

// Crawl status values reported by the scraping API.
const (
	StatusScraping  = "scraping"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// WebhookConfig asks the scraping API to POST crawl lifecycle events back to
// the daemon.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Events  []string          `json:"events,omitempty"`
}

// Options tunes a crawl. Zero values are omitted from the request so the API
// applies its own defaults.
type Options struct {
	Limit                 int            `json:"limit,omitempty"`
	MaxDiscoveryDepth     int            `json:"maxDiscoveryDepth,omitempty"`
	ExcludePaths          []string       `json:"excludePaths,omitempty"`
	IncludePaths          []string       `json:"includePaths,omitempty"`
	Sitemap               string         `json:"sitemap,omitempty"`
	IgnoreQueryParameters bool           `json:"ignoreQueryParameters,omitempty"`
	CrawlEntireDomain     bool           `json:"crawlEntireDomain,omitempty"`
	AllowExternalLinks    bool           `json:"allowExternalLinks,omitempty"`
	AllowSubdomains       bool           `json:"allowSubdomains,omitempty"`
	Delay                 int            `json:"delay,omitempty"`
	MaxConcurrency        int            `json:"maxConcurrency,omitempty"`
	Webhook               *WebhookConfig `json:"webhook,omitempty"`
}

// DocumentMetadata carries page-level metadata from the scraper.
type DocumentMetadata struct {
	SourceURL string `json:"sourceURL,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Document is one scraped page. Markdown is preferred over HTML when both are
// present.
type Document struct {
	Markdown string            `json:"markdown,omitempty"`
	HTML     string            `json:"html,omitempty"`
	URL      string            `json:"url,omitempty"`
	Title    string            `json:"title,omitempty"`
	Metadata *DocumentMetadata `json:"metadata,omitempty"`
}

// Content returns the embeddable text of the document, markdown first.
func (d Document) Content() string {
	if d.Markdown != "" {
		return d.Markdown
	}
	return d.HTML
}

// SourceURL resolves the document's canonical URL, preferring metadata.
func (d Document) SourceURL() string {
	if d.Metadata != nil {
		if d.Metadata.SourceURL != "" {
			return d.Metadata.SourceURL
		}
		if d.Metadata.URL != "" {
			return d.Metadata.URL
		}
	}
	return d.URL
}

// PageTitle resolves the document title, preferring metadata.
func (d Document) PageTitle() string {
	if d.Metadata != nil && d.Metadata.Title != "" {
		return d.Metadata.Title
	}
	return d.Title
}

// CrawlJob identifies a started crawl.
type CrawlJob struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CrawlStatus is the state of a crawl, including scraped documents once
// completed.
type CrawlStatus struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	CreditsUsed int        `json:"creditsUsed,omitempty"`
	ExpiresAt   string     `json:"expiresAt,omitempty"`
	Data        []Document `json:"data,omitempty"`
}

// Client calls the scraping API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a scraping API client. apiKey may be empty for
// self-hosted deployments that skip auth.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, axonerrors.New(axonerrors.ErrCodeConfigMissingURL,
			"scraping API URL is required", nil)
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type startCrawlRequest struct {
	URL string `json:"url"`
	Options
}

// StartCrawl submits a crawl for the given URL and returns its job id.
func (c *Client) StartCrawl(ctx context.Context, targetURL string, opts Options) (CrawlJob, error) {
	if targetURL == "" {
		return CrawlJob{}, axonerrors.New(axonerrors.ErrCodeInvalidInput, "crawl URL is required", nil)
	}

	var job CrawlJob
	req := startCrawlRequest{URL: targetURL, Options: opts}
	if err := c.do(ctx, http.MethodPost, "/v1/crawl", req, &job); err != nil {
		return CrawlJob{}, err
	}
	if job.ID == "" {
		return CrawlJob{}, axonerrors.New(axonerrors.ErrCodeCrawlRequestFailed,
			"scraping API returned no job id", nil)
	}

	c.logger.Info("crawl_started",
		slog.String("job_id", job.ID),
		slog.String("url", targetURL))
	return job, nil
}

// GetCrawlStatus fetches the current state of a crawl, including scraped
// documents when the crawl has completed.
func (c *Client) GetCrawlStatus(ctx context.Context, jobID string) (CrawlStatus, error) {
	if err := validation.ValidateJobID(jobID); err != nil {
		return CrawlStatus{}, err
	}

	var status CrawlStatus
	if err := c.do(ctx, http.MethodGet, "/v1/crawl/"+url.PathEscape(jobID), nil, &status); err != nil {
		return CrawlStatus{}, err
	}
	if status.ID == "" {
		status.ID = jobID
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return axonerrors.Wrap(axonerrors.ErrCodeCrawlRequestFailed, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return axonerrors.Wrap(axonerrors.ErrCodeCrawlRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return axonerrors.Wrap(axonerrors.ErrCodeCrawlRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return axonerrors.Newf(axonerrors.ErrCodeCrawlJobNotFound,
			"crawl job not found: %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reqErr := axonerrors.Newf(axonerrors.ErrCodeCrawlRequestFailed,
			"scraping API %s %s returned status %d: %s", method, path, resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout &&
			resp.StatusCode != http.StatusTooManyRequests {
			reqErr.Retryable = false
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return axonerrors.New(axonerrors.ErrCodeCrawlRequestFailed,
			"failed to decode scraping API response", err)
	}
	return nil
}
