// Package pipeline connects the chunker, the TEI client, and the Qdrant
// client into the embed flow: chunk a document, embed the chunks, and upsert
// the vectors with their payloads.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/axon-dev/axon/internal/chunk"
	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/qdrant"
	"github.com/axon-dev/axon/internal/tei"
	"github.com/axon-dev/axon/internal/validation"
)

const (
	// DefaultConcurrency bounds parallel items in BatchEmbed.
	DefaultConcurrency = 10
	// maxRetainedErrors caps the error messages kept in a batch result.
	maxRetainedErrors = 10
)

// Metadata describes the document being embedded. Extra keys are merged into
// the point payload but never override the core fields.
type Metadata struct {
	URL           string
	Title         string
	SourceCommand string
	ContentType   string
	Extra         map[string]any
}

// Item is one document for BatchEmbed.
type Item struct {
	Content  string
	Metadata Metadata
}

// BatchResult summarizes a BatchEmbed run. Errors holds at most the first
// ten failures as "{url}: {message}" strings.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []string
}

// ProgressFunc is called after each item in a batch settles.
type ProgressFunc func(current, total int)

// BatchOptions tunes BatchEmbed.
type BatchOptions struct {
	Concurrency int
	OnProgress  ProgressFunc
}

// Pipeline embeds documents into a Qdrant collection.
type Pipeline struct {
	tei        *tei.Client
	store      *qdrant.Client
	chunker    *chunk.Chunker
	collection string
	logger     *slog.Logger
}

// New creates a pipeline targeting the given collection.
func New(teiClient *tei.Client, store *qdrant.Client, collection string, logger *slog.Logger) (*Pipeline, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tei:        teiClient,
		store:      store,
		chunker:    chunk.NewChunker(),
		collection: collection,
		logger:     logger,
	}, nil
}

// Collection returns the target collection name.
func (p *Pipeline) Collection() string {
	return p.collection
}

// AutoEmbed embeds one document, logging failures instead of returning them.
// Callers that need the error use autoEmbed via BatchEmbed.
func (p *Pipeline) AutoEmbed(ctx context.Context, content string, md Metadata) {
	if err := p.autoEmbed(ctx, content, md); err != nil {
		p.logger.Error("auto_embed_failed",
			slog.String("url", md.URL),
			slog.String("error", err.Error()))
	}
}

// autoEmbed is the throwing form of AutoEmbed: chunk, embed, delete stale
// points for the URL, upsert fresh points.
func (p *Pipeline) autoEmbed(ctx context.Context, content string, md Metadata) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	info, err := p.tei.Info(ctx)
	if err != nil {
		return err
	}
	if err := p.store.EnsureCollection(ctx, p.collection, info.Dimension); err != nil {
		return err
	}

	kind := chunk.KindMarkdown
	if md.ContentType == "html" {
		kind = chunk.KindHTML
	}
	chunks := p.chunker.Chunk(content, kind)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.tei.EmbedChunks(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return axonerrors.Newf(axonerrors.ErrCodePipelineFailed,
			"got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	// Re-embedding a URL replaces its old points entirely.
	if err := p.store.DeleteByURL(ctx, p.collection, md.URL); err != nil {
		return err
	}

	points := buildPoints(chunks, vectors, md)
	if err := p.store.UpsertPoints(ctx, p.collection, points); err != nil {
		return err
	}

	p.logger.Debug("embedded",
		slog.String("url", md.URL),
		slog.Int("chunks", len(chunks)))
	return nil
}

// buildPoints assembles Qdrant points with fresh UUIDs and the standard
// payload shape. Extra metadata keys never override core fields.
func buildPoints(chunks []chunk.Chunk, vectors [][]float32, md Metadata) []qdrant.Point {
	scrapedAt := time.Now().UTC().Format(time.RFC3339)
	domain := validation.DomainFromURL(md.URL)

	points := make([]qdrant.Point, len(chunks))
	for i, c := range chunks {
		payload := make(map[string]any, len(md.Extra)+10)
		for k, v := range md.Extra {
			payload[k] = v
		}
		payload["url"] = md.URL
		payload["title"] = md.Title
		payload["domain"] = domain
		payload["chunk_index"] = c.Index
		payload["chunk_text"] = c.Text
		// chunk_header is null, not "", when the chunk has no heading context.
		if c.Header != "" {
			payload["chunk_header"] = c.Header
		} else {
			payload["chunk_header"] = nil
		}
		payload["total_chunks"] = len(chunks)
		payload["source_command"] = md.SourceCommand
		payload["content_type"] = md.ContentType
		payload["scraped_at"] = scrapedAt

		points[i] = qdrant.Point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payload,
		}
	}
	return points
}

// BatchEmbed embeds many items with bounded concurrency. It never returns an
// error; per-item failures are counted and the first few messages retained.
func (p *Pipeline) BatchEmbed(ctx context.Context, items []Item, opts BatchOptions) BatchResult {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		mu     sync.Mutex
		result BatchResult
		done   int
	)
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled; remaining items count as failed.
			mu.Lock()
			result.Failed++
			if len(result.Errors) < maxRetainedErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", item.Metadata.URL, err))
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			err := p.autoEmbed(ctx, item.Content, item.Metadata)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				if len(result.Errors) < maxRetainedErrors {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", item.Metadata.URL, err))
				}
			} else {
				result.Succeeded++
			}
			done++
			if opts.OnProgress != nil {
				opts.OnProgress(done, len(items))
			}
		}()
	}

	wg.Wait()
	return result
}
