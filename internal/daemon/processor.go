package daemon

import (
	"context"
	"log/slog"
	"strings"

	"github.com/axon-dev/axon/internal/crawl"
	axonerrors "github.com/axon-dev/axon/internal/errors"
	"github.com/axon-dev/axon/internal/pipeline"
	"github.com/axon-dev/axon/internal/queue"
)

// processJob claims and processes one job end to end. hook carries pages
// delivered by a webhook; when absent the crawl status is fetched from the
// scraping API. All outcomes are written back to the queue; nothing
// propagates to the caller.
func (d *Daemon) processJob(ctx context.Context, jobID string, hook *WebhookInfo) {
	claimed, err := d.queue.TryClaim(jobID)
	if err != nil {
		d.logger.Warn("claim_error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return
	}
	if !claimed {
		return
	}

	if d.pipe == nil {
		d.markConfigError(jobID, "TEI or Qdrant URL not configured")
		return
	}

	status, pages, err := d.resolveCrawl(ctx, jobID, hook)
	if err != nil {
		d.settleFailure(jobID, err)
		return
	}

	switch status {
	case crawl.StatusFailed, crawl.StatusCancelled:
		d.settleFailure(jobID, axonerrors.Newf(axonerrors.ErrCodeCrawlFailedUpstream,
			"Crawl %s, cannot embed", status))
		return
	case crawl.StatusCompleted:
	default:
		// Crawl still running; defer without consuming a retry.
		if err := d.queue.MarkPendingNoRetry(jobID, "Crawl still "+status); err != nil {
			d.logger.Warn("defer_error",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
		return
	}

	items := buildItems(pages)
	if len(items) == 0 {
		_ = d.queue.UpdateProgress(jobID, 0, 0, 0)
		if err := d.queue.MarkCompleted(jobID); err != nil {
			d.logger.Warn("complete_error",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
		d.logger.Info("job_completed_empty", slog.String("job_id", jobID))
		return
	}

	_ = d.queue.UpdateProgress(jobID, 0, 0, len(items))

	result := d.pipe.BatchEmbed(ctx, items, pipeline.BatchOptions{
		OnProgress: func(current, total int) {
			if current%progressEvery == 0 || current == total {
				_ = d.queue.UpdateProgress(jobID, current, 0, total)
			}
		},
	})

	_ = d.queue.UpdateProgress(jobID, result.Succeeded, result.Failed, len(items))
	if err := d.queue.MarkCompleted(jobID); err != nil {
		d.logger.Warn("complete_error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return
	}

	attrs := []any{
		slog.String("job_id", jobID),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	}
	if len(result.Errors) > 0 {
		attrs = append(attrs, slog.String("first_errors", strings.Join(result.Errors, "; ")))
	}
	d.logger.Info("job_completed", attrs...)
}

// resolveCrawl returns the crawl status and pages, preferring webhook data
// over a status fetch.
func (d *Daemon) resolveCrawl(ctx context.Context, jobID string, hook *WebhookInfo) (string, []crawl.Document, error) {
	if hook != nil && hook.Status == crawl.StatusCompleted && len(hook.Pages) > 0 {
		return crawl.StatusCompleted, hook.Pages, nil
	}
	if d.crawler == nil {
		return "", nil, axonerrors.New(axonerrors.ErrCodeConfigMissingURL,
			"scraping API URL not configured", nil)
	}

	status, err := d.crawler.GetCrawlStatus(ctx, jobID)
	if err != nil {
		return "", nil, err
	}
	return status.Status, status.Data, nil
}

// settleFailure classifies a processing error and writes the corresponding
// terminal or retryable state.
func (d *Daemon) settleFailure(jobID string, err error) {
	msg := err.Error()

	switch {
	case axonerrors.HasCode(err, axonerrors.ErrCodeConfigMissingURL):
		d.markConfigError(jobID, msg)
		return
	case isPermanentUpstream(err):
		if markErr := d.queue.MarkPermanentFailed(jobID, msg); markErr != nil {
			d.logger.Warn("mark_permanent_error",
				slog.String("job_id", jobID),
				slog.String("error", markErr.Error()))
		}
		d.logger.Warn("job_failed_permanently",
			slog.String("job_id", jobID),
			slog.String("error", msg))
		return
	}

	if markErr := d.queue.MarkFailed(jobID, msg); markErr != nil {
		d.logger.Warn("mark_failed_error",
			slog.String("job_id", jobID),
			slog.String("error", markErr.Error()))
		return
	}

	result := d.queue.GetDetailed(jobID)
	attrs := []any{
		slog.String("job_id", jobID),
		slog.String("error", msg),
	}
	if result.Status == queue.StatusFound {
		attrs = append(attrs,
			slog.Int("retries", result.Job.Retries),
			slog.Int("max_retries", result.Job.MaxRetries))
		if result.Job.Status == queue.StatusPending {
			// Exponential backoff is informational: the sweeper picks the
			// job up on its own schedule.
			attrs = append(attrs, slog.Duration("suggested_backoff",
				axonerrors.Backoff(d.sweepInterval(), result.Job.Retries, 4*d.staleThreshold())))
		}
	}
	d.logger.Warn("job_failed", attrs...)
}

func (d *Daemon) markConfigError(jobID, msg string) {
	if err := d.queue.MarkConfigError(jobID, msg); err != nil {
		d.logger.Warn("mark_config_error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
	d.logger.Error("job_config_error",
		slog.String("job_id", jobID),
		slog.String("error", msg))
}

// isPermanentUpstream reports whether the error means the crawl will never
// be fetchable again.
func isPermanentUpstream(err error) bool {
	if axonerrors.HasCode(err, axonerrors.ErrCodeCrawlJobNotFound) {
		return true
	}
	return isJobNotFoundMessage(err.Error())
}

// isJobNotFoundMessage classifies lastError strings from earlier runs.
func isJobNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "no longer exists")
}

// buildItems converts crawled pages into embeddable items. Pages without
// content are skipped.
func buildItems(pages []crawl.Document) []pipeline.Item {
	var items []pipeline.Item
	for _, page := range pages {
		content := page.Content()
		if strings.TrimSpace(content) == "" {
			continue
		}

		contentType := "markdown"
		if page.Markdown == "" {
			contentType = "html"
		}

		items = append(items, pipeline.Item{
			Content: content,
			Metadata: pipeline.Metadata{
				URL:           page.SourceURL(),
				Title:         page.PageTitle(),
				SourceCommand: "crawl",
				ContentType:   contentType,
			},
		})
	}
	return items
}
