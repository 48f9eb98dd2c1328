package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/axon-dev/axon/internal/queue"
	"github.com/axon-dev/axon/internal/validation"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "x-axon-embedder-secret"

// maxWebhookBody caps webhook payloads at 10 MB.
const maxWebhookBody = 10 << 20

// router builds the ingress: an unauthenticated health check plus
// authenticated status and webhook endpoints.
func (d *Daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", d.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(d.requireSecret)
		r.Get("/status", d.handleStatus)
		r.Post(d.cfg.Webhook.Path, d.handleWebhook)
	})

	return r
}

// requireSecret authenticates requests with a constant-time comparison.
// Missing or wrong secrets get a bodyless 401; length mismatches take the
// same path as content mismatches.
func (d *Daemon) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := []byte(r.Header.Get(SecretHeader))
		if subtle.ConstantTimeCompare(provided, d.secret) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "embedder-daemon",
	})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, processing, err := d.queue.Counts()
	if err != nil {
		http.Error(w, "queue unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"webhookConfigured": d.cfg.Webhook.URL != "",
		"pollingIntervalMs": d.sweepInterval().Milliseconds(),
		"staleThresholdMs":  d.staleThreshold().Milliseconds(),
		"pendingJobs":       pending,
		"processingJobs":    processing,
	})
}

// handleWebhook accepts a crawl event, responds 202, and processes the job
// asynchronously. Payloads without a recognizable jobId are accepted and
// dropped with a log so upstream retries stop.
func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		http.Error(w, "content type must be application/json", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "payload too large", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	info := ExtractJobInfo(body)
	if info == nil {
		d.logger.Warn("webhook_without_job_id", slog.Int("bytes", len(body)))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := validation.ValidateJobID(info.JobID); err != nil {
		d.logger.Warn("webhook_invalid_job_id", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// The request context dies when the handler returns; processing runs
	// past the 202 response, so it gets its own context.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleWebhookEvent(context.Background(), info)
	}()
}

// handleWebhookEvent applies a parsed webhook to the queue. Unknown and
// already-completed jobs are ignored; failure events turn the job terminal;
// completion events trigger processing with the delivered pages.
func (d *Daemon) handleWebhookEvent(ctx context.Context, info *WebhookInfo) {
	result := d.queue.GetDetailed(info.JobID)
	switch result.Status {
	case queue.StatusFound:
	default:
		d.logger.Info("webhook_for_unknown_job", slog.String("job_id", info.JobID))
		return
	}
	if result.Job.Status == queue.StatusCompleted {
		return
	}

	switch info.Status {
	case "failed", "cancelled":
		if err := d.queue.MarkPermanentFailed(info.JobID, "Crawl "+info.Status); err != nil {
			d.logger.Warn("webhook_mark_failed_error",
				slog.String("job_id", info.JobID),
				slog.String("error", err.Error()))
		}
	case "completed":
		d.processJob(ctx, info.JobID, info)
	default:
		d.logger.Debug("webhook_without_status", slog.String("job_id", info.JobID))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
