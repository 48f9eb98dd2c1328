// Package daemon runs the background embedder: an authenticated HTTP ingress
// for crawl webhooks, a periodic sweeper for stale and stuck jobs, and the
// per-job processing pipeline that turns crawled pages into vectors.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/axon-dev/axon/internal/config"
	"github.com/axon-dev/axon/internal/crawl"
	"github.com/axon-dev/axon/internal/pipeline"
	"github.com/axon-dev/axon/internal/qdrant"
	"github.com/axon-dev/axon/internal/queue"
	"github.com/axon-dev/axon/internal/tei"
)

const (
	// minSweepInterval is the floor for the sweeper tick.
	minSweepInterval = 60 * time.Second
	// stuckThreshold is how long a processing job may go untouched before
	// the sweeper reverts it to pending.
	stuckThreshold = 5 * time.Minute
	// progressEvery throttles progress persistence during batch embeds.
	progressEvery = 10
	// shutdownTimeout bounds the HTTP server drain on shutdown.
	shutdownTimeout = 10 * time.Second
)

// Daemon wires the queue, the service clients, and the HTTP ingress.
// The TEI, Qdrant, and crawler clients may be nil when their URLs are not
// configured; jobs then fail with a config error instead of crashing the
// daemon.
type Daemon struct {
	cfg     *config.Config
	queue   *queue.Queue
	tei     *tei.Client
	store   *qdrant.Client
	crawler *crawl.Client
	pipe    *pipeline.Pipeline
	secret  []byte
	logger  *slog.Logger

	server *http.Server
	wg     sync.WaitGroup // in-flight webhook-dispatched jobs

	mu                  sync.Mutex
	consecutiveFailures int
}

// New assembles a daemon from the effective configuration. Service clients
// are only constructed for configured URLs.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	q, err := queue.Open(cfg.Embedder.QueueDir, logger,
		queue.WithMaxRetries(cfg.Embedder.MaxRetries))
	if err != nil {
		return nil, err
	}

	secret, err := LoadOrGenerateSecret(cfg.Webhook.Secret, config.SecretPath(), logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		queue:  q,
		secret: []byte(secret),
		logger: logger,
	}

	if cfg.Tei.URL != "" {
		d.tei = tei.NewClient(tei.Config{BaseURL: cfg.Tei.URL, Logger: logger})
	}
	if cfg.Qdrant.URL != "" {
		d.store, err = qdrant.NewClient(cfg.Qdrant.URL, qdrant.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}
	if d.tei != nil && d.store != nil {
		d.pipe, err = pipeline.New(d.tei, d.store, cfg.Qdrant.Collection, logger)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Crawler.APIURL != "" {
		d.crawler, err = crawl.NewClient(cfg.Crawler.APIURL, cfg.Crawler.APIKey, crawl.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Queue exposes the daemon's queue, mainly for tests and CLI introspection.
func (d *Daemon) Queue() *queue.Queue {
	return d.queue
}

// staleThreshold is the age after which pending jobs are swept.
func (d *Daemon) staleThreshold() time.Duration {
	return time.Duration(d.cfg.Embedder.StaleMinutes) * time.Minute
}

// sweepInterval is the sweeper tick: half the stale threshold, floored at
// one minute.
func (d *Daemon) sweepInterval() time.Duration {
	interval := d.staleThreshold() / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return interval
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down
// gracefully. In-flight webhook jobs are drained best effort.
func (d *Daemon) Run(ctx context.Context) error {
	if removed, err := d.queue.CleanupTerminal(time.Duration(d.cfg.Embedder.CleanupHours) * time.Hour); err != nil {
		d.logger.Warn("startup_cleanup_failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		d.logger.Info("startup_cleanup", slog.Int("removed", removed))
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Embedder.BindAddress, d.cfg.Webhook.Port)
	d.server = &http.Server{
		Addr:              addr,
		Handler:           d.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon_listening",
			slog.String("addr", addr),
			slog.String("webhook_path", d.cfg.Webhook.Path))
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go d.runSweeper(sweepCtx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	d.logger.Info("daemon_shutting_down")
	cancelSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("server_shutdown_error", slog.String("error", err.Error()))
	}

	// Webhook-dispatched jobs may still be embedding; wait for the drain
	// window, then leave the rest to the sweeper's stuck-job recovery on
	// the next start.
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		d.logger.Warn("shutdown_with_jobs_in_flight")
	}

	return nil
}
