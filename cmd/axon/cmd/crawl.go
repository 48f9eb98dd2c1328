package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axon-dev/axon/internal/config"
	"github.com/axon-dev/axon/internal/crawl"
	"github.com/axon-dev/axon/internal/daemon"
	"github.com/axon-dev/axon/internal/queue"
)

// newCrawlCmd creates the crawl command: start a crawl, register the
// daemon's webhook, and enqueue a durable embed job.
func newCrawlCmd() *cobra.Command {
	var (
		limit          int
		maxDepth       int
		excludePaths   []string
		includePaths   []string
		entireDomain   bool
		allowSubdomain bool
	)

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site and queue its pages for embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Crawler.APIURL == "" {
				return fmt.Errorf("scraping API URL not configured (set AXON_CRAWL_API_URL or crawler.api_url)")
			}

			client, err := crawl.NewClient(cfg.Crawler.APIURL, cfg.Crawler.APIKey)
			if err != nil {
				return err
			}

			opts := crawl.Options{
				Limit:             limit,
				MaxDiscoveryDepth: maxDepth,
				ExcludePaths:      excludePaths,
				IncludePaths:      includePaths,
				CrawlEntireDomain: entireDomain,
				AllowSubdomains:   allowSubdomain,
			}
			if cfg.Webhook.URL != "" {
				secret, err := daemon.LoadOrGenerateSecret(cfg.Webhook.Secret, config.SecretPath(), nil)
				if err != nil {
					return err
				}
				opts.Webhook = &crawl.WebhookConfig{
					URL:     cfg.Webhook.URL,
					Headers: map[string]string{daemon.SecretHeader: secret},
					Events:  []string{"completed", "failed"},
				}
			}

			job, err := client.StartCrawl(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			q, err := queue.Open(cfg.Embedder.QueueDir, nil,
				queue.WithMaxRetries(cfg.Embedder.MaxRetries))
			if err != nil {
				return err
			}
			if _, err := q.Enqueue(job.ID, args[0], cfg.Crawler.APIKey); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Crawl started: %s\n", job.ID)
			if cfg.Webhook.URL == "" {
				fmt.Fprintln(cmd.OutOrStdout(),
					"No webhook configured; the daemon will poll for completion.")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of pages to crawl")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum link discovery depth")
	cmd.Flags().StringSliceVar(&excludePaths, "exclude-path", nil, "Path patterns to exclude")
	cmd.Flags().StringSliceVar(&includePaths, "include-path", nil, "Path patterns to include")
	cmd.Flags().BoolVar(&entireDomain, "entire-domain", false, "Crawl the whole domain, not just the subtree")
	cmd.Flags().BoolVar(&allowSubdomain, "allow-subdomains", false, "Follow links to subdomains")

	return cmd
}
