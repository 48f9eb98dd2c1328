// Package cmd provides the CLI commands for axon.
package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/axon-dev/axon/internal/config"
	"github.com/axon-dev/axon/pkg/version"
)

// NewRootCmd creates the root command for the axon CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "axon",
		Short: "Turn web crawls into vector embeddings",
		Long: `Axon crawls websites through a scraping API, chunks and embeds the
pages with a local TEI service, and stores the vectors in Qdrant.

Crawls run asynchronously: 'axon crawl' enqueues a durable job and the
background daemon ('axon daemon run') embeds the pages when the crawl
finishes, driven by webhooks with a polling fallback.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("axon version {{.Version}}\n")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// jsonByDefault reports whether output should default to JSON: piped stdout
// gets machine-readable output, terminals get the human form.
func jsonByDefault() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}
