package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axon-dev/axon/internal/qdrant"
)

// newDeleteCmd creates the delete command for removing embedded points.
func newDeleteCmd() *cobra.Command {
	var (
		byURL    string
		byDomain string
		all      bool
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete embedded points from the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			selectors := 0
			if byURL != "" {
				selectors++
			}
			if byDomain != "" {
				selectors++
			}
			if all {
				selectors++
			}
			if selectors != 1 {
				return fmt.Errorf("specify exactly one of --url, --domain, or --all")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Qdrant.URL == "" {
				return fmt.Errorf("qdrant URL not configured (set QDRANT_URL or qdrant.url)")
			}

			store, err := qdrant.NewClient(cfg.Qdrant.URL)
			if err != nil {
				return err
			}
			collection := cfg.Qdrant.Collection

			ctx := cmd.Context()
			switch {
			case byURL != "":
				count, err := store.CountByURL(ctx, collection, byURL)
				if err != nil {
					return err
				}
				if err := store.DeleteByURL(ctx, collection, byURL); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d point(s) for %s\n", count, byURL)
			case byDomain != "":
				count, err := store.CountByDomain(ctx, collection, byDomain)
				if err != nil {
					return err
				}
				if err := store.DeleteByDomain(ctx, collection, byDomain); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d point(s) for domain %s\n", count, byDomain)
			case all:
				if !yes {
					return fmt.Errorf("--all deletes every point in %q; re-run with --yes to confirm", collection)
				}
				count, err := store.CountPoints(ctx, collection)
				if err != nil {
					return err
				}
				if err := store.DeleteAll(ctx, collection); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted all %d point(s) from %s\n", count, collection)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&byURL, "url", "", "Delete points for one page URL")
	cmd.Flags().StringVar(&byDomain, "domain", "", "Delete points for a whole domain")
	cmd.Flags().BoolVar(&all, "all", false, "Delete every point in the collection")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation for --all")

	return cmd
}
