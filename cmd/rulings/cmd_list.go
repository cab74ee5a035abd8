package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/store"
)

func listCmd() *cobra.Command {
	var (
		f     store.Filters
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rulings, optionally filtered by field substrings",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "list")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entries, err := svc.Filter(ctx, &f)
			if err != nil {
				return fmt.Errorf("list: fetching rulings: %w", err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			for i, e := range entries {
				fmt.Printf("[%d] %s: %s\n", i+1, e.Key, truncate(e.Content, 100))
				meta := []string{"Title: " + e.Title}
				if len(e.Tags) > 0 {
					meta = append(meta, "Tags: "+strings.Join(e.Tags, ","))
				}
				if e.Archetype != "" {
					meta = append(meta, "Archetype: "+e.Archetype)
				}
				if e.Format != "" {
					meta = append(meta, "Format: "+e.Format)
				}
				fmt.Printf("    %s\n", strings.Join(meta, " | "))
			}

			if len(entries) == 0 {
				fmt.Println("No rulings found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Key, "key", "", "filter by key substring")
	cmd.Flags().StringVar(&f.Title, "title", "", "filter by title substring")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "filter by tag substring")
	cmd.Flags().StringVar(&f.Archetype, "archetype", "", "filter by archetype substring")
	cmd.Flags().StringVar(&f.Format, "format", "", "filter by format substring")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results (0 for all)")
	return cmd
}

func statsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry count, pending suggestions and most looked-up keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "stats")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			stats, err := svc.Stats(ctx, top)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("Rulings:             %d\n", stats.TotalEntries)
			fmt.Printf("Pending suggestions: %d\n", stats.PendingSuggestions)
			if len(stats.TopUsage) > 0 {
				fmt.Println("\nMost looked up:")
				for _, u := range stats.TopUsage {
					fmt.Printf("  %-30s %d\n", u.Key, u.Count)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of top keys to show")
	return cmd
}
