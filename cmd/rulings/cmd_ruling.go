package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/matcher"
	"github.com/ajitpratap0/rulings/internal/store"
)

func rulingCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ruling [query...]",
		Short: "Look up the best-matching ruling for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "ruling")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			res, err := svc.Lookup(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ruling: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			if !res.Found() {
				fmt.Println(res.Hint)
				if len(res.Suggestions) > 0 {
					fmt.Printf("Did you mean: %s\n", strings.Join(res.Suggestions, ", "))
				}
				return nil
			}

			printHit(*res.Best)
			if len(res.Others) > 0 {
				fmt.Println("\nSee also:")
				for _, h := range res.Others {
					fmt.Printf("  - %s (%s)\n", h.Entry.Key, h.Tier)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printHit(h matcher.Hit) {
	fmt.Printf("%s [%s]\n", h.Entry.Title, h.Entry.Key)
	if len(h.Entry.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(h.Entry.Tags, ", "))
	}
	fmt.Printf("\n%s\n", h.Entry.Content)
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one ruling as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "get")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			e, err := svc.Get(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("get: no ruling with key %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		},
	}
}
