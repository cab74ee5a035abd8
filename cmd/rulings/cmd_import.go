package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/seed"
)

func importCmd() *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "import [path]",
		Short: "Import rulings from a YAML, JSON or JSONL file or directory",
		Long: `Imports seed records into the store. Records are normalized; invalid ones are
skipped and reported. When a key appears more than once the last record wins.
Use --defaults to load the built-in starter rulings instead of a path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults == (len(args) == 1) {
				return fmt.Errorf("import: give exactly one of a path or --defaults")
			}

			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("import: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			im := seed.NewImporter(st, logger)
			var report *seed.Report
			if defaults {
				records, loadErr := seed.Defaults()
				if loadErr != nil {
					return fmt.Errorf("import: %w", loadErr)
				}
				report, err = im.Import(ctx, records)
			} else {
				report, err = im.ImportPath(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Printf("Import report:\n")
			fmt.Printf("  Inserted:   %d\n", report.Inserted)
			fmt.Printf("  Updated:    %d\n", report.Updated)
			fmt.Printf("  Duplicates: %d\n", report.Duplicates)
			fmt.Printf("  Skipped:    %d\n", report.Skipped)
			for _, p := range report.Problems {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", p.Source, p.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "import the built-in starter rulings")
	return cmd
}
