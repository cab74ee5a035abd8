package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all rulings to JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "export")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			all, err := svc.List(ctx)
			if err != nil {
				return fmt.Errorf("export: listing rulings: %w", err)
			}

			var w *os.File
			if output == "" || output == "-" {
				w = os.Stdout
			} else {
				w, err = os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = w.Close() }()
			}

			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(all); encErr != nil {
					return fmt.Errorf("export: encoding JSON: %w", encErr)
				}
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if encErr := enc.Encode(all); encErr != nil {
					return fmt.Errorf("export: encoding YAML: %w", encErr)
				}
				if closeErr := enc.Close(); closeErr != nil {
					return fmt.Errorf("export: flushing YAML: %w", closeErr)
				}
			default:
				return fmt.Errorf("export: unsupported format %q (use json or yaml)", format)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(os.Stderr, "Exported %d rulings to %s\n", len(all), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	return cmd
}
