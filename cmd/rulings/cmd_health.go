package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// pinger is implemented by backends with a remote connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured store is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			allOK := true

			fmt.Printf("Config: %s\n", cfg.Store)

			st, err := newStore(ctx, logger)
			if err != nil {
				fmt.Printf("Store (%s): FAIL (%v)\n", cfg.Store.Driver, err)
				return fmt.Errorf("one or more health checks failed")
			}
			defer func() { _ = st.Close() }()

			if p, ok := st.(pinger); ok {
				if err := p.Ping(ctx); err != nil {
					fmt.Printf("Store (%s): FAIL (%v)\n", cfg.Store.Driver, err)
					allOK = false
				}
			}
			if allOK {
				n, err := st.Count(ctx)
				if err != nil {
					fmt.Printf("Store (%s): FAIL (%v)\n", cfg.Store.Driver, err)
					allOK = false
				} else {
					fmt.Printf("Store (%s): OK (%d rulings)\n", cfg.Store.Driver, n)
				}
			}

			if _, err := newService(st, logger); err != nil {
				fmt.Printf("Lookup: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Println("Lookup: OK")
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
