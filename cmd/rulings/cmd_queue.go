package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/rulings/internal/lifecycle"
	"github.com/ajitpratap0/rulings/internal/models"
)

func proposeCmd() *cobra.Command {
	var (
		ef          entryFlags
		authorID    string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "propose [key]",
		Short: "Queue a new or corrected ruling for moderation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("propose: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			sg, err := newQueue(st, logger).Submit(ctx, ef.raw(cmd.Flags(), args[0]), models.Author{
				ID:          authorID,
				DisplayName: displayName,
			})
			if err != nil {
				return fmt.Errorf("propose: %w", err)
			}
			fmt.Printf("Queued suggestion %s for %q\n", sg.ID, sg.Entry.Key)
			return nil
		},
	}

	ef.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("content")
	cmd.Flags().StringVar(&authorID, "author-id", "cli", "identifier of the proposer")
	cmd.Flags().StringVar(&displayName, "author-name", "", "display name of the proposer")
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Review suggested rulings",
	}
	cmd.AddCommand(queueListCmd(), queueApproveCmd(), queueRejectCmd(), queuePurgeCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *models.SuggestionStatus
			if status != "all" {
				s := models.SuggestionStatus(status)
				if !s.IsValid() {
					return fmt.Errorf("queue list: invalid status %q (use pending, approved, rejected or all)", status)
				}
				filter = &s
			}

			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("queue list: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			suggestions, err := newQueue(st, logger).List(ctx, filter, limit)
			if err != nil {
				return fmt.Errorf("queue list: %w", err)
			}

			for _, sg := range suggestions {
				author := sg.AuthorDisplayName
				if author == "" {
					author = sg.AuthorID
				}
				fmt.Printf("%s [%s] %s: %s\n", sg.ID, sg.Status, sg.Entry.Key, truncate(sg.Entry.Content, 80))
				fmt.Printf("    by %s at %s\n", author, sg.CreatedAt.Format("2006-01-02T15:04:05Z"))
			}
			if len(suggestions) == 0 {
				fmt.Println("No suggestions found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "pending", "pending, approved, rejected or all")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results (0 for all)")
	return cmd
}

func queueApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve [suggestion-id]",
		Short: "Approve a pending suggestion and write it to the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("queue approve: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			result, err := newQueue(st, logger).Approve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("queue approve: %w", err)
			}
			fmt.Printf("Approved %s (%s)\n", args[0], result)
			return nil
		},
	}
}

func queueRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject [suggestion-id]",
		Short: "Reject a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("queue reject: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if err := newQueue(st, logger).Reject(ctx, args[0]); err != nil {
				return fmt.Errorf("queue reject: %w", err)
			}
			fmt.Printf("Rejected %s\n", args[0])
			return nil
		},
	}
}

func queuePurgeCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete decided suggestions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("queue purge: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			lm := lifecycle.NewManager(st, cfg.Moderation.RetentionDays, logger)
			report, runErr := lm.Run(ctx, dryRun)

			fmt.Printf("Purge report:\n")
			fmt.Printf("  Approved: %d\n", report.Approved)
			fmt.Printf("  Rejected: %d\n", report.Rejected)
			fmt.Printf("  Total:    %d\n", report.Purged)
			if dryRun {
				fmt.Println("  (dry run, nothing deleted)")
			}
			if runErr != nil {
				return fmt.Errorf("queue purge: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count without deleting")
	return cmd
}
