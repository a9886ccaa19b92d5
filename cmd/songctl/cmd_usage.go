package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/infrastructure/persistence/postgres"
)

func newUsageCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize recorded LLM token usage by workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client, err := postgres.NewClient(&cfg.Database)
			if err != nil {
				return err
			}
			defer client.Close()

			end := time.Now().UTC()
			start := end.Add(-time.Duration(days) * 24 * time.Hour)
			rows, err := postgres.NewLLMUsageEventRepository(client).SummarizeByWorkflow(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKFLOW\tCALLS\tPROMPT\tCOMPLETION")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", r.Workflow, r.Calls, r.TokensPrompt, r.TokensCompletion)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "look-back window in days")
	return cmd
}
