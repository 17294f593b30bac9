package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
	"github.com/pinkittys/flowerstory/internal/app"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently served recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			a, err := bootstrap(ctx, opts, app.Options{RequireDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.History.ListRecent(ctx, limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if jsonOutput {
				return ui.JSON(records)
			}
			if len(records) == 0 {
				ui.Info("No history recorded yet")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					ui.Truncate(r.Story, 30),
					r.CandidateID,
					fmt.Sprintf("%.2f", r.Score),
					r.Tier,
				})
			}
			ui.Table([]string{"TIME", "STORY", "CANDIDATE", "SCORE", "TIER"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	return cmd
}
