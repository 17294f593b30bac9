package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
	"github.com/pinkittys/flowerstory/internal/app"
)

func newExtractCommand(opts *globalOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "extract <story>",
		Short: "Show the keyword context extracted from a story",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()

			a, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Service.Extract(ctx, flags.request(joinArgs(args)))
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			if flags.jsonOutput {
				return ui.JSON(c)
			}
			ui.Section("Context")
			printContext(c)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
