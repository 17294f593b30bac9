// Package commands implements the flowerstory CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	cfgFile string
	verbose bool
	noColor bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "flowerstory",
		Short: "Recommend a flower for a story",
		Long: `flowerstory reads a short story, extracts the emotion, situation, mood and
color it expresses, and recommends the flower from the catalog that fits best.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ui.InitUI(opts.noColor, opts.verbose)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file path (default $CONFIG_PATH)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRecommendCommand(opts),
		newExtractCommand(opts),
		newBatchCommand(opts),
		newCatalogCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
