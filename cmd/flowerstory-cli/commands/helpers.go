package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pinkittys/flowerstory/internal/app"
	"github.com/pinkittys/flowerstory/internal/config"
	"github.com/pinkittys/flowerstory/internal/observability"
)

// bootstrap loads configuration and wires the application. Logs go to
// stderr and stay quiet unless --verbose is set.
func bootstrap(ctx context.Context, opts *globalOptions, appOpts app.Options) (*app.App, error) {
	_ = godotenv.Load()

	path := opts.cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := "error"
	if opts.verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName + "-cli",
	})

	a, err := app.New(ctx, cfg, logger, appOpts)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func keywordLine(main string, alternatives []string) string {
	if main == "" {
		return "-"
	}
	if len(alternatives) == 0 {
		return main
	}
	return fmt.Sprintf("%s (%s)", main, strings.Join(alternatives, ", "))
}
