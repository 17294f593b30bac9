package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
	"github.com/pinkittys/flowerstory/internal/app"
	"github.com/pinkittys/flowerstory/internal/catalog"
)

func newCatalogCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and import the flower catalog",
	}
	cmd.AddCommand(
		newCatalogListCommand(opts),
		newCatalogImportCommand(opts),
		newCatalogExportCommand(opts),
	)
	return cmd
}

func newCatalogListCommand(opts *globalOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the candidates of the configured catalog source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			a, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			cands := a.Catalog.Load().Candidates()
			if jsonOutput {
				return ui.JSON(cands)
			}
			rows := make([][]string, 0, len(cands))
			for _, c := range cands {
				seasons := "all year"
				if len(c.Seasons) > 0 {
					seasons = strings.Join(c.Seasons, ", ")
				}
				rows = append(rows, []string{c.ID, c.Name, c.Color, seasons})
			}
			ui.Table([]string{"ID", "NAME", "COLOR", "SEASONS"}, rows)
			ui.Newline()
			ui.Info("%d candidates from %s", len(cands), a.CatalogSource.Name())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	return cmd
}

type parsedFile struct {
	path       string
	candidates []catalog.Candidate
}

func newCatalogImportCommand(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Replace the database catalog with candidates from YAML or JSON files",
		Long: `Parses every file in parallel, checks the combined candidate set, and
replaces the catalog table in one transaction. Candidate order follows the
file order given on the command line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 5*time.Minute)
			defer cancel()

			files, err := parseCatalogFiles(ctx, args)
			if err != nil {
				return err
			}

			var all []catalog.Candidate
			for _, f := range files {
				all = append(all, f.candidates...)
			}
			merged, err := catalog.New(all)
			if err != nil {
				return fmt.Errorf("combined catalog: %w", err)
			}
			if dryRun {
				ui.Success("%d candidates from %d files are valid", merged.Len(), len(files))
				return nil
			}

			a, err := bootstrap(ctx, opts, app.Options{RequireDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.CatalogRepo.ReplaceAll(ctx, merged.Candidates()); err != nil {
				return fmt.Errorf("import catalog: %w", err)
			}
			ui.Success("Imported %d candidates from %d files", merged.Len(), len(files))
			if a.Config.Catalog.Source != "database" {
				ui.Warning("catalog.source is %q; set it to \"database\" to serve the imported catalog", a.Config.Catalog.Source)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the files without writing")
	return cmd
}

// parseCatalogFiles reads and parses files concurrently, one progress bar
// per file. Results keep the argument order.
func parseCatalogFiles(ctx context.Context, paths []string) ([]parsedFile, error) {
	progress := ui.NewMultiProgress()
	out := make([]parsedFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		bar := progress.AddBar(filepath.Base(path), size)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				bar.Abort(false)
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				bar.Abort(false)
				return fmt.Errorf("read %s: %w", path, err)
			}
			bar.IncrBy(len(data))

			cat, err := catalog.Parse(data)
			if err != nil {
				bar.Abort(false)
				return fmt.Errorf("%s: %w", path, err)
			}
			bar.SetTotal(int64(len(data)), true)
			out[i] = parsedFile{path: path, candidates: cat.Candidates()}
			return nil
		})
	}
	err := g.Wait()
	progress.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newCatalogExportCommand(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			a, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := catalog.Marshal(a.Catalog.Load().Candidates())
			if err != nil {
				return fmt.Errorf("encode catalog: %w", err)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write catalog: %w", err)
			}
			ui.Success("Wrote %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}
