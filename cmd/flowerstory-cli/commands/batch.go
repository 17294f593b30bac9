package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
	"github.com/pinkittys/flowerstory/internal/app"
	"github.com/pinkittys/flowerstory/internal/recommend"
)

type batchOptions struct {
	concurrency int
	timeout     time.Duration
	jsonOutput  bool
}

// batchItem is the outcome for one input line.
type batchItem struct {
	Line        int     `json:"line"`
	Story       string  `json:"story"`
	RequestID   string  `json:"requestId,omitempty"`
	CandidateID string  `json:"candidateId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Tier        string  `json:"tier,omitempty"`
	Cached      bool    `json:"cached"`
	Error       string  `json:"error,omitempty"`
}

type batchLine struct {
	number int
	text   string
}

func newBatchCommand(opts *globalOptions) *cobra.Command {
	bopts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Recommend flowers for every story in a file",
		Long: `Reads one story per line ("-" reads stdin) and recommends a flower for each.
Blank lines and lines starting with # are skipped. Identical stories share
one computation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, bopts, args[0], cmd.InOrStdin())
		},
	}
	cmd.Flags().IntVarP(&bopts.concurrency, "concurrency", "j", 4, "stories processed in parallel")
	cmd.Flags().DurationVar(&bopts.timeout, "timeout", 10*time.Minute, "overall time limit")
	cmd.Flags().BoolVar(&bopts.jsonOutput, "json", false, "print JSON instead of a table")
	return cmd
}

func runBatch(ctx context.Context, opts *globalOptions, bopts *batchOptions, path string, stdin io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if bopts.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	lines, err := readStories(path, stdin)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("no stories in %s", path)
	}

	ctx, cancel := context.WithTimeout(ctx, bopts.timeout)
	defer cancel()

	a, err := bootstrap(ctx, opts, app.Options{DuplicateWait: 30 * time.Second})
	if err != nil {
		return err
	}
	defer a.Close()
	a.StartBackground(ctx)

	var bar *ui.ProgressBar
	if !bopts.jsonOutput {
		bar = ui.NewProgressBar(int64(len(lines)), "Recommending")
	}

	items := make([]batchItem, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bopts.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			items[i] = recommendLine(gctx, a.Service, line)
			if bar != nil {
				bar.Add(1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	if bar != nil {
		bar.Finish()
	}

	if bopts.jsonOutput {
		return ui.JSON(items)
	}
	printBatch(items)
	return nil
}

func recommendLine(ctx context.Context, svc *recommend.Service, line batchLine) batchItem {
	item := batchItem{Line: line.number, Story: line.text}
	out, err := svc.Recommend(ctx, recommend.Request{Text: line.text})
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.RequestID = out.RequestID
	item.CandidateID = out.Result.Match.CandidateID
	item.Name = out.Result.Match.Name
	item.Score = out.Result.Match.Score
	item.Tier = string(out.Result.Context.Tier)
	item.Cached = out.Cached
	return item
}

func readStories(path string, stdin io.Reader) ([]batchLine, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open stories: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []batchLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, batchLine{number: n, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stories: %w", err)
	}
	return lines, nil
}

func printBatch(items []batchItem) {
	rows := make([][]string, 0, len(items))
	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
			rows = append(rows, []string{fmt.Sprint(it.Line), ui.Truncate(it.Story, 30), "-", "-", "-", it.Error})
			continue
		}
		cached := ""
		if it.Cached {
			cached = "cached"
		}
		rows = append(rows, []string{
			fmt.Sprint(it.Line),
			ui.Truncate(it.Story, 30),
			it.Name,
			fmt.Sprintf("%.2f", it.Score),
			it.Tier,
			cached,
		})
	}
	ui.Table([]string{"LINE", "STORY", "FLOWER", "SCORE", "TIER", "NOTE"}, rows)
	ui.Newline()
	if failed > 0 {
		ui.Warning("%d of %d stories failed", failed, len(items))
		return
	}
	ui.Success("%d stories recommended", len(items))
}
