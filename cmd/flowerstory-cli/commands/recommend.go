package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/ui"
	"github.com/pinkittys/flowerstory/internal/app"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/recommend"
)

// requestFlags are the filters shared by recommend and extract.
type requestFlags struct {
	excludeEmotions   []string
	excludeSituations []string
	excludeMoods      []string
	excludeColors     []string
	excludeFlowers    []string
	preferColors      []string
	jsonOutput        bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.excludeEmotions, "exclude-emotion", nil, "emotion keywords to exclude")
	cmd.Flags().StringSliceVar(&f.excludeSituations, "exclude-situation", nil, "situation keywords to exclude")
	cmd.Flags().StringSliceVar(&f.excludeMoods, "exclude-mood", nil, "mood keywords to exclude")
	cmd.Flags().StringSliceVar(&f.excludeColors, "exclude-color", nil, "color keywords to exclude")
	cmd.Flags().StringSliceVar(&f.excludeFlowers, "exclude-flower", nil, "candidate ids or flower names to skip")
	cmd.Flags().StringSliceVar(&f.preferColors, "prefer-color", nil, "colors to put first")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print JSON instead of text")
}

func (f *requestFlags) request(text string) recommend.Request {
	req := recommend.Request{
		Text: text,
		Filters: recommend.Filters{
			PreferredColors: f.preferColors,
			ExcludedItems:   f.excludeFlowers,
		},
	}
	add := func(d extract.Dimension, values []string) {
		for _, v := range values {
			req.ExcludedKeywords = append(req.ExcludedKeywords, extract.Exclusion{Text: v, Category: d})
		}
	}
	add(extract.DimensionEmotion, f.excludeEmotions)
	add(extract.DimensionSituation, f.excludeSituations)
	add(extract.DimensionMood, f.excludeMoods)
	add(extract.DimensionColor, f.excludeColors)
	return req
}

func newRecommendCommand(opts *globalOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "recommend <story>",
		Short: "Recommend a flower for a story",
		Example: `  flowerstory recommend "친구 생일을 축하해주고 싶어요"
  flowerstory recommend --exclude-color 핑크 --json "엄마께 감사 인사를 드리고 싶어요"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd.Context(), opts, flags, joinArgs(args))
		},
	}
	flags.register(cmd)
	return cmd
}

func runRecommend(ctx context.Context, opts *globalOptions, flags *requestFlags, text string) error {
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

	var spin *ui.Spinner
	if !flags.jsonOutput {
		spin = ui.NewSpinner("Reading the story...")
		spin.Start()
	}
	out, err := a.Service.Recommend(ctx, flags.request(text))
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return fmt.Errorf("recommend: %w", err)
	}

	if flags.jsonOutput {
		return ui.JSON(out.Response())
	}
	printRecommendation(out)
	return nil
}

func printRecommendation(out *recommend.Outcome) {
	m := out.Result.Match
	ui.Success("%s (%s)  score %.2f", m.Name, m.Breakdown.Color, m.Score)
	ui.Field("Candidate", m.CandidateID)
	if len(m.Breakdown.Reasons) > 0 {
		ui.Field("Why", m.Breakdown.Reasons[0])
		for _, r := range m.Breakdown.Reasons[1:] {
			ui.Field("", r)
		}
	}
	printContext(out.Result.Context)

	if len(m.Alternatives) > 0 {
		ui.Section("Alternatives")
		rows := make([][]string, 0, len(m.Alternatives))
		for _, alt := range m.Alternatives {
			rows = append(rows, []string{alt.CandidateID, alt.Name, alt.Color, fmt.Sprintf("%.2f", alt.Score)})
		}
		ui.Table([]string{"ID", "NAME", "COLOR", "SCORE"}, rows)
	}
	ui.Debug("request %s", out.RequestID)
}

func printContext(c extract.Context) {
	ui.Field("Emotion", keywordLine(c.Emotions.Main, c.Emotions.Alternatives))
	ui.Field("Situation", keywordLine(c.Situations.Main, c.Situations.Alternatives))
	ui.Field("Mood", keywordLine(c.Moods.Main, c.Moods.Alternatives))
	ui.Field("Color", keywordLine(c.Colors.Main, c.Colors.Alternatives))
	tier := string(c.Tier)
	if c.RequestedTier != "" && c.RequestedTier != c.Tier {
		tier = fmt.Sprintf("%s (downgraded from %s)", c.Tier, c.RequestedTier)
	}
	ui.Field("Tier", fmt.Sprintf("%s, confidence %.1f", tier, c.Confidence))
	if c.Season != "" {
		ui.Field("Season", c.Season)
	}
}
