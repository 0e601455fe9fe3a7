package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Refresh, record and rank trending keywords",
}

func init() {
	trendsCmd.AddCommand(newTrendsRefreshCmd(), newTrendsIngestCmd(), newTrendsTopCmd(), newTrendsSuggestCmd())
	rootCmd.AddCommand(trendsCmd)
}

func newTrendsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Pull keywords from every configured source",
		Long: `Pull keywords from Twitter, Reddit and RSS feeds. Sources without
credentials are skipped; a failing source does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				sum, err := a.ranker.Refresh(context.Background())
				if err != nil {
					return fmt.Errorf("failed to refresh trends: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d records from %d sources\n", sum.Inserted, sum.Sources)
				if len(sum.Failed) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Failed sources: %s\n", strings.Join(sum.Failed, ", "))
				}
				return nil
			})
		},
	}
}

func newTrendsIngestCmd() *cobra.Command {
	var (
		source string
		score  float64
		volume int
	)

	cmd := &cobra.Command{
		Use:   "ingest <keyword>",
		Short: "Record one keyword observation",
		Example: `  cashloop trends ingest "meal prep" --score 8.5 --volume 120
  cashloop trends ingest budgeting --source newsletter --score 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if err := a.ranker.Ingest(context.Background(), source, args[0], score, volume); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded '%s' from %s\n", args[0], source)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "manual", "source name")
	cmd.Flags().Float64Var(&score, "score", 1, "trend score")
	cmd.Flags().IntVar(&volume, "volume", 1, "observation volume")

	return cmd
}

func newTrendsTopCmd() *cobra.Command {
	var (
		limit  int
		window time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the highest ranked keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if window <= 0 {
					window = a.cfg.TrendWindow()
				}
				top, err := a.ranker.TopTrending(context.Background(), limit, window)
				if err != nil {
					return fmt.Errorf("failed to rank trends: %w", err)
				}
				if len(top) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No trends in the last %s. Run: cashloop trends refresh\n", window)
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEYWORD\tSOURCE\tAVG SCORE\tVOLUME")
				for _, t := range top {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", t.Keyword, t.Source, t.AvgScore, formatNumber(t.TotalVolume))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of keywords")
	cmd.Flags().DurationVar(&window, "window", 0, "trailing window (default trend_window_hours)")

	return cmd
}

func newTrendsSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest topics for template generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				for i, topic := range a.ranker.SuggestTopics(context.Background(), limit) {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, topic)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 5, "number of topics")

	return cmd
}
