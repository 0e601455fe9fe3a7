package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/stats"
	"github.com/gkobilansky/cashloop/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for a test",
	Long:  `Show summed counters per variant, the current winner decision, and informational confidence intervals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	testCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id, err := parseTestID(args[0])
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		res, err := a.ab.Results(context.Background(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("test %d not found", id)
			}
			return fmt.Errorf("failed to get results: %w", err)
		}
		printResults(cmd.OutOrStdout(), res, a.ab.MinConversions())
		return nil
	})
}

func printResults(out io.Writer, res *abtest.Results, minConversions int) {
	test := res.Test
	fmt.Fprintf(out, "TEST: %d %s\n", test.ID, test.Name)
	fmt.Fprintf(out, "STATUS: %s\n", test.Status)
	if test.WinnerID != nil {
		fmt.Fprintf(out, "WINNER: %s\n", *test.WinnerID)
	}
	fmt.Fprintf(out, "STARTED: %s\n", test.StartDate.Format("2006-01-02"))
	fmt.Fprintln(out)

	a, b := res.Stats(store.VariantA), res.Stats(store.VariantB)
	summary := stats.Analyze(
		stats.Observation{Name: store.VariantA, Impressions: a.Impressions, Conversions: a.Conversions, Revenue: a.Revenue},
		stats.Observation{Name: store.VariantB, Impressions: b.Impressions, Conversions: b.Conversions, Revenue: b.Revenue},
	)

	fmt.Fprintln(out, "VARIANT  TEMPLATE                        IMPR     CONV   RATE     REVENUE    95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 88))

	for _, v := range summary.Variants {
		templateID, _ := test.TemplateFor(v.Name)
		if len(templateID) > 30 {
			templateID = templateID[:27] + "..."
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Impressions == 0 {
			ciStr = "N/A"
		}

		indicator := ""
		if v.Name == summary.Leader {
			indicator = " ← LEADING"
		}

		fmt.Fprintf(out, "%-7s  %-30s  %-7d  %-5d  %-7s  %-9.2f  %s%s\n",
			v.Name,
			templateID,
			v.Impressions,
			v.Conversions,
			formatPercent(v.Rate),
			res.Stats(v.Name).Revenue,
			ciStr,
			indicator,
		)
	}

	fmt.Fprintln(out)

	switch decision := abtest.Decide(a, b, minConversions); {
	case test.Status == store.StatusCompleted:
	case decision != "":
		fmt.Fprintf(out, "Decision: variant %s wins (apply with: cashloop test apply %d)\n", decision, test.ID)
	case a.Conversions+b.Conversions < minConversions:
		fmt.Fprintf(out, "Decision: waiting for %d conversions (have %d)\n", minConversions, a.Conversions+b.Conversions)
	default:
		fmt.Fprintln(out, "Decision: no winner yet")
	}

	confPct := summary.ConfidenceLevel * 100
	switch {
	case summary.Leader == "":
		fmt.Fprintln(out, "Statistical significance: Not enough data")
	case summary.Confident:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident %s converts better\n", confPct, summary.Leader)
	default:
		fmt.Fprintf(out, "Statistical significance: %.1f%% (not yet significant)\n", confPct)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
