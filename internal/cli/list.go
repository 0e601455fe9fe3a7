package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/store"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List A/B tests",
	Long:  `List A/B tests with their status and summed counters.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (active or completed)")
	testCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	status := store.TestStatus(listStatus)
	if status != "" && status != store.StatusActive && status != store.StatusCompleted {
		return fmt.Errorf("invalid status %q: must be active or completed", listStatus)
	}

	return withApp(func(a *app) error {
		ctx := context.Background()

		tests, err := a.store.ListABTests(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list tests: %w", err)
		}

		if len(tests) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tests yet.")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Tests are created by the cycle for each new template, or with:")
			fmt.Fprintln(cmd.OutOrStdout(), "  cashloop test create <template-a> <template-b>")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tIMPRESSIONS\tCONVERSIONS\tREVENUE\tWINNER\tSTARTED")

		for _, test := range tests {
			totals, err := a.store.VariantTotals(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to get totals for test %d: %w", test.ID, err)
			}

			impressions, conversions, revenue := 0, 0, 0.0
			for _, v := range totals {
				impressions += v.Impressions
				conversions += v.Conversions
				revenue += v.Revenue
			}

			winner := "-"
			if test.WinnerID != nil {
				winner = *test.WinnerID
			}

			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				test.ID,
				test.Name,
				strings.ToUpper(string(test.Status)),
				formatNumber(impressions),
				formatNumber(conversions),
				revenue,
				winner,
				test.StartDate.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
