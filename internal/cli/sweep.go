package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/engine"
)

var sweepJSON bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one optimization cycle now",
	Long: `Run trend refresh, template generation, A/B evaluation and the
underperformer sweep once, then print the cycle report.

Example:
  cashloop sweep
  cashloop sweep --json`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		report := a.engine.RunCycle(context.Background())
		if sweepJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return printReport(cmd.OutOrStdout(), report)
	})
}

func printReport(out io.Writer, r *engine.Report) error {
	fmt.Fprintf(out, "Cycle %s (%s)\n\n", r.RunID, r.Finished.Sub(r.Started).Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATUS\tDETAIL")
	for _, s := range r.Steps {
		detail := s.Detail
		if s.Error != "" {
			if detail != "" {
				detail += ": "
			}
			detail += s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Status, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	ok, failed, skipped := r.Totals()
	fmt.Fprintf(out, "\n%d succeeded, %d failed, %d skipped\n", ok, failed, skipped)
	return nil
}
