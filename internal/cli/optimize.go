package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/optimizer"
)

func init() {
	rootCmd.AddCommand(newOptimizeCmd())
}

func newOptimizeCmd() *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:   "optimize [template-id]",
		Short: "Rewrite underperforming templates",
		Long: `Rewrite one template, pick one interactively from the underperformers, or
without arguments sweep the optimize_batch_size worst templates.

Examples:
  cashloop optimize
  cashloop optimize budgeting_20260803_080000
  cashloop optimize --pick`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := context.Background()
				out := cmd.OutOrStdout()

				templateID := ""
				switch {
				case len(args) == 1:
					templateID = args[0]
				case pick:
					list, err := a.optimizer.Underperforming(ctx, a.cfg.OptimizationThreshold)
					if err != nil {
						return err
					}
					if len(list) == 0 {
						fmt.Fprintln(out, "No underperforming templates.")
						return nil
					}
					templateID, err = promptUnderperformer(list)
					if err != nil {
						return err
					}
				default:
					sum, err := a.optimizer.Sweep(ctx, a.cfg.OptimizationThreshold, a.cfg.OptimizeBatchSize)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d candidates, %d optimized, %d skipped, %d failed\n",
						sum.Candidates, len(sum.Optimized), sum.Skipped, sum.Failed)
					for _, id := range sum.Optimized {
						fmt.Fprintf(out, "  %s\n", id)
					}
					return nil
				}

				revised, err := a.optimizer.Optimize(ctx, templateID)
				if err != nil {
					return fmt.Errorf("failed to optimize %s: %w", templateID, err)
				}
				if revised == nil {
					fmt.Fprintf(out, "No revision produced for %s. See the log for details.\n", templateID)
					return nil
				}
				fmt.Fprintf(out, "Optimized %s -> %s\n", templateID, revised.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "choose the template from the underperformers")

	return cmd
}

func promptUnderperformer(list []optimizer.Underperformer) (string, error) {
	prompt := promptui.Select{
		Label: "Template to optimize",
		Items: list,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .TemplateID | cyan }} ({{ .TotalRevenue | printf \"%.2f\" }} revenue, {{ .ProductCount }} products)",
			Inactive: "  {{ .TemplateID }} ({{ .TotalRevenue | printf \"%.2f\" }} revenue, {{ .ProductCount }} products)",
			Selected: "Optimizing {{ .TemplateID }}",
		},
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return "", err
	}
	return list[idx].TemplateID, nil
}
