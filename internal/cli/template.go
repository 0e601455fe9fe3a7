package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/generator"
	"github.com/gkobilansky/cashloop/internal/optimizer"
	"github.com/gkobilansky/cashloop/internal/store"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Add, generate and inspect templates",
}

func init() {
	templateCmd.AddCommand(newTemplateAddCmd(), newTemplateGenerateCmd(), newTemplatePerfCmd(), newTemplateUnderperformingCmd())
	rootCmd.AddCommand(templateCmd)
}

func newTemplateAddCmd() *cobra.Command {
	var (
		id           string
		topic        string
		skipValidate bool
	)

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store a hand-written template from a Markdown file",
		Long: `Store a template written by hand. The file must start with a "#" title,
contain a sales blurb section and meet min_template_length unless
--skip-validate is given. The id defaults to the file name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			return withApp(func(a *app) error {
				if !skipValidate {
					if err := generator.ValidateContent(string(data), a.cfg.MinTemplateLength); err != nil {
						return err
					}
				}
				t := &store.Template{ID: id, Topic: topic, Content: string(data), Source: "manual"}
				if err := a.store.SaveTemplate(context.Background(), t); err != nil {
					return fmt.Errorf("failed to save template: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored template %s (%d chars)\n", t.ID, len(t.Content))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "template id (default file name)")
	cmd.Flags().StringVar(&topic, "topic", "", "topic the template covers")
	cmd.Flags().BoolVar(&skipValidate, "skip-validate", false, "store without structural checks")

	return cmd
}

func newTemplateGenerateCmd() *cobra.Command {
	var withVariant bool

	cmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "Generate a template with the configured LLM",
		Long: `Generate a template for topic, or for the top suggested topic when none is
given. With --variant, also create the variant and an A/B test between them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := context.Background()

				topic := ""
				if len(args) == 1 {
					topic = args[0]
				} else if suggested := a.ranker.SuggestTopics(ctx, 1); len(suggested) > 0 {
					topic = suggested[0]
				}
				if topic == "" {
					return fmt.Errorf("no topic given and none suggested")
				}

				t, err := a.generator.Generate(ctx, topic)
				if errors.Is(err, generator.ErrUnavailable) {
					return fmt.Errorf("%w. Set openai_api_key or OPENAI_API_KEY", err)
				}
				if err != nil {
					return fmt.Errorf("failed to generate template: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Generated template %s on '%s'\n", t.ID, topic)

				if !withVariant {
					return nil
				}
				variant, err := a.generator.CreateVariant(ctx, t)
				if err != nil {
					return fmt.Errorf("failed to create variant: %w", err)
				}
				test, err := a.ab.CreateTest(ctx, t.ID, variant.ID, "")
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}
				fmt.Fprintf(out, "Created test %d: %s vs %s\n", test.ID, t.ID, variant.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withVariant, "variant", false, "also create a variant and an A/B test")

	return cmd
}

func newTemplatePerfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perf <template-id> [other-template-id]",
		Short: "Show sales performance of a template, or compare two",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := context.Background()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TEMPLATE\tPRODUCTS\tSALES\tREVENUE\tAVG PRICE\tREV/PRODUCT")

				if len(args) == 1 {
					p, err := a.optimizer.PerformanceOf(ctx, args[0])
					if err != nil {
						return err
					}
					printPerf(w, p)
					return w.Flush()
				}

				cmp, err := a.optimizer.Compare(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printPerf(w, cmp.A)
				printPerf(w, cmp.B)
				if err := w.Flush(); err != nil {
					return err
				}
				if cmp.Leader == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "\nNo revenue leader")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "\nRevenue leader: %s\n", cmp.Leader)
				}
				return nil
			})
		},
	}
}

func printPerf(w io.Writer, p optimizer.Performance) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\n", p.TemplateID, p.ProductCount, p.TotalSales, p.TotalRevenue, p.AvgPrice, p.AvgRevenuePerProduct)
}

func newTemplateUnderperformingCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "underperforming",
		Short: "List templates selling below the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if threshold <= 0 {
					threshold = a.cfg.OptimizationThreshold
				}
				list, err := a.optimizer.Underperforming(context.Background(), threshold)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No underperforming templates.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TEMPLATE\tPRODUCTS\tREVENUE\tREV/PRODUCT\tCUTOFF")
				for _, u := range list {
					fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\n", u.TemplateID, u.ProductCount, u.TotalRevenue, u.AvgRevenuePerProduct, u.Cutoff)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "share of the mean revenue (default optimization_threshold)")

	return cmd
}
