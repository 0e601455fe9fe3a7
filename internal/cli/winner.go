package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	testCmd.AddCommand(newApplyCmd())
	testCmd.AddCommand(newRecordCmd())
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply the winner rule to a test",
		Long: `Evaluate an active test and, when the winner rule picks a variant, complete
the test with that variant's template as the winner. A test without a winner
stays active.

Example:
  cashloop test apply 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTestID(args[0])
			if err != nil {
				return err
			}

			return withApp(func(a *app) error {
				ctx := context.Background()
				applied, err := a.ab.ApplyWinner(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to apply winner: %w", err)
				}

				test, err := a.store.GetABTest(ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch {
				case applied:
					fmt.Fprintf(out, "Test %d completed. Winner: %s\n", id, *test.WinnerID)
				case test.WinnerID != nil:
					fmt.Fprintf(out, "Test %d was already completed. Winner: %s\n", id, *test.WinnerID)
				default:
					fmt.Fprintf(out, "No winner yet for test %d; it stays active.\n", id)
				}
				return nil
			})
		},
	}
}

func newRecordCmd() *cobra.Command {
	var (
		variant     string
		impressions int
		conversions int
		amount      float64
	)

	cmd := &cobra.Command{
		Use:   "record <id>",
		Short: "Record impressions or conversions for a variant",
		Long: `Record impressions and conversions against one variant of an active test.
Each conversion carries --amount of revenue.

Examples:
  cashloop test record 3 --variant A --impressions 10
  cashloop test record 3 --variant B --conversions 1 --amount 19`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTestID(args[0])
			if err != nil {
				return err
			}
			if impressions < 0 || conversions < 0 {
				return fmt.Errorf("counts must not be negative")
			}
			if impressions == 0 && conversions == 0 {
				return fmt.Errorf("nothing to record. Use --impressions or --conversions")
			}

			return withApp(func(a *app) error {
				ctx := context.Background()
				for i := 0; i < impressions; i++ {
					if err := a.ab.RecordImpression(ctx, id, variant); err != nil {
						return fmt.Errorf("failed to record impression: %w", err)
					}
				}
				for i := 0; i < conversions; i++ {
					if err := a.ab.RecordConversion(ctx, id, variant, amount); err != nil {
						return fmt.Errorf("failed to record conversion: %w", err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d impressions and %d conversions for variant %s of test %d\n",
					impressions, conversions, variant, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variant, "variant", "v", "", "variant label, A or B (required)")
	cmd.Flags().IntVar(&impressions, "impressions", 0, "impressions to record")
	cmd.Flags().IntVar(&conversions, "conversions", 0, "conversions to record")
	cmd.Flags().Float64Var(&amount, "amount", 0, "revenue per conversion")
	cmd.MarkFlagRequired("variant")

	return cmd
}
