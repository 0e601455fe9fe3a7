package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/store"
)

func init() {
	testCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create <template-a> <template-b>",
		Short: "Create a new A/B test",
		Long: `Create an A/B test between two stored templates. A template can be in at
most one active test.

Examples:
  cashloop test create budgeting_20260803_080000 budgeting_20260803_080000_variant
  cashloop test create tpl_a tpl_b --name "headline rewrite"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				test, err := a.ab.CreateTest(context.Background(), args[0], args[1], name)
				switch {
				case errors.Is(err, abtest.ErrTemplateInActiveTest):
					return fmt.Errorf("%w. Finish it first with: cashloop test apply <id>", err)
				case errors.Is(err, store.ErrNotFound):
					return fmt.Errorf("both templates must exist: %w", err)
				case err != nil:
					return fmt.Errorf("failed to create test: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created test %d '%s':\n", test.ID, test.Name)
				fmt.Fprintf(out, "  A: %s\n", test.TemplateAID)
				fmt.Fprintf(out, "  B: %s\n", test.TemplateBID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "test name (default <a>_vs_<b>)")

	return cmd
}
