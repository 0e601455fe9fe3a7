package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/store"
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Record products built from templates and their sales",
	Long: `Record products and sales. A product built from a template in an active
A/B test counts as an impression for that template's variant; each sale
counts as a conversion with its amount as revenue.`,
}

func init() {
	productCmd.AddCommand(newProductAddCmd(), newProductSaleCmd())
	rootCmd.AddCommand(productCmd)
}

func newProductAddCmd() *cobra.Command {
	var p store.Product

	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a product",
		Example: `  cashloop product add "Budget Planner" --price 19 --template budgeting_20260803_080000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Price < 0 {
				return fmt.Errorf("price must not be negative")
			}
			p.Name = args[0]
			return withApp(func(a *app) error {
				if err := a.engine.AddProduct(context.Background(), &p); err != nil {
					return fmt.Errorf("failed to add product: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added product %d '%s'\n", p.ID, p.Name)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&p.Price, "price", 0, "list price")
	cmd.Flags().StringVar(&p.Type, "type", "digital", "product type")
	cmd.Flags().StringVar(&p.TemplateID, "template", "", "template the product was built from")
	cmd.Flags().StringVar(&p.ABTestVariant, "variant", "", "variant label when the template is not in an active test")

	return cmd
}

func newProductSaleCmd() *cobra.Command {
	var (
		amount float64
		source string
	)

	cmd := &cobra.Command{
		Use:     "sale <product-id>",
		Short:   "Record a sale",
		Example: `  cashloop product sale 4 --amount 19 --source gumroad`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			if amount < 0 {
				return fmt.Errorf("amount must not be negative")
			}
			return withApp(func(a *app) error {
				if err := a.engine.RecordSale(context.Background(), id, amount, source); err != nil {
					return fmt.Errorf("failed to record sale: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded sale of %.2f for product %d\n", amount, id)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "sale amount")
	cmd.Flags().StringVar(&source, "source", "manual", "sales channel")
	cmd.MarkFlagRequired("amount")

	return cmd
}
