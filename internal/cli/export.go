package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <test-id>",
	Short: "Export raw result rows of a test",
	Long: `Export the raw accumulator rows of an A/B test in CSV or JSON format.

Examples:
  cashloop export 3 --format csv > test-3.csv
  cashloop export 3 --format json > test-3.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}
	id, err := parseTestID(args[0])
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		ctx := context.Background()

		if _, err := a.store.GetABTest(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("test %d not found", id)
			}
			return fmt.Errorf("failed to get test: %w", err)
		}

		rows, err := a.store.ListResults(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), rows)
		}
		return exportJSON(cmd.OutOrStdout(), rows)
	})
}

func exportCSV(out io.Writer, rows []*store.ABResult) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"timestamp", "variant", "impressions", "conversions", "revenue", "conversion_rate"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		row := []string{
			strconv.FormatInt(r.Date.Unix(), 10),
			r.VariantID,
			strconv.Itoa(r.Impressions),
			strconv.Itoa(r.Conversions),
			strconv.FormatFloat(r.Revenue, 'f', 2, 64),
			strconv.FormatFloat(r.ConversionRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Rows []jsonRow `json:"rows"`
}

type jsonRow struct {
	Timestamp      int64   `json:"timestamp"`
	Variant        string  `json:"variant"`
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
}

func exportJSON(out io.Writer, rows []*store.ABResult) error {
	export := jsonExport{
		Rows: make([]jsonRow, len(rows)),
	}

	for i, r := range rows {
		export.Rows[i] = jsonRow{
			Timestamp:      r.Date.Unix(),
			Variant:        r.VariantID,
			Impressions:    r.Impressions,
			Conversions:    r.Conversions,
			Revenue:        r.Revenue,
			ConversionRate: r.ConversionRate,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
