package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "cashloop",
	Short: "Cashloop - trend-driven template generation with A/B testing",
	Long: `Cashloop generates content templates from trending topics, runs A/B tests
between template variants, and rewrites templates that undersell.

Running without a subcommand starts the API and the cycle scheduler
(same as 'cashloop serve').`,
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("CASHLOOP_CONFIG", "./cashloop.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides db_path)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
