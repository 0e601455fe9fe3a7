package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Manage A/B tests between templates",
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func parseTestID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid test id %q", arg)
	}
	return id, nil
}
