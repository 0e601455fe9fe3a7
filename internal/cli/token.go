package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Aliases: []string{"otp"},
	Short:   "Show the API access token",
	Long: `Show the access token of the running server.

Mutating API routes need it as "Authorization: Bearer <token>".

Example:
  cashloop token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(tokenFilePath(cfg.DBPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: cashloop serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: cashloop serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API token: %s\n", token)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Example:\n  curl -X POST -H \"Authorization: Bearer %s\" http://localhost:%d/api/sweep\n", token, cfg.HTTPPort)
	return nil
}
