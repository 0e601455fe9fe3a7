package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/config"
)

var (
	initDefaults bool
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a cashloop config file",
	Long: `Walk through the main settings and write them to the config file
(--config, default ./cashloop.yaml). Anything not asked keeps its default
and can be edited in the file afterwards.

Example:
  cashloop init
  cashloop init --defaults --config /etc/cashloop.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write the defaults without prompting")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

// wizardAnswers holds the raw prompt input before it is applied to a Config.
type wizardAnswers struct {
	DBPath               string
	OpenAIAPIKey         string
	EnableGeneration     bool
	TargetMonthlyRevenue string
	Topics               string
	RedisAddr            string
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	}

	cfg := config.Defaults()
	if !initDefaults {
		ans, err := promptAnswers(cfg)
		if err != nil {
			return err
		}
		if cfg, err = applyAnswers(cfg, ans); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(configPath); err != nil {
		return err
	}

	printNextSteps(cmd.OutOrStdout(), cfg)
	return nil
}

func promptAnswers(cfg config.Config) (wizardAnswers, error) {
	var ans wizardAnswers
	var err error

	if ans.DBPath, err = runPrompt(promptui.Prompt{Label: "Database path", Default: cfg.DBPath}); err != nil {
		return ans, err
	}
	if ans.OpenAIAPIKey, err = runPrompt(promptui.Prompt{Label: "OpenAI API key (empty disables generation)", Mask: '*'}); err != nil {
		return ans, err
	}
	if ans.OpenAIAPIKey != "" {
		sel := promptui.Select{Label: "Generate templates automatically", Items: []string{"Yes", "No"}}
		idx, _, err := sel.Run()
		if err != nil {
			return ans, interrupted(err)
		}
		ans.EnableGeneration = idx == 0
	}
	if ans.TargetMonthlyRevenue, err = runPrompt(promptui.Prompt{
		Label:    "Target monthly revenue",
		Default:  strconv.FormatFloat(cfg.TargetMonthlyRevenue, 'f', -1, 64),
		Validate: validateAmount,
	}); err != nil {
		return ans, err
	}
	if ans.Topics, err = runPrompt(promptui.Prompt{
		Label:   "Fallback topics (comma-separated)",
		Default: strings.Join(cfg.TemplateTopics, ", "),
	}); err != nil {
		return ans, err
	}
	if ans.RedisAddr, err = runPrompt(promptui.Prompt{Label: "Redis address for shared locks (empty for single process)"}); err != nil {
		return ans, err
	}
	return ans, nil
}

func runPrompt(p promptui.Prompt) (string, error) {
	v, err := p.Run()
	if err != nil {
		return "", interrupted(err)
	}
	return strings.TrimSpace(v), nil
}

func interrupted(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		os.Exit(0)
	}
	return err
}

func validateAmount(input string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return errors.New("enter a number")
	}
	if v < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// applyAnswers overlays non-empty answers on cfg.
func applyAnswers(cfg config.Config, ans wizardAnswers) (config.Config, error) {
	if ans.DBPath != "" {
		cfg.DBPath = ans.DBPath
	}
	cfg.OpenAIAPIKey = ans.OpenAIAPIKey
	cfg.TemplateGenerationEnabled = ans.OpenAIAPIKey != "" && ans.EnableGeneration
	if ans.TargetMonthlyRevenue != "" {
		if err := validateAmount(ans.TargetMonthlyRevenue); err != nil {
			return cfg, fmt.Errorf("target monthly revenue: %w", err)
		}
		cfg.TargetMonthlyRevenue, _ = strconv.ParseFloat(strings.TrimSpace(ans.TargetMonthlyRevenue), 64)
	}
	if topics := splitList(ans.Topics); len(topics) > 0 {
		cfg.TemplateTopics = topics
	}
	cfg.RedisAddr = ans.RedisAddr
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printNextSteps(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Wrote %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "1. Add trend sources (optional)")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "   Set twitter_bearer_token, reddit_client_id/reddit_client_secret")
	fmt.Fprintln(out, "   or rss_feeds in the config file.")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "2. Start the server")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "   cashloop serve --config %s\n", configPath)
	fmt.Fprintln(out)

	if !cfg.TemplateGenerationEnabled {
		fmt.Fprintln(out, "   Template generation is off. Add templates with: cashloop template add <file>")
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  sweep              Run one cycle now")
	fmt.Fprintln(out, "  test list          List A/B tests")
	fmt.Fprintln(out, "  test results <id>  Show test statistics")
	fmt.Fprintln(out, "  trends top         Show trending keywords")
	fmt.Fprintln(out, "  token              Show the API token")
}
