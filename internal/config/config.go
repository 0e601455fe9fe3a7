package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the optimization loop reads at startup. It is built
// once and passed to each component constructor.
type Config struct {
	DBPath  string `yaml:"db_path"`
	LogMode string `yaml:"log_mode"`

	ABTestEnabled        bool `yaml:"ab_test_enabled"`
	ABTestMinConversions int  `yaml:"ab_test_min_conversions"`
	ABTestMaxAgeHours    int  `yaml:"ab_test_max_age_hours"`

	TrendAnalysisEnabled       bool     `yaml:"trend_analysis_enabled"`
	TrendAnalysisIntervalHours int      `yaml:"trend_analysis_interval_hours"`
	TrendWindowHours           int      `yaml:"trend_window_hours"`
	RedditSubreddits           []string `yaml:"reddit_subreddits"`
	RSSFeeds                   []string `yaml:"rss_feeds"`
	TwitterBearerToken         string   `yaml:"twitter_bearer_token"`
	RedditClientID             string   `yaml:"reddit_client_id"`
	RedditClientSecret         string   `yaml:"reddit_client_secret"`

	SalesOptimizationEnabled bool    `yaml:"sales_optimization_enabled"`
	OptimizationThreshold    float64 `yaml:"optimization_threshold"`
	OptimizeBatchSize        int     `yaml:"optimize_batch_size"`

	TemplateGenerationEnabled bool     `yaml:"template_generation_enabled"`
	MinTemplateIntervalDays   int      `yaml:"min_template_interval_days"`
	MinTemplateLength         int      `yaml:"min_template_length"`
	TemplateTopics            []string `yaml:"template_topics"`
	TemplatesDir              string   `yaml:"templates_dir"`
	TargetMonthlyRevenue      float64  `yaml:"target_monthly_revenue"`
	OpenAIAPIKey              string   `yaml:"openai_api_key"`
	OpenAIModel               string   `yaml:"openai_model"`

	CycleIntervalHours int           `yaml:"cycle_interval_hours"`
	ExternalTimeout    time.Duration `yaml:"external_timeout"`

	RedisAddr string `yaml:"redis_addr"`
	HTTPPort  int    `yaml:"http_port"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		DBPath:                     "./cashloop.db",
		LogMode:                    "development",
		ABTestEnabled:              true,
		ABTestMinConversions:       10,
		TrendAnalysisEnabled:       true,
		TrendAnalysisIntervalHours: 24,
		TrendWindowHours:           24,
		RedditSubreddits:           []string{"entrepreneur", "passiveincome", "startups", "business", "productivity"},
		SalesOptimizationEnabled:   true,
		OptimizationThreshold:      0.3,
		OptimizeBatchSize:          3,
		MinTemplateIntervalDays:    7,
		MinTemplateLength:          2000,
		TemplateTopics:             []string{"wealth", "business", "productivity", "entrepreneurship", "finance", "passive income"},
		TemplatesDir:               "./products",
		TargetMonthlyRevenue:       10000,
		OpenAIModel:                "gpt-4-turbo-preview",
		CycleIntervalHours:         8,
		ExternalTimeout:            10 * time.Second,
		HTTPPort:                   8080,
	}
}

// Load reads an optional YAML file, then applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	if envPath := os.Getenv("CASHLOOP_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true")
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("CASHLOOP_DB_PATH", &c.DBPath)
	str("CASHLOOP_LOG_MODE", &c.LogMode)
	boolean("AB_TEST_ENABLED", &c.ABTestEnabled)
	integer("AB_TEST_MIN_CONVERSIONS", &c.ABTestMinConversions)
	integer("AB_TEST_MAX_AGE_HOURS", &c.ABTestMaxAgeHours)
	boolean("TREND_ANALYSIS_ENABLED", &c.TrendAnalysisEnabled)
	integer("TREND_ANALYSIS_INTERVAL", &c.TrendAnalysisIntervalHours)
	str("TWITTER_BEARER_TOKEN", &c.TwitterBearerToken)
	str("REDDIT_CLIENT_ID", &c.RedditClientID)
	str("REDDIT_CLIENT_SECRET", &c.RedditClientSecret)
	boolean("SALES_OPTIMIZATION_ENABLED", &c.SalesOptimizationEnabled)
	float("OPTIMIZATION_THRESHOLD", &c.OptimizationThreshold)
	boolean("TEMPLATE_GENERATION_ENABLED", &c.TemplateGenerationEnabled)
	integer("MIN_TEMPLATE_GENERATION_INTERVAL", &c.MinTemplateIntervalDays)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("TEMPLATE_GENERATION_MODEL", &c.OpenAIModel)
	str("REDIS_ADDR", &c.RedisAddr)
	integer("CASHLOOP_PORT", &c.HTTPPort)

	return errors.Join(errs...)
}

// Validate checks ranges of the numeric settings.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ABTestMinConversions < 0 {
		return fmt.Errorf("ab_test_min_conversions must be >= 0, got %d", c.ABTestMinConversions)
	}
	if c.ABTestMaxAgeHours < 0 {
		return fmt.Errorf("ab_test_max_age_hours must be >= 0, got %d", c.ABTestMaxAgeHours)
	}
	if c.OptimizationThreshold <= 0 || c.OptimizationThreshold > 1 {
		return fmt.Errorf("optimization_threshold must be in (0, 1], got %g", c.OptimizationThreshold)
	}
	if c.TrendAnalysisIntervalHours <= 0 {
		return fmt.Errorf("trend_analysis_interval_hours must be positive, got %d", c.TrendAnalysisIntervalHours)
	}
	if c.TrendWindowHours <= 0 {
		return fmt.Errorf("trend_window_hours must be positive, got %d", c.TrendWindowHours)
	}
	if c.CycleIntervalHours <= 0 {
		return fmt.Errorf("cycle_interval_hours must be positive, got %d", c.CycleIntervalHours)
	}
	if c.OptimizeBatchSize <= 0 {
		return fmt.Errorf("optimize_batch_size must be positive, got %d", c.OptimizeBatchSize)
	}
	if c.ExternalTimeout <= 0 {
		return fmt.Errorf("external_timeout must be positive")
	}
	if len(c.TemplateTopics) == 0 {
		return fmt.Errorf("template_topics must not be empty")
	}
	return nil
}

// ABTestMaxAge is the forced-decision age, zero when disabled.
func (c Config) ABTestMaxAge() time.Duration {
	return time.Duration(c.ABTestMaxAgeHours) * time.Hour
}

// TrendWindow is the trailing window used for ranking.
func (c Config) TrendWindow() time.Duration {
	return time.Duration(c.TrendWindowHours) * time.Hour
}
