package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/config"
	"github.com/gkobilansky/cashloop/internal/engine"
	"github.com/gkobilansky/cashloop/internal/generator"
	"github.com/gkobilansky/cashloop/internal/lock"
	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/optimizer"
	"github.com/gkobilansky/cashloop/internal/store"
	"github.com/gkobilansky/cashloop/internal/trends"
)

const lockTTL = 30 * time.Second

// app is every component built from one Config.
type app struct {
	cfg       config.Config
	log       *logger.Logger
	store     *store.SQLiteStore
	redis     *redis.Client
	ranker    *trends.Ranker
	generator *generator.Generator
	ab        *abtest.Controller
	optimizer *optimizer.Optimizer
	engine    *engine.Engine
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func newApp(cfg config.Config) (*app, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{cfg: cfg, log: log, store: s}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ExternalTimeout)
		err := a.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		locker = lock.NewRedis(a.redis, lockTTL)
	}

	a.ranker = trends.NewRanker(s, log, trends.Options{
		DefaultTopics: cfg.TemplateTopics,
		Timeout:       cfg.ExternalTimeout,
		Sources:       sources(cfg),
	})

	var llm generator.Completer
	if cfg.OpenAIAPIKey != "" {
		llm = generator.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
	}
	a.generator = generator.New(s, llm, log, generator.Options{
		Dir:       cfg.TemplatesDir,
		MinLength: cfg.MinTemplateLength,
		Timeout:   cfg.ExternalTimeout,
	})

	a.ab = abtest.New(s, locker, log, abtest.Options{
		MinConversions: cfg.ABTestMinConversions,
		MaxAge:         cfg.ABTestMaxAge(),
	})
	a.optimizer = optimizer.New(s, a.generator, locker, log)
	a.engine = engine.New(s, a.ranker, a.generator, a.ab, a.optimizer, cfg, log)
	return a, nil
}

// sources returns the trend sources that have credentials configured.
func sources(cfg config.Config) []trends.Source {
	var out []trends.Source
	if cfg.TwitterBearerToken != "" {
		out = append(out, trends.NewTwitterSource(cfg.TwitterBearerToken, ""))
	}
	if cfg.RedditClientID != "" && cfg.RedditClientSecret != "" {
		out = append(out, trends.NewRedditSource(trends.RedditOptions{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			Subreddits:   cfg.RedditSubreddits,
		}))
	}
	if len(cfg.RSSFeeds) > 0 {
		out = append(out, trends.NewFeedSource(cfg.RSSFeeds))
	}
	return out
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
	a.log.Sync()
}

// withApp loads the config, builds the app, executes the function, and
// handles cleanup.
func withApp(fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// tokenFilePath keeps the API token alongside the database.
func tokenFilePath(db string) string {
	return filepath.Join(filepath.Dir(db), ".cashloop-token")
}
