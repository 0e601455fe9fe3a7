// Package trends turns keyword observations from external sources into a
// ranked list of topics for template generation.
package trends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/store"
)

// MinKeywordLength is the shortest keyword SuggestTopics will return.
const MinKeywordLength = 4

const maxConcurrentFetches = 4

// Store is what the ranker reads and writes.
type Store interface {
	InsertTrends(ctx context.Context, records []store.TrendRecord) error
	TopTrends(ctx context.Context, since time.Time, limit int) ([]store.TrendAggregate, error)
	Now() time.Time
}

type Options struct {
	// DefaultTopics is returned by SuggestTopics when there is no trend data.
	DefaultTopics []string
	// Keywords are the seed queries handed to keyword-driven sources.
	Keywords []string
	// Timeout bounds each source's Fetch during Refresh.
	Timeout time.Duration
	Sources []Source
}

type Ranker struct {
	store Store
	log   *logger.Logger
	opts  Options
}

func NewRanker(s Store, log *logger.Logger, opts Options) *Ranker {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = opts.DefaultTopics
	}
	return &Ranker{store: s, log: logger.OrNop(log).With("component", "trends"), opts: opts}
}

// Ingest appends one observation. Duplicates are kept; the table is a time series.
func (r *Ranker) Ingest(ctx context.Context, source, keyword string, score float64, volume int) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return errors.New("keyword is required")
	}
	return r.store.InsertTrends(ctx, []store.TrendRecord{{
		Keyword:    keyword,
		Topic:      keyword,
		Source:     source,
		TrendScore: score,
		Volume:     volume,
	}})
}

// TopTrending groups observations from the trailing window by keyword, topic
// and source, ordered by mean score then summed volume.
func (r *Ranker) TopTrending(ctx context.Context, limit int, window time.Duration) ([]store.TrendAggregate, error) {
	if limit <= 0 {
		return nil, nil
	}
	since := r.store.Now().Add(-window)
	return r.store.TopTrends(ctx, since, limit)
}

// SuggestTopics returns up to limit distinct keywords from the last day of
// trends. It never fails: with no usable trend data it falls back to the
// default topics.
func (r *Ranker) SuggestTopics(ctx context.Context, limit int) []string {
	if limit <= 0 {
		return nil
	}

	trends, err := r.TopTrending(ctx, limit*2, 24*time.Hour)
	if err != nil {
		r.log.Warn("Failed to read trends, using default topics", "error", err)
		trends = nil
	}

	seen := make(map[string]bool, len(trends))
	var suggested []string
	for _, t := range trends {
		kw := strings.TrimSpace(t.Keyword)
		if len([]rune(kw)) < MinKeywordLength || seen[kw] {
			continue
		}
		seen[kw] = true
		suggested = append(suggested, kw)
		if len(suggested) >= limit {
			break
		}
	}

	if len(suggested) == 0 {
		suggested = append(suggested, r.opts.DefaultTopics...)
		if len(suggested) > limit {
			suggested = suggested[:limit]
		}
	}
	return suggested
}

// RefreshSummary reports one pass over the configured sources.
type RefreshSummary struct {
	Sources  int      `json:"sources"`
	Failed   []string `json:"failed,omitempty"`
	Inserted int      `json:"inserted"`
}

// Refresh fetches every configured source concurrently, each under its own
// timeout. A failing source is logged and skipped; whatever it returned
// before failing is still stored. Cancelling ctx abandons the refresh and
// stores nothing.
func (r *Ranker) Refresh(ctx context.Context) (RefreshSummary, error) {
	sum := RefreshSummary{Sources: len(r.opts.Sources)}

	var (
		mu      sync.Mutex
		records []store.TrendRecord
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, src := range r.opts.Sources {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()

			got, err := src.Fetch(fetchCtx, r.opts.Keywords)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			records = append(records, got...)
			if err != nil {
				sum.Failed = append(sum.Failed, src.Name())
				r.log.Warn("Trend source failed", "source", src.Name(), "records", len(got), "error", err)
				return nil
			}
			r.log.Debug("Trend source fetched", "source", src.Name(), "records", len(got))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, fmt.Errorf("trend refresh interrupted: %w", err)
	}

	if err := r.store.InsertTrends(ctx, records); err != nil {
		return sum, fmt.Errorf("failed to store trends: %w", err)
	}
	sum.Inserted = len(records)
	r.log.Info("Trend refresh finished", "sources", sum.Sources, "failed", len(sum.Failed), "inserted", sum.Inserted)
	return sum, nil
}
