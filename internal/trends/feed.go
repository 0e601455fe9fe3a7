package trends

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/gkobilansky/cashloop/internal/store"
)

// FeedSource extracts title words from RSS or Atom feeds. Earlier items weigh
// more: the item at rank i contributes 1/(i+1).
type FeedSource struct {
	urls   []string
	parser *gofeed.Parser
}

func NewFeedSource(urls []string) *FeedSource {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &FeedSource{urls: urls, parser: p}
}

func (s *FeedSource) Name() string { return "rss" }

func (s *FeedSource) Fetch(ctx context.Context, _ []string) ([]store.TrendRecord, error) {
	var (
		records []store.TrendRecord
		errs    []error
	)
	for _, u := range s.urls {
		feed, err := s.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", u, err))
			continue
		}

		words := weightedWords{}
		for i, item := range feed.Items {
			words.add(item.Title, 1/float64(i+1))
		}
		meta := metadata(map[string]any{"feed": u, "title": feed.Title, "item_count": len(feed.Items)})
		for _, w := range words.top(keywordsPerBatch) {
			records = append(records, store.TrendRecord{
				Keyword:    w.word,
				Topic:      w.word,
				Source:     s.Name(),
				TrendScore: w.score,
				Volume:     len(feed.Items),
				Metadata:   meta,
			})
		}
	}
	return records, errors.Join(errs...)
}
