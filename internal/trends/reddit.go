package trends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/gkobilansky/cashloop/internal/store"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL   = "https://oauth.reddit.com"
)

// RedditSource weights the words of hot post titles by post score and keeps
// the top words per subreddit.
type RedditSource struct {
	subreddits []string
	apiURL     string
	limit      int
	creds      clientcredentials.Config
	limiter    *rate.Limiter
}

type RedditOptions struct {
	ClientID     string
	ClientSecret string
	Subreddits   []string
	// TokenURL and APIURL default to reddit.com.
	TokenURL string
	APIURL   string
}

func NewRedditSource(opts RedditOptions) *RedditSource {
	if opts.TokenURL == "" {
		opts.TokenURL = redditTokenURL
	}
	if opts.APIURL == "" {
		opts.APIURL = redditAPIURL
	}
	return &RedditSource{
		subreddits: opts.Subreddits,
		apiURL:     opts.APIURL,
		limit:      50,
		creds: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *RedditSource) Name() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title string `json:"title"`
				Score int    `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch ignores the seed keywords; subreddits are the query.
func (s *RedditSource) Fetch(ctx context.Context, _ []string) ([]store.TrendRecord, error) {
	base := &http.Client{Transport: userAgentTransport{}}
	client := s.creds.Client(context.WithValue(ctx, oauth2.HTTPClient, base))

	var (
		records []store.TrendRecord
		errs    []error
	)
	for _, sub := range s.subreddits {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		var listing redditListing
		u := fmt.Sprintf("%s/r/%s/hot?limit=%s", s.apiURL, url.PathEscape(sub), strconv.Itoa(min(s.limit, 100)))
		if err := getJSON(ctx, client, u, &listing); err != nil {
			errs = append(errs, fmt.Errorf("subreddit %s: %w", sub, err))
			var rErr *oauth2.RetrieveError
			if errors.As(err, &rErr) {
				// bad credentials fail every subreddit the same way
				break
			}
			continue
		}

		posts := listing.Data.Children
		if len(posts) > s.limit {
			posts = posts[:s.limit]
		}
		words := weightedWords{}
		for _, p := range posts {
			words.add(p.Data.Title, float64(p.Data.Score))
		}
		meta := metadata(map[string]any{"subreddit": sub, "post_count": len(listing.Data.Children)})
		for _, w := range words.top(keywordsPerBatch) {
			records = append(records, store.TrendRecord{
				Keyword:    w.word,
				Topic:      w.word,
				Source:     s.Name(),
				TrendScore: w.score,
				Volume:     len(listing.Data.Children),
				Metadata:   meta,
			})
		}
	}
	return records, errors.Join(errs...)
}
