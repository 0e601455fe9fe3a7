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
	"golang.org/x/time/rate"

	"github.com/gkobilansky/cashloop/internal/store"
)

const twitterBaseURL = "https://api.twitter.com"

// TwitterSource scores each seed keyword by the mean engagement of its
// recent tweets: likes + 2*retweets + replies.
type TwitterSource struct {
	client     *http.Client
	baseURL    string
	maxResults int
	limiter    *rate.Limiter
}

// NewTwitterSource authenticates with an app-only bearer token. An empty
// baseURL targets the public API.
func NewTwitterSource(bearerToken, baseURL string) *TwitterSource {
	if baseURL == "" {
		baseURL = twitterBaseURL
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken, TokenType: "Bearer"})
	return &TwitterSource{
		client:     oauth2.NewClient(context.Background(), ts),
		baseURL:    baseURL,
		maxResults: 50,
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (s *TwitterSource) Name() string { return "twitter" }

type tweetSearchResponse struct {
	Data []struct {
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (s *TwitterSource) Fetch(ctx context.Context, keywords []string) ([]store.TrendRecord, error) {
	var (
		records []store.TrendRecord
		errs    []error
	)
	for _, kw := range keywords {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		q := url.Values{}
		q.Set("query", kw)
		q.Set("max_results", strconv.Itoa(min(s.maxResults, 100)))
		q.Set("tweet.fields", "created_at,public_metrics")

		var resp tweetSearchResponse
		if err := getJSON(ctx, s.client, s.baseURL+"/2/tweets/search/recent?"+q.Encode(), &resp); err != nil {
			errs = append(errs, fmt.Errorf("keyword %q: %w", kw, err))
			continue
		}

		engagement := 0
		for _, t := range resp.Data {
			m := t.PublicMetrics
			engagement += m.LikeCount + 2*m.RetweetCount + m.ReplyCount
		}
		score := 0.0
		if n := len(resp.Data); n > 0 {
			score = float64(engagement) / float64(n)
		}

		records = append(records, store.TrendRecord{
			Keyword:    kw,
			Topic:      kw,
			Source:     s.Name(),
			TrendScore: score,
			Volume:     len(resp.Data),
			Metadata:   metadata(map[string]int{"tweet_count": len(resp.Data), "total_engagement": engagement}),
		})
	}
	return records, errors.Join(errs...)
}
