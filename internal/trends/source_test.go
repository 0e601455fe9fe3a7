package trends

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestWeightedWords(t *testing.T) {
	w := weightedWords{}
	w.add("How I Built a Passive Income Business!", 10)
	w.add("Passive income ideas for 2026", 5)

	top := w.top(3)
	require.Len(t, top, 3)
	assert.Equal(t, scoredWord{"income", 15}, top[0])
	assert.Equal(t, scoredWord{"passive", 15}, top[1])
	assert.Equal(t, scoredWord{"built", 10}, top[2])
	_, hasShort := w["how"]
	assert.False(t, hasShort)
}

func TestTwitterSource_Fetch(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		switch r.URL.Query().Get("query") {
		case "wealth":
			fmt.Fprint(w, `{"data":[
				{"public_metrics":{"like_count":10,"retweet_count":2,"reply_count":1}},
				{"public_metrics":{"like_count":4,"retweet_count":0,"reply_count":3}}
			]}`)
		default:
			http.Error(w, `{"title":"Too Many Requests"}`, http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	src := NewTwitterSource("secret-token", srv.URL)
	src.limiter = rate.NewLimiter(rate.Inf, 1)

	records, err := src.Fetch(context.Background(), []string{"wealth", "finance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finance")
	require.Len(t, records, 1)

	assert.Equal(t, "wealth", records[0].Keyword)
	assert.Equal(t, "twitter", records[0].Source)
	assert.Equal(t, 2, records[0].Volume)
	assert.InDelta(t, 11.0, records[0].TrendScore, 1e-9) // (15 + 7) / 2
	assert.Equal(t, []string{"Bearer secret-token", "Bearer secret-token"}, auth)
}

func TestRedditSource_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "shh", secret)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"reddit-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/r/entrepreneur/hot", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer reddit-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"title":"Bootstrapped SaaS reached profit","score":100}},
			{"data":{"title":"First profit from my newsletter","score":20}}
		]}}`)
	})
	mux.HandleFunc("/r/missing/hot", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewRedditSource(RedditOptions{
		ClientID:     "client",
		ClientSecret: "shh",
		Subreddits:   []string{"entrepreneur", "missing"},
		TokenURL:     srv.URL + "/api/v1/access_token",
		APIURL:       srv.URL,
	})
	src.limiter = rate.NewLimiter(rate.Inf, 1)

	records, err := src.Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	byKeyword := map[string]float64{}
	for _, r := range records {
		assert.Equal(t, "reddit", r.Source)
		assert.Equal(t, 2, r.Volume)
		byKeyword[r.Keyword] = r.TrendScore
	}
	assert.Equal(t, 120.0, byKeyword["profit"])
	assert.Equal(t, 100.0, byKeyword["bootstrapped"])
	assert.Equal(t, 20.0, byKeyword["newsletter"])
	assert.NotContains(t, byKeyword, "saas")
}

func TestFeedSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Startup News</title>
<item><title>Pricing strategies for creators</title></item>
<item><title>Creators share pricing mistakes</title></item>
</channel></rss>`)
	}))
	defer srv.Close()

	src := NewFeedSource([]string{srv.URL, srv.URL + "/broken\x7f"})
	records, err := src.Fetch(context.Background(), nil)
	require.Error(t, err)

	scores := map[string]float64{}
	for _, r := range records {
		assert.Equal(t, "rss", r.Source)
		assert.True(t, strings.Contains(r.Metadata, "Startup News"))
		scores[r.Keyword] = r.TrendScore
	}
	assert.InDelta(t, 1.5, scores["pricing"], 1e-9)
	assert.InDelta(t, 1.5, scores["creators"], 1e-9)
	assert.InDelta(t, 1.0, scores["strategies"], 1e-9)
	assert.InDelta(t, 0.5, scores["mistakes"], 1e-9)
}
