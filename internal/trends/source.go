package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gkobilansky/cashloop/internal/store"
)

// Source is one external keyword-frequency signal.
type Source interface {
	Name() string
	// Fetch returns observations for the given seed keywords. It may return
	// partial records together with an error.
	Fetch(ctx context.Context, keywords []string) ([]store.TrendRecord, error)
}

const (
	minTitleWordLength = 5
	keywordsPerBatch   = 10
	userAgent          = "cashloop/1.0"
)

// weightedWords collects words of at least minTitleWordLength runes and adds
// weight to each.
type weightedWords map[string]float64

func (w weightedWords) add(title string, weight float64) {
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.TrimFunc(word, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if utf8.RuneCountInString(word) < minTitleWordLength {
			continue
		}
		w[word] += weight
	}
}

type scoredWord struct {
	word  string
	score float64
}

// top returns the n highest-weighted words, ties broken alphabetically.
func (w weightedWords) top(n int) []scoredWord {
	out := make([]scoredWord, 0, len(w))
	for word, score := range w {
		out = append(out, scoredWord{word, score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].word < out[j].word
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func metadata(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// getJSON issues a GET and decodes a 200 response into dst.
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// userAgentTransport stamps every outbound request, including token fetches.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
