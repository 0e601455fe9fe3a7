// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gkobilansky/cashloop/internal/store"
)

// Open creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func Open(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// Clock is a settable time source for WithClock.
type Clock struct {
	T time.Time
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// OpenWithClock is Open with a controllable clock starting at start.
func OpenWithClock(t *testing.T, start time.Time) (*store.SQLiteStore, *Clock) {
	t.Helper()
	clock := &Clock{T: start}
	return Open(t).WithClock(clock.Now), clock
}

// Content returns a template body that passes structural validation.
func Content(title string) string {
	return "# " + title + "\n\n## Sales Blurb\n\nBuy this.\n\n" + strings.Repeat("Detailed section text. ", 120)
}

// SeedTemplates saves templates with the given ids.
func SeedTemplates(t *testing.T, s *store.SQLiteStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := s.SaveTemplate(context.Background(), &store.Template{ID: id, Topic: "seed", Content: Content(id)})
		if err != nil {
			t.Fatalf("failed to seed template %s: %v", id, err)
		}
	}
}
