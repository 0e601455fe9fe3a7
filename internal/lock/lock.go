// Package lock serializes writers that act on the same A/B test or template.
// A scheduled sweep and a manually triggered one take the same key before
// their read-decide-write sequence.
package lock

import (
	"context"
	"strconv"
	"sync"
)

// Locker hands out exclusive ownership of a key until the returned release
// function is called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker. It is enough when a single process owns the
// database.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// TestKey is the lock key for writes to one A/B test.
func TestKey(testID int64) string {
	return "abtest:" + strconv.FormatInt(testID, 10)
}

// TemplateKey is the lock key for writes that derive from one template.
func TemplateKey(templateID string) string {
	return "template:" + templateID
}
