// Package broadcast delivers session invalidations to the other tabs of a browser.
package broadcast

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-portal/core/session"
)

// subscriptionBuffer is the number of pending Invalidations a subscriber may lag behind before events get dropped.
const subscriptionBuffer = 8

// Local fans Invalidations out to the subscribers of this process.
type Local struct {
	mu   sync.RWMutex
	subs map[string]map[*localSub]bool // browser id -> subscriptions
}

var _ session.Notifier = (*Local)(nil)

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[*localSub]bool)}
}

// Publish never blocks: subscribers that are not keeping up miss the event.
func (l *Local) Publish(_ context.Context, ev session.Invalidation) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for sub := range l.subs[ev.Browser] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe returns a Subscription closed on Close or when ctx is done.
func (l *Local) Subscribe(ctx context.Context, browser string) (session.Subscription, error) {
	sub := &localSub{
		hub:     l,
		browser: browser,
		ch:      make(chan session.Invalidation, subscriptionBuffer),
		done:    make(chan struct{}),
	}

	l.mu.Lock()
	if l.subs[browser] == nil {
		l.subs[browser] = make(map[*localSub]bool)
	}
	l.subs[browser][sub] = true
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscriptions of a browser.
func (l *Local) Subscribers(browser string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[browser])
}

func (l *Local) remove(sub *localSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.subs[sub.browser]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(l.subs, sub.browser)
	}
	close(sub.ch)
}

type localSub struct {
	hub     *Local
	browser string
	ch      chan session.Invalidation
	done    chan struct{}
	once    sync.Once
}

func (s *localSub) C() <-chan session.Invalidation { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
	return nil
}
