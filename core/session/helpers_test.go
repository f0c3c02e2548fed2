package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trezcool/masomo-portal/core/user"
)

var errStorageDown = errors.New("storage down")

type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	failGet error
	failSet error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return "", s.failGet
	}
	v, ok := s.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

type fakeNotifier struct {
	mu        sync.Mutex
	published []Invalidation
}

func (n *fakeNotifier) Publish(_ context.Context, ev Invalidation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, ev)
	return nil
}

func (n *fakeNotifier) Subscribe(context.Context, string) (Subscription, error) {
	return nil, errors.New("not implemented")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard(tab, shared Store, clk *clock) *Guard {
	return NewGuard(tab, shared, Options{DualWriteLegacy: true, NowFunc: clk.Now})
}

func testUser(role string) user.User {
	return user.User{
		ID:       "7b1c3f9e-" + role,
		SchoolID: "c0ffee00-0000-4000-8000-000000000001",
		Name:     "Test " + role,
		Email:    role + "@riverside.test",
		Role:     role,
		IsActive: true,
	}
}
