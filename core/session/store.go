package session

import (
	"context"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Store.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// Store is one key-value storage tier.
// Remove must not fail on absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Prefixed returns a view of store where every key is namespaced by prefix.
func Prefixed(store Store, prefix string) Store {
	return prefixedStore{store: store, prefix: prefix}
}

type prefixedStore struct {
	store  Store
	prefix string
}

func (ps prefixedStore) Get(ctx context.Context, key string) (string, error) {
	return ps.store.Get(ctx, ps.prefix+key)
}

func (ps prefixedStore) Set(ctx context.Context, key, value string) error {
	return ps.store.Set(ctx, ps.prefix+key, value)
}

func (ps prefixedStore) Remove(ctx context.Context, key string) error {
	return ps.store.Remove(ctx, ps.prefix+key)
}

func isNotFound(err error) bool {
	return errors.Cause(err) == ErrKeyNotFound
}
