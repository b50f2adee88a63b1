package cache

import (
	"context"
	"time"

	pkgredis "github.com/srinipal/filesearch/pkg/redis"
	"github.com/srinipal/filesearch/pkg/resilience"
)

type guardedStore struct {
	store   Store
	breaker *resilience.CircuitBreaker
}

// Guard routes every store call through cb, so an unreachable backend costs
// one fast rejection per lookup instead of a network timeout. Absent keys
// count as successful calls.
func Guard(store Store, cb *resilience.CircuitBreaker) Store {
	return &guardedStore{store: store, breaker: cb}
}

func (g *guardedStore) Get(ctx context.Context, key string) (string, error) {
	var absent error
	val, err := resilience.Do(g.breaker, func() (string, error) {
		val, err := g.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			absent = err
			return "", nil
		}
		return val, err
	})
	if err != nil {
		return "", err
	}
	if absent != nil {
		return "", absent
	}
	return val, nil
}

func (g *guardedStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.breaker.Execute(func() error {
		return g.store.Set(ctx, key, value, ttl)
	})
}

func (g *guardedStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return resilience.Do(g.breaker, func() (int64, error) {
		return g.store.FlushByPattern(ctx, pattern)
	})
}
