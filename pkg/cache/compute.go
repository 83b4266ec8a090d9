package cache

import "context"

// Producer computes a value for a missing key together with the expiry to
// store it with.
type Producer[T any] func(ctx context.Context) (T, Expiry, error)

// Result is the outcome of GetOrComputeAsync.
type Result[T any] struct {
	Value  T
	Cached bool // true when the value came from the cache
	Err    error
}

// GetOrCompute returns the cached value for key. On a miss it calls produce,
// stores the value it returns and returns it with cached set to false. A
// producer error is returned as a *ProducerError and nothing is stored.
//
// Concurrent calls for the same missing key each call produce; callers that
// need a single in-flight computation must coordinate themselves.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, produce Producer[T]) (value T, cached bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	c.counters.producerCalls.Add(1)
	v, expiry, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, false, &ProducerError{Key: key, Err: err}
	}

	c.Set(key, v, expiry)
	return v, false, nil
}

// GetOrComputeAsync runs GetOrCompute in a new goroutine. The returned
// channel receives exactly one Result.
func (c *Cache[T]) GetOrComputeAsync(ctx context.Context, key string, produce Producer[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		v, cached, err := c.GetOrCompute(ctx, key, produce)
		out <- Result[T]{Value: v, Cached: cached, Err: err}
	}()
	return out
}
