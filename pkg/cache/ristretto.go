package cache

import (
	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoStore is a memory tier backed by ristretto's TinyLFU admission
// and sampled LFU eviction. Every entry has a cost of one and ristretto's
// internal per-item cost is ignored, so maxItems bounds the entry count.
type RistrettoStore[T any] struct {
	rc *ristretto.Cache[string, Entry[T]]
}

// NewRistrettoStore creates a ristretto-backed store.
func NewRistrettoStore[T any](maxItems int64) (*RistrettoStore[T], error) {
	if maxItems < 1 {
		maxItems = 1
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry[T]]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// Without this ristretto charges its own bookkeeping to every item
		// and a MaxCost of maxItems holds almost nothing.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoStore[T]{rc: rc}, nil
}

func (r *RistrettoStore[T]) Get(id string) (Entry[T], bool) {
	return r.rc.Get(id)
}

// Set stores e and waits for ristretto's write buffer so the entry is
// visible to the next Get. Ristretto may still decline to admit it.
func (r *RistrettoStore[T]) Set(id string, e Entry[T]) {
	r.rc.Set(id, e, 1)
	r.rc.Wait()
}

func (r *RistrettoStore[T]) Remove(id string) {
	r.rc.Del(id)
}

func (r *RistrettoStore[T]) RemoveAll() {
	r.rc.Clear()
}

// Close stops ristretto's background goroutines.
func (r *RistrettoStore[T]) Close() {
	r.rc.Close()
}
