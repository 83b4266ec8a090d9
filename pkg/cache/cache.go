package cache

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Cache is a two-level cache for values of type T. Memory is checked first,
// then disk; writes reach memory immediately and disk in the background.
//
// Use one Cache per directory per process. Instances never coordinate with
// each other.
type Cache[T any] struct {
	name string

	// Cache levels
	mem  MemoryStore[T]
	disk *DiskStore[T]

	keys       KeyCodec
	now        func() time.Time
	defaultTTL time.Duration
	logger     *log.Logger
	counters   counters

	// mu guards the promotion bookkeeping below and orders memory-tier
	// mutations against promotions.
	mu       sync.Mutex
	seq      uint64         // bumped on every mutation
	pending  map[string]int // disk operations in flight per id
	clearing int            // RemoveAll calls in flight

	closeOnce sync.Once
}

// New creates a cache named name. A nil cfg uses DefaultConfig. The cache
// directory is created with its parents; failure returns an error wrapping
// ErrCreateDirectory.
func New[T any](name string, cfg *Config, opts ...Option[T]) (*Cache[T], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conf := cfg.withDefaults()

	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	logger := conf.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("tiercache")
	}
	logger = logger.With("cache", name)

	dir := conf.Directory
	if dir == "" {
		var err error
		if dir, err = DefaultDirectory(conf.Namespace, name); err != nil {
			return nil, err
		}
	}

	if o.codec == nil {
		codec, err := NewCodec[T](conf.Format, conf.CompressionLevel)
		if err != nil {
			return nil, err
		}
		o.codec = codec
	}

	disk, err := NewDiskStore(dir, DiskOptions[T]{
		FileSystem:   NewFileSystem(conf.FileSystem),
		Codec:        o.codec,
		Logger:       logger,
		OnWriteError: conf.OnWriteError,
	})
	if err != nil {
		return nil, err
	}

	if o.memory == nil {
		mem, err := newMemoryStore[T](conf.MemoryPolicy, conf.MemoryCapacity)
		if err != nil {
			_ = disk.Close()
			return nil, err
		}
		o.memory = mem
	}

	c := &Cache[T]{
		name:       name,
		mem:        o.memory,
		disk:       disk,
		keys:       conf.KeyCodec,
		now:        conf.Now,
		defaultTTL: conf.DefaultTTL,
		logger:     logger,
		pending:    make(map[string]int),
	}

	if conf.Registerer != nil {
		if err := c.register(conf.Registerer); err != nil {
			_ = disk.Close()
			return nil, err
		}
	}

	logger.Debug("cache ready", "dir", dir, "memory", conf.MemoryPolicy, "format", conf.Format)
	return c, nil
}

// Name returns the cache name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Dir returns the directory holding the cache files.
func (c *Cache[T]) Dir() string {
	return c.disk.Dir()
}

// Path returns the file that holds the entry for key.
func (c *Cache[T]) Path(key string) string {
	return c.disk.Path(c.keys.Encode(key))
}

// Get returns the value for key. A disk hit is promoted into memory. An
// expired entry is purged from both tiers and reported as absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	e, ok := c.lookup(c.keys.Encode(key), true)
	return e.Value, ok
}

// Entry is like Get but returns the entry with its expiry time.
func (c *Cache[T]) Entry(key string) (Entry[T], bool) {
	return c.lookup(c.keys.Encode(key), true)
}

// Set stores value for key. Memory is updated before Set returns; the disk
// write happens in the background.
func (c *Cache[T]) Set(key string, value T, expiry Expiry) {
	c.store(c.keys.Encode(key), NewEntry(value, expiry, c.now()), nil)
}

// SetNotify is like Set and returns a channel that receives the result of
// the disk write.
func (c *Cache[T]) SetNotify(key string, value T, expiry Expiry) <-chan error {
	done := make(chan error, 1)
	c.store(c.keys.Encode(key), NewEntry(value, expiry, c.now()), func(err error) {
		done <- err
	})
	return done
}

// Assign sets key to *value using the configured default TTL, or removes
// key when value is nil.
func (c *Cache[T]) Assign(key string, value *T) {
	if value == nil {
		c.Remove(key)
		return
	}
	expiry := NeverExpire()
	if c.defaultTTL > 0 {
		expiry = ExpireAfter(c.defaultTTL)
	}
	c.Set(key, *value, expiry)
}

// Remove deletes key from memory and, in the background, from disk.
func (c *Cache[T]) Remove(key string) {
	id := c.keys.Encode(key)

	c.mu.Lock()
	c.seq++
	c.pending[id]++
	c.mem.Remove(id)
	c.mu.Unlock()

	c.disk.Delete(id, func() { c.settle(id) })
}

// RemoveAll clears memory and deletes every file on disk. The returned
// channel is closed once all deletions have been issued.
func (c *Cache[T]) RemoveAll() <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	c.seq++
	c.clearing++
	c.mem.RemoveAll()
	c.mu.Unlock()

	c.disk.DeleteAll(func() {
		c.mu.Lock()
		c.clearing--
		c.mu.Unlock()
		close(done)
	})
	return done
}

// SweepExpired purges every expired entry on disk. It runs on the disk
// worker and returns immediately.
func (c *Cache[T]) SweepExpired() {
	err := c.disk.Submit(func() {
		for id := range c.disk.Keys() {
			c.lookup(id, false)
		}
	})
	if err != nil {
		c.logger.Debug("sweep skipped", "err", err)
	}
}

// Keys returns the identifiers of the entries currently on disk.
func (c *Cache[T]) Keys() iter.Seq[string] {
	return c.disk.Keys()
}

// All yields every valid persisted entry by identifier. Expired entries are
// purged as they are found. Entries are not promoted into memory.
func (c *Cache[T]) All() iter.Seq2[string, Entry[T]] {
	return func(yield func(string, Entry[T]) bool) {
		for id := range c.disk.Keys() {
			e, ok := c.lookup(id, false)
			if !ok {
				continue
			}
			if !yield(id, e) {
				return
			}
		}
	}
}

// Flush waits until all background disk work has finished.
func (c *Cache[T]) Flush(ctx context.Context) error {
	return c.disk.Flush(ctx)
}

// Close finishes background disk work, stops the worker and releases the
// memory tier. The cache must not be used afterwards.
func (c *Cache[T]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.disk.Close()
		if closer, ok := c.mem.(interface{ Close() }); ok {
			closer.Close()
		}
	})
	return err
}

// lookup finds the entry for id in memory, then on disk. Disk hits are
// copied into memory when promote is set.
func (c *Cache[T]) lookup(id string, promote bool) (Entry[T], bool) {
	if e, ok := c.mem.Get(id); ok {
		if e.Expired(c.now()) {
			c.purge(id)
			return Entry[T]{}, false
		}
		c.counters.memoryHits.Add(1)
		return e, true
	}

	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()

	e, ok := c.disk.Read(id)
	if !ok {
		c.counters.misses.Add(1)
		return Entry[T]{}, false
	}
	if e.Expired(c.now()) {
		c.purge(id)
		return Entry[T]{}, false
	}

	c.counters.diskHits.Add(1)
	if promote {
		c.promote(id, e, seq)
	}
	return e, true
}

// promote installs a disk hit into memory unless the id was mutated since
// the read began, so memory never resurrects a value that was already
// replaced or removed.
func (c *Cache[T]) promote(id string, e Entry[T], seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seq != seq || c.pending[id] > 0 || c.clearing > 0 {
		return
	}
	c.mem.Set(id, e)
	c.counters.promotions.Add(1)
}

// purge removes an expired entry from both tiers. Memory is only cleared if
// it does not hold a valid entry, and the disk file is re-checked on the
// worker, so a concurrent Set for the same id is never lost.
func (c *Cache[T]) purge(id string) {
	c.counters.expirations.Add(1)
	c.counters.misses.Add(1)

	c.mu.Lock()
	if e, ok := c.mem.Get(id); ok && e.Expired(c.now()) {
		c.mem.Remove(id)
	}
	c.mu.Unlock()

	err := c.disk.Submit(func() {
		if e, ok := c.disk.Read(id); ok && e.Expired(c.now()) {
			c.disk.remove(id)
		}
	})
	if err != nil {
		c.logger.Debug("expired entry left on disk", "key", id, "err", err)
	}
}

// store installs e in memory and queues the disk write.
func (c *Cache[T]) store(id string, e Entry[T], done func(error)) {
	c.mu.Lock()
	c.seq++
	c.pending[id]++
	c.mem.Set(id, e)
	c.mu.Unlock()

	c.disk.Write(id, e, func(err error) {
		c.settle(id)
		if done != nil {
			done(err)
		}
	})
}

// settle records that a disk operation for id has finished.
func (c *Cache[T]) settle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[id]--; c.pending[id] <= 0 {
		delete(c.pending, id)
	}
}
