package cache

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tiercache/internal/queue"
)

// DiskOptions configures a DiskStore.
type DiskOptions[T any] struct {
	// FileSystem defaults to the OS filesystem.
	FileSystem FileSystem

	// Codec defaults to GobCodec.
	Codec Codec[T]

	// Logger defaults to log.Default().
	Logger *log.Logger

	// OnWriteError is called for every write that fails to encode or to
	// reach the disk.
	OnWriteError func(id string, err error)
}

// DiskStore is the persistent tier: one file per entry under a directory.
// Reads are synchronous. Writes and deletes run on a single ordered worker,
// so operations on the same id are applied in call order.
type DiskStore[T any] struct {
	dir   string
	fs    FileSystem
	codec Codec[T]
	queue *queue.Queue

	logger       *log.Logger
	onWriteError func(id string, err error)
	errLimiter   *rate.Limiter

	writes      atomic.Int64
	writeErrors atomic.Int64
	corrupt     atomic.Int64
}

// NewDiskStore creates dir (with parents) and starts the store's worker.
func NewDiskStore[T any](dir string, opts DiskOptions[T]) (*DiskStore[T], error) {
	if opts.FileSystem == nil {
		opts.FileSystem = NewFileSystem(nil)
	}
	if opts.Codec == nil {
		opts.Codec = GobCodec[T]{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	if err := opts.FileSystem.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCreateDirectory, dir, err)
	}

	return &DiskStore[T]{
		dir:          dir,
		fs:           opts.FileSystem,
		codec:        opts.Codec,
		queue:        queue.New(opts.Logger),
		logger:       opts.Logger,
		onWriteError: opts.OnWriteError,
		// At most one write-failure log line per second, with a small burst.
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Dir returns the directory holding the cache files.
func (d *DiskStore[T]) Dir() string {
	return d.dir
}

// Path returns the file that holds the entry for id.
func (d *DiskStore[T]) Path(id string) string {
	return pathFor(d.dir, id)
}

// Read loads the entry for id. Missing, unreadable and undecodable files
// are all reported as absent.
func (d *DiskStore[T]) Read(id string) (Entry[T], bool) {
	path := d.Path(id)
	if !d.fs.Exists(path) {
		return Entry[T]{}, false
	}

	data, err := d.fs.ReadFile(path)
	if err != nil {
		d.logger.Debug("cache file unreadable", "key", id, "err", err)
		return Entry[T]{}, false
	}

	e, err := d.codec.Decode(data)
	if err != nil {
		d.corrupt.Add(1)
		d.logger.Debug("skipping corrupt cache file", "key", id, "err", err)
		return Entry[T]{}, false
	}
	return e, true
}

// Write persists e for id in the background. done, if not nil, receives the
// result on the worker goroutine once the file is in place.
func (d *DiskStore[T]) Write(id string, e Entry[T], done func(error)) {
	// Encode now so later changes to the value by the caller are not
	// persisted.
	data, err := d.codec.Encode(e)
	if err != nil {
		d.reportWriteError(id, fmt.Errorf("encode: %w", err))
		finish(done, err)
		return
	}

	err = d.queue.Submit(func() {
		err := d.fs.WriteFileAtomic(d.Path(id), data)
		if err != nil {
			d.reportWriteError(id, err)
		} else {
			d.writes.Add(1)
		}
		finish(done, err)
	})
	if err != nil {
		finish(done, ErrClosed)
	}
}

// Delete removes the file for id in the background. A missing file is not
// an error. done, if not nil, runs after the delete was attempted.
func (d *DiskStore[T]) Delete(id string, done func()) {
	err := d.queue.Submit(func() {
		d.remove(id)
		if done != nil {
			done()
		}
	})
	if err != nil && done != nil {
		done()
	}
}

// DeleteAll removes every cache file in the background and then calls done.
func (d *DiskStore[T]) DeleteAll(done func()) {
	err := d.queue.Submit(func() {
		for id := range d.Keys() {
			d.remove(id)
		}
		if done != nil {
			done()
		}
	})
	if err != nil && done != nil {
		done()
	}
}

// Keys returns the ids of the entries on disk at the time of the call.
func (d *DiskStore[T]) Keys() iter.Seq[string] {
	names, err := d.fs.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn("failed to list cache directory", "dir", d.dir, "err", err)
	}

	return func(yield func(string) bool) {
		for _, name := range names {
			id, ok := IDFromPath(name)
			if !ok {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// Usage returns the bytes used by the cache directory.
func (d *DiskStore[T]) Usage() int64 {
	n, err := d.fs.Usage(d.dir)
	if err != nil {
		d.logger.Debug("failed to measure cache directory", "dir", d.dir, "err", err)
	}
	return n
}

// Submit runs task on the store's ordered worker.
func (d *DiskStore[T]) Submit(task func()) error {
	if err := d.queue.Submit(task); err != nil {
		return ErrClosed
	}
	return nil
}

// Flush waits until all queued disk work has finished.
func (d *DiskStore[T]) Flush(ctx context.Context) error {
	return d.queue.Wait(ctx)
}

// Pending returns the number of queued disk operations.
func (d *DiskStore[T]) Pending() int {
	return d.queue.Size()
}

// Close finishes queued work and stops the worker.
func (d *DiskStore[T]) Close() error {
	return d.queue.Close()
}

func (d *DiskStore[T]) remove(id string) {
	if err := d.fs.Remove(d.Path(id)); err != nil {
		d.logger.Debug("failed to remove cache file", "key", id, "err", err)
	}
}

func (d *DiskStore[T]) reportWriteError(id string, err error) {
	d.writeErrors.Add(1)
	if d.onWriteError != nil {
		d.onWriteError(id, err)
	}
	if d.errLimiter.Allow() {
		d.logger.Warn("failed to persist cache entry", "key", id, "err", err)
	}
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
