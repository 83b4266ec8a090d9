package cache

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// Memory tier policies.
const (
	MemoryLRU       = "lru"
	MemoryRistretto = "ristretto"
)

// Config holds configuration for cache instances.
type Config struct {
	// Storage
	Namespace string // Application name used for the default directory
	Directory string // Directory for cache files; derived from Namespace and name when empty

	// Memory tier
	MemoryCapacity int    // Maximum number of entries held in memory
	MemoryPolicy   string // MemoryLRU or MemoryRistretto

	// Disk tier
	Format           string   // Codec format: gob, json or yaml
	CompressionLevel int      // Zstd level (1-22); 0 disables compression
	KeyCodec         KeyCodec // Maps keys to file names; SanitizeKeys when nil
	FileSystem       afero.Fs // OS filesystem when nil

	// Expiry used by Assign; zero means entries never expire
	DefaultTTL time.Duration

	// Observability
	Logger       *log.Logger
	Registerer   prometheus.Registerer
	OnWriteError func(key string, err error)

	// Clock, for tests
	Now func() time.Time
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespace:      "tiercache",
		MemoryCapacity: 1000,
		MemoryPolicy:   MemoryLRU,
		Format:         FormatGob,
	}
}

// Option customizes the typed parts of a cache.
type Option[T any] func(*options[T])

type options[T any] struct {
	memory MemoryStore[T]
	codec  Codec[T]
}

// WithMemoryStore replaces the memory tier chosen by Config.MemoryPolicy.
func WithMemoryStore[T any](m MemoryStore[T]) Option[T] {
	return func(o *options[T]) { o.memory = m }
}

// WithCodec replaces the codec chosen by Config.Format.
func WithCodec[T any](c Codec[T]) Option[T] {
	return func(o *options[T]) { o.codec = c }
}

// DefaultDirectory returns <user cache dir>/<namespace>/<name>.
func DefaultDirectory(namespace, name string) (string, error) {
	scope := gap.NewScope(gap.User, namespace)
	root, err := scope.CacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(root, Sanitize(name)), nil
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = d.MemoryCapacity
	}
	if c.MemoryPolicy == "" {
		c.MemoryPolicy = d.MemoryPolicy
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	if c.KeyCodec == nil {
		c.KeyCodec = SanitizeKeys{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func newMemoryStore[T any](policy string, capacity int) (MemoryStore[T], error) {
	switch policy {
	case MemoryLRU:
		return NewLRU[T](capacity), nil
	case MemoryRistretto:
		return NewRistrettoStore[T](int64(capacity))
	default:
		return nil, fmt.Errorf("unknown memory policy %q", policy)
	}
}
