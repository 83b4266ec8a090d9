package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

// fileExt is the extension of every persisted entry.
const fileExt = ".cache"

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Sanitize replaces every run of characters outside [A-Za-z0-9_] with a
// single "-". It is deterministic and idempotent.
func Sanitize(key string) string {
	return unsafeRun.ReplaceAllString(key, "-")
}

// KeyCodec maps cache keys to the identifiers used by both tiers and as
// file names on disk.
type KeyCodec interface {
	Encode(key string) string
}

// SanitizeKeys identifies entries by their sanitized key. Keys that differ
// only in unsafe characters ("a/b", "a b") share one entry.
type SanitizeKeys struct{}

// Encode returns Sanitize(key).
func (SanitizeKeys) Encode(key string) string {
	return Sanitize(key)
}

// HashKeys identifies entries by the SHA-256 of the key, so distinct keys
// never share an entry. File names are no longer human readable.
type HashKeys struct{}

// Encode returns the hex SHA-256 of key.
func (HashKeys) Encode(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// pathFor returns the file holding the entry for id.
func pathFor(dir, id string) string {
	return filepath.Join(dir, id+fileExt)
}

// IDFromPath recovers the identifier from a cache file path or name. The
// boolean is false for files that are not cache entries.
func IDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(name, fileExt), true
}
