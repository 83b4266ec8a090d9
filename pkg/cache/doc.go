// Package cache provides a generic two-level cache: a capacity-bounded
// in-memory tier (L1) in front of a persistent file-per-key disk tier (L2).
//
// Reads check memory first and fall back to a synchronous disk read, promoting
// disk hits into memory. Writes update memory immediately and persist to disk
// on a single ordered background worker per cache. Every entry carries an
// absolute expiry time; expired entries found by a read or a sweep are
// removed from both tiers. GetOrCompute layers the "return cached value or
// produce, store and return it" pattern on top.
package cache
