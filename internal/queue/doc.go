// Package queue runs background work for a cache instance on a single
// worker goroutine. Tasks execute strictly in submission order, which gives
// per-key read-after-write ordering for disk operations without per-key
// locks.
package queue
