package cache

import "time"

// Never is the expiry time of entries that do not expire.
var Never = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Entry is a cached value together with its absolute expiry time. Entries
// are replaced as a whole, never modified in place.
type Entry[T any] struct {
	Value     T         `json:"value" yaml:"value"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// NewEntry builds an entry whose expiry is resolved against now.
func NewEntry[T any](value T, expiry Expiry, now time.Time) Entry[T] {
	return Entry[T]{Value: value, ExpiresAt: expiry.Resolve(now)}
}

// Expired reports whether the entry is no longer valid at now. An entry
// expiring exactly at now is expired.
func (e Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type expiryKind int

const (
	expireNever expiryKind = iota
	expireAfter
	expireAt
)

// Expiry describes when a stored entry stops being valid. The zero value
// never expires.
type Expiry struct {
	kind  expiryKind
	after time.Duration
	at    time.Time
}

// NeverExpire keeps the entry until it is removed or overwritten.
func NeverExpire() Expiry {
	return Expiry{kind: expireNever}
}

// ExpireAfter expires the entry d after it is stored. A d of zero or less
// produces an entry that is already expired.
func ExpireAfter(d time.Duration) Expiry {
	return Expiry{kind: expireAfter, after: d}
}

// ExpireAt expires the entry at the absolute time t.
func ExpireAt(t time.Time) Expiry {
	return Expiry{kind: expireAt, at: t}
}

// Resolve returns the absolute expiry time for an entry stored at now.
func (e Expiry) Resolve(now time.Time) time.Time {
	switch e.kind {
	case expireAfter:
		return now.Add(e.after)
	case expireAt:
		return e.at
	default:
		return Never
	}
}

// String returns a short description of the policy.
func (e Expiry) String() string {
	switch e.kind {
	case expireAfter:
		return "after " + e.after.String()
	case expireAt:
		return "at " + e.at.Format(time.RFC3339)
	default:
		return "never"
	}
}
