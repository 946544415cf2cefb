package engine

import "time"

// NoExpiry is the sentinel expireAtMillis value meaning "no expiration"
// (spec.md §3: "sentinel -1 means 'no expiration'").
const NoExpiry int64 = -1

// entry represents one stored key: an opaque byte string value plus an
// absolute expiration deadline in epoch milliseconds. All changes happen
// under the owning shard's lock: SET installs a new entry, while
// APPEND/INCR/DECR/EXPIRE/PERSIST update the existing entry's fields. value
// is always replaced by a freshly allocated slice and a stored slice is
// never modified, so readers observe either the old or the new value,
// never a torn read.
type entry struct {
	value          []byte
	expireAtMillis int64
}

func newEntry(value []byte, expireAtMillis int64) *entry {
	return &entry{value: value, expireAtMillis: expireAtMillis}
}

// expired reports whether e has an active TTL that has elapsed as of now.
func (e *entry) expired(nowMillis int64) bool {
	return e.expireAtMillis != NoExpiry && e.expireAtMillis <= nowMillis
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
