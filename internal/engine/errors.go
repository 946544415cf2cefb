package engine

import "github.com/cockroachdb/errors"

// ErrNotInteger is returned by INCR/DECR when the existing value is
// present but does not parse as a signed 64-bit integer (spec.md §7).
var ErrNotInteger = errors.New("value is not an integer")
