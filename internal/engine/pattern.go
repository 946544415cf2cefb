package engine

import (
	"regexp"
	"strings"
)

// compilePattern turns a glob pattern using '*' as the only wildcard into
// an anchored regular expression, per spec.md §4.1 "Pattern matching
// (KEYS)": split on '*', escape each literal segment, join with ".*", and
// anchor both ends. An empty pattern is treated as "*".
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = "*"
	}
	segments := strings.Split(pattern, "*")
	for i, seg := range segments {
		segments[i] = regexp.QuoteMeta(seg)
	}
	return regexp.Compile("^" + strings.Join(segments, ".*") + "$")
}
