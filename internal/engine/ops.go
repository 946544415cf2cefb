package engine

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// logMode controls whether a given internal mutation enqueues its own DCL
// record and/or permits an eviction DEL record. Three call sites need
// three different answers:
//   - logFull: a standalone public op (SET, DEL, ...) — log both itself
//     and any eviction it triggers.
//   - logSuppressSelf: one pair inside an MSET — the combined MSET record
//     already covers it, but an eviction it triggers is still live
//     activity and must still be logged.
//   - logReplay: applying a record read back from the AOF during startup
//     replay — must never write to DCL at all (spec.md §4.3: "replay mode
//     ... must not re-enqueue to DCL", the bug spec.md §9 calls out to fix).
type logMode int

const (
	logFull logMode = iota
	logSuppressSelf
	logReplay
)

func (m logMode) logSelf() bool { return m == logFull }

// GET returns the value for key and whether it was found and live. A
// present-but-expired key is lazily removed and reported as absent
// (spec.md §4.1 "Lazy").
func (e *Engine) GET(key string) ([]byte, bool) {
	s := e.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.data[key]
	if !ok {
		e.misses.Add(1)
		return nil, false
	}
	if ent.expired(nowMillis()) {
		delete(s.data, key)
		e.size.Add(-1)
		e.policy.RecordRemove(key)
		e.misses.Add(1)
		return nil, false
	}
	e.policy.RecordAccess(key)
	e.hits.Add(1)
	return ent.value, true
}

// SET replaces key's value, with ttlMillis <= 0 meaning no expiration.
func (e *Engine) SET(key string, value []byte, ttlMillis int64) {
	e.setInternal(key, value, ttlMillis, logFull)
}

func (e *Engine) setInternal(key string, value []byte, ttlMillis int64, mode logMode) {
	exp := NoExpiry
	if ttlMillis > 0 {
		exp = nowMillis() + ttlMillis
	}

	s := e.shardFor(key)
	s.mu.Lock()
	_, existed := s.data[key]
	s.data[key] = newEntry(value, exp)
	s.mu.Unlock()

	if !existed {
		e.size.Add(1)
	}
	e.policy.RecordPut(key)

	if mode.logSelf() {
		if ttlMillis > 0 {
			e.dcl.Enqueue("SET", key, string(value), "PX", strconv.FormatInt(ttlMillis, 10))
		} else {
			e.dcl.Enqueue("SET", key, string(value))
		}
	}
	e.maybeEvict(mode)
}

// DEL removes key, reporting true iff a live key was removed.
func (e *Engine) DEL(key string) bool {
	return e.delInternal(key, logFull)
}

func (e *Engine) delInternal(key string, mode logMode) bool {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, existed := s.data[key]
	live := existed && !ent.expired(nowMillis())
	if existed {
		delete(s.data, key)
	}
	s.mu.Unlock()

	if !existed {
		return false
	}
	e.size.Add(-1)
	e.policy.RecordRemove(key)
	if !live {
		return false
	}
	if mode.logSelf() {
		e.dcl.Enqueue("DEL", key)
	}
	return true
}

// EXISTS reports whether key is present and live, lazily expiring it if not.
func (e *Engine) EXISTS(key string) bool {
	s := e.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.data[key]
	if !ok {
		return false
	}
	if ent.expired(nowMillis()) {
		delete(s.data, key)
		e.size.Add(-1)
		e.policy.RecordRemove(key)
		return false
	}
	return true
}

// TTL returns milliseconds remaining, NoExpiry (-1) if the key has no TTL,
// or -2 if the key is missing or expired. It has no side effects.
func (e *Engine) TTL(key string) int64 {
	s := e.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.data[key]
	if !ok {
		return -2
	}
	now := nowMillis()
	if ent.expired(now) {
		return -2
	}
	if ent.expireAtMillis == NoExpiry {
		return -1
	}
	return ent.expireAtMillis - now
}

// PERSIST clears key's TTL, returning true iff a TTL was actually cleared
// on a live key.
func (e *Engine) PERSIST(key string) bool {
	return e.persistInternal(key, logFull)
}

func (e *Engine) persistInternal(key string, mode logMode) bool {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, ok := s.data[key]
	if !ok || ent.expired(nowMillis()) || ent.expireAtMillis == NoExpiry {
		s.mu.Unlock()
		return false
	}
	ent.expireAtMillis = NoExpiry
	s.mu.Unlock()

	if mode.logSelf() {
		e.dcl.Enqueue("PERSIST", key)
	}
	return true
}

// EXPIRE sets key's TTL to seconds from now, returning 1 if set or 0 if
// the key is missing or already expired.
func (e *Engine) EXPIRE(key string, seconds int64) int {
	return e.expireInternal(key, seconds, logFull)
}

func (e *Engine) expireInternal(key string, seconds int64, mode logMode) int {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, ok := s.data[key]
	if !ok || ent.expired(nowMillis()) {
		s.mu.Unlock()
		return 0
	}
	ent.expireAtMillis = nowMillis() + seconds*1000
	s.mu.Unlock()

	if mode.logSelf() {
		e.dcl.Enqueue("EXPIRE", key, strconv.FormatInt(seconds, 10))
	}
	return 1
}

// APPEND concatenates suffix onto key's existing value (or sets it, if
// missing/expired), returning the new length in bytes.
func (e *Engine) APPEND(key string, suffix []byte) int {
	return e.appendInternal(key, suffix, logFull)
}

func (e *Engine) appendInternal(key string, suffix []byte, mode logMode) int {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, ok := s.data[key]
	missing := !ok || ent.expired(nowMillis())

	var newVal []byte
	if missing {
		newVal = append([]byte(nil), suffix...)
		s.data[key] = newEntry(newVal, NoExpiry)
	} else {
		newVal = append(append([]byte(nil), ent.value...), suffix...)
		ent.value = newVal
	}
	s.mu.Unlock()

	if !ok {
		e.size.Add(1)
	}
	e.policy.RecordPut(key)
	if mode.logSelf() {
		e.dcl.Enqueue("APPEND", key, string(suffix))
	}
	e.maybeEvict(mode)
	return len(newVal)
}

// INCR increments key's integer value by 1, defaulting a missing/expired
// key to 1. DECR is the mirror, defaulting to -1. ErrNotInteger is
// returned if the existing value does not parse as a signed 64-bit
// integer.
func (e *Engine) INCR(key string) (int64, error) { return e.incrInternal(key, 1, logFull) }
func (e *Engine) DECR(key string) (int64, error) { return e.incrInternal(key, -1, logFull) }

func (e *Engine) incrInternal(key string, delta int64, mode logMode) (int64, error) {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, ok := s.data[key]
	missing := !ok || ent.expired(nowMillis())

	var newN int64
	if missing {
		newN = delta
		s.data[key] = newEntry([]byte(strconv.FormatInt(newN, 10)), NoExpiry)
	} else {
		n, err := strconv.ParseInt(strings.TrimSpace(string(ent.value)), 10, 64)
		if err != nil {
			s.mu.Unlock()
			return 0, ErrNotInteger
		}
		newN = n + delta
		ent.value = []byte(strconv.FormatInt(newN, 10))
	}
	s.mu.Unlock()

	if !ok {
		e.size.Add(1)
	}
	e.policy.RecordPut(key)
	if mode.logSelf() {
		verb := "INCR"
		if delta < 0 {
			verb = "DECR"
		}
		e.dcl.Enqueue(verb, key)
	}
	e.maybeEvict(mode)
	return newN, nil
}

// STRLEN returns the byte length of key's value, or 0 if missing/expired.
func (e *Engine) STRLEN(key string) int {
	s := e.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.data[key]
	if !ok || ent.expired(nowMillis()) {
		return 0
	}
	return len(ent.value)
}

// TYPE classifies key as "none", "string", "number", or "ttl_key",
// lazily expiring it first (spec.md §4.1). The value is re-parsed on
// every call; acceptable since TYPE is rare.
func (e *Engine) TYPE(key string) string {
	s := e.shardFor(key)
	s.mu.Lock()
	ent, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return "none"
	}
	if ent.expired(nowMillis()) {
		delete(s.data, key)
		s.mu.Unlock()
		e.size.Add(-1)
		e.policy.RecordRemove(key)
		return "none"
	}
	hasTTL := ent.expireAtMillis != NoExpiry
	val := append([]byte(nil), ent.value...)
	s.mu.Unlock()

	if hasTTL {
		return "ttl_key"
	}
	if isNumeric(val) {
		return "number"
	}
	return "string"
}

func isNumeric(v []byte) bool {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

// Keys returns all live keys matching pattern (spec.md §4.1 "Pattern
// matching"). The map is iterated without snapshotting, so a concurrent
// SET may or may not be observed — this is documented as undefined in
// spec.md §9 and is preserved here rather than papered over.
func (e *Engine) Keys(pattern string) ([]string, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "compile KEYS pattern")
	}

	now := nowMillis()
	var result []string
	for _, s := range e.shards {
		s.mu.RLock()
		for k, ent := range s.data {
			if ent.expired(now) {
				continue
			}
			if re.MatchString(k) {
				result = append(result, k)
			}
		}
		s.mu.RUnlock()
	}
	return result, nil
}

// DBSize returns the number of currently live (non-expired) keys. This is
// the zero-argument "KEYS()" operation from spec.md's operations table,
// exposed on the wire as DBSIZE (SPEC_FULL.md §12).
func (e *Engine) DBSize() int64 {
	now := nowMillis()
	var count int64
	for _, s := range e.shards {
		s.mu.RLock()
		for _, ent := range s.data {
			if !ent.expired(now) {
				count++
			}
		}
		s.mu.RUnlock()
	}
	return count
}

// MGet returns values aligned to keys, with nil for any key that is
// absent or expired. Each lookup counts toward hits/misses individually,
// same as GET.
func (e *Engine) MGet(keys []string) [][]byte {
	result := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := e.GET(k); ok {
			result[i] = v
		}
	}
	return result
}

// MSet sets every key/value pair in pairs (a flat, even-length list). An
// odd-length list is a silent no-op (spec.md §9 open question, decided in
// SPEC_FULL.md §12). Individual pairs do not produce their own DCL
// records; one combined MSET record covers the whole batch.
func (e *Engine) MSet(pairs []string) {
	e.mSetInternal(pairs, logFull)
}

func (e *Engine) mSetInternal(pairs []string, mode logMode) {
	if len(pairs)%2 != 0 {
		return
	}
	// The combined record goes first so that any eviction DEL a pair
	// triggers is logged after it.
	if mode.logSelf() {
		e.dcl.Enqueue("MSET", pairs...)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		innerMode := logSuppressSelf
		if mode == logReplay {
			innerMode = logReplay
		}
		e.setInternal(pairs[i], []byte(pairs[i+1]), 0, innerMode)
	}
}

// Rename moves src's entry to dst, overwriting dst if present. It returns
// true iff src existed and was live. Cross-key atomicity is not
// guaranteed (spec.md §5).
func (e *Engine) Rename(src, dst string) bool {
	return e.renameInternal(src, dst, logFull)
}

func (e *Engine) renameInternal(src, dst string, mode logMode) bool {
	sSrc := e.shardFor(src)
	sSrc.mu.Lock()
	ent, ok := sSrc.data[src]
	live := ok && !ent.expired(nowMillis())
	if !live {
		sSrc.mu.Unlock()
		return false
	}
	delete(sSrc.data, src)
	sSrc.mu.Unlock()
	e.size.Add(-1)
	e.policy.RecordRemove(src)

	sDst := e.shardFor(dst)
	sDst.mu.Lock()
	_, dstExisted := sDst.data[dst]
	sDst.data[dst] = ent
	sDst.mu.Unlock()
	if !dstExisted {
		e.size.Add(1)
	}
	e.policy.RecordPut(dst)

	if mode.logSelf() {
		e.dcl.Enqueue("RENAME", src, dst)
	}
	e.maybeEvict(mode)
	return true
}

// FlushAll clears the entire store and resets eviction tracking.
func (e *Engine) FlushAll() {
	e.flushAllInternal(logFull)
}

func (e *Engine) flushAllInternal(mode logMode) {
	for _, s := range e.shards {
		s.mu.Lock()
		for k := range s.data {
			e.policy.RecordRemove(k)
		}
		s.data = make(map[string]*entry)
		s.mu.Unlock()
	}
	e.size.Store(0)
	if mode.logSelf() {
		e.dcl.Enqueue("FLUSHALL")
	}
}

// Snapshot returns a point-in-time copy of every live key and value, used
// by the HTTP /insights endpoint (spec.md §6). Like Keys, it iterates
// shards without a global lock, so it is not a true atomic snapshot across
// keys.
func (e *Engine) Snapshot() map[string][]byte {
	now := nowMillis()
	out := make(map[string][]byte)
	for _, s := range e.shards {
		s.mu.RLock()
		for k, ent := range s.data {
			if !ent.expired(now) {
				out[k] = append([]byte(nil), ent.value...)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// ApplyReplay dispatches a single AOF record during startup replay
// (spec.md §4.3). It never writes to DCL. Unknown verbs and arity/parse
// errors are returned for the caller to log and skip, per spec.md §7.
func (e *Engine) ApplyReplay(verb string, args []string) error {
	switch strings.ToUpper(verb) {
	case "SET":
		switch {
		case len(args) == 2:
			e.setInternal(args[0], []byte(args[1]), 0, logReplay)
			return nil
		case len(args) == 4 && strings.ToUpper(args[2]) == "PX":
			px, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return errors.Wrap(err, "SET PX argument")
			}
			e.setInternal(args[0], []byte(args[1]), px, logReplay)
			return nil
		default:
			return errors.Newf("SET: wrong number of arguments (%d)", len(args))
		}
	case "DEL":
		if len(args) != 1 {
			return errors.Newf("DEL: wrong number of arguments (%d)", len(args))
		}
		e.delInternal(args[0], logReplay)
		return nil
	case "PERSIST":
		if len(args) != 1 {
			return errors.Newf("PERSIST: wrong number of arguments (%d)", len(args))
		}
		e.persistInternal(args[0], logReplay)
		return nil
	case "APPEND":
		if len(args) != 2 {
			return errors.Newf("APPEND: wrong number of arguments (%d)", len(args))
		}
		e.appendInternal(args[0], []byte(args[1]), logReplay)
		return nil
	case "INCR":
		if len(args) != 1 {
			return errors.Newf("INCR: wrong number of arguments (%d)", len(args))
		}
		_, err := e.incrInternal(args[0], 1, logReplay)
		return err
	case "DECR":
		if len(args) != 1 {
			return errors.Newf("DECR: wrong number of arguments (%d)", len(args))
		}
		_, err := e.incrInternal(args[0], -1, logReplay)
		return err
	case "MSET":
		e.mSetInternal(args, logReplay)
		return nil
	case "EXPIRE":
		if len(args) != 2 {
			return errors.Newf("EXPIRE: wrong number of arguments (%d)", len(args))
		}
		secs, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errors.Wrap(err, "EXPIRE seconds argument")
		}
		e.expireInternal(args[0], secs, logReplay)
		return nil
	case "RENAME":
		if len(args) != 2 {
			return errors.Newf("RENAME: wrong number of arguments (%d)", len(args))
		}
		e.renameInternal(args[0], args[1], logReplay)
		return nil
	case "FLUSHALL":
		e.flushAllInternal(logReplay)
		return nil
	default:
		return errors.Newf("unknown AOF verb %q", verb)
	}
}
