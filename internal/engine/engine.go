// Package engine implements the Key-Value Engine (KVE): the concurrent
// map from string keys to (value, expiry) entries, the counters, the
// active-expiration sweeper, and the dispatcher that keeps the map, the
// eviction policy, and the durable command log in agreement (spec.md
// §3-4.1).
package engine

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Krishna8167/atomkv/internal/eviction"
)

const numShards = 32

// DCL is the durable-command-log capability the engine couples against. It
// is declared here, not in package aof, so that engine has no import-time
// dependency on the log's implementation — aof.Log satisfies this
// interface structurally.
type DCL interface {
	Enqueue(verb string, args ...string)
}

// noopDCL is used when durability is disabled.
type noopDCL struct{}

func (noopDCL) Enqueue(string, ...string) {}

type shard struct {
	mu   sync.RWMutex
	data map[string]*entry
}

// Engine is the concurrent key-value store described by spec.md §3-4.1.
type Engine struct {
	shards   [numShards]*shard
	capacity int
	policy   eviction.Policy
	dcl      DCL
	log      *logrus.Entry

	size   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// New constructs an Engine. dcl may be nil, in which case durability is
// disabled and mutating operations simply skip the enqueue step (I3 is
// vacuous when DCL is disabled, per spec.md §3).
func New(capacity int, policy eviction.Policy, dcl DCL, log *logrus.Entry, sweepInterval time.Duration) *Engine {
	if dcl == nil {
		dcl = noopDCL{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	e := &Engine{
		capacity:      capacity,
		policy:        policy,
		dcl:           dcl,
		log:           log,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for i := range e.shards {
		e.shards[i] = &shard{data: make(map[string]*entry)}
	}
	e.startSweeper()
	return e
}

func (e *Engine) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return e.shards[h.Sum32()%numShards]
}

// Size returns the current number of entries stored across all shards,
// including expired entries that have not yet been removed. It is an
// approximation during a concurrent mutation (no global
// lock is held), matching spec.md §5's "no global order across unrelated
// keys is guaranteed in observation".
func (e *Engine) Size() int64 {
	return e.size.Load()
}

// HitsMisses returns a snapshot of the monotonic hit/miss counters.
func (e *Engine) HitsMisses() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

// maybeEvict is called after any operation that may have grown the map. It
// asks the policy for a victim, and if one is nominated, removes it from
// the map and appends a DEL record to DCL — after the triggering
// operation's own DCL record, preserving replay causal order (spec.md
// §4.1 "Eviction coupling").
//
// During replay (logReplay) this is a complete no-op: it neither mutates
// the map nor consults the policy. Replay-time LRU state never saw the
// GETs that shaped live eviction order, so re-deriving eviction decisions
// from it would nominate the wrong victim (spec.md §8 P5). Every eviction
// that actually happened live is already present later in the log as its
// own explicit DEL record, which ApplyReplay's "DEL" case applies
// directly — replay must rely on that record alone.
func (e *Engine) maybeEvict(mode logMode) {
	if mode == logReplay {
		return
	}
	if e.Size() <= int64(e.capacity) {
		return
	}
	victim, ok := e.policy.EvictIfNeeded(int(e.Size()))
	if !ok {
		return
	}
	s := e.shardFor(victim)
	s.mu.Lock()
	_, existed := s.data[victim]
	delete(s.data, victim)
	s.mu.Unlock()
	if existed {
		e.size.Add(-1)
		e.dcl.Enqueue("DEL", victim)
		e.log.WithField("key", victim).Debug("evicted LRU victim")
	}
}

// Close stops the background sweeper. It does not close the DCL; callers
// own that lifecycle separately (spec.md §5 shutdown sequence).
func (e *Engine) Close() {
	close(e.stopSweep)
	<-e.sweepDone
}
