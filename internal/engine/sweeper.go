package engine

import "time"

// startSweeper launches the active-expiration background task (spec.md
// §4.1 "Active"). It runs every e.sweepInterval, scanning each shard and
// removing entries whose expireAtMillis is in (0, now]. Removal is
// identity-based (delete from the shard map holding that shard's lock) so
// a racing SET that installs a new entry for the same key under a fresh
// expiry is never clobbered by a sweep that observed the old, expired one.
func (e *Engine) startSweeper() {
	go func() {
		defer close(e.sweepDone)
		ticker := time.NewTicker(e.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweepOnce()
			case <-e.stopSweep:
				return
			}
		}
	}()
}

func (e *Engine) sweepOnce() {
	now := nowMillis()
	for _, s := range e.shards {
		s.mu.Lock()
		for key, ent := range s.data {
			if ent.expired(now) {
				delete(s.data, key)
				e.size.Add(-1)
				e.policy.RecordRemove(key)
			}
		}
		s.mu.Unlock()
	}
	// The sweep does not write to DCL: expirations are implicit and
	// reconstructed on replay from each entry's absolute expireAtMillis
	// (spec.md §4.1).
}
