package sync

import "sync"

// budget enforces the success limit across concurrent items. An item may
// start only while completed successes plus in-flight items are below the
// limit, so the limit can never be overshot.
type budget struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	success  int
	inflight int
}

func newBudget(limit int) *budget {
	b := &budget{limit: limit}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// acquire blocks until an item may start. It returns false once the limit
// has been met.
func (b *budget) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.limit > 0 && b.success >= b.limit {
			return false
		}
		if b.limit <= 0 || b.success+b.inflight < b.limit {
			b.inflight++
			return true
		}
		b.cond.Wait()
	}
}

// release ends an item started by acquire.
func (b *budget) release(wrote bool) {
	b.mu.Lock()
	b.inflight--
	if wrote {
		b.success++
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// met reports whether the limit has been reached.
func (b *budget) met() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.success >= b.limit
}

// pageSize returns max(batch, 2 x remaining need).
func (b *budget) pageSize(batch int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return batch
	}
	need := b.limit - b.success - b.inflight
	if 2*need > batch {
		return 2 * need
	}
	return batch
}
