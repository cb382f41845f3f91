package splits

import "sync"

// invalidationBacklog remembers payments whose cache entry could not be evicted
// after a status change. Entries are retried before the next cache read.
type invalidationBacklog struct {
	mu      sync.Mutex
	limit   int
	order   []string
	pending map[string]struct{}
}

func newInvalidationBacklog(limit int) *invalidationBacklog {
	if limit <= 0 {
		limit = defaultBacklogSize
	}
	return &invalidationBacklog{limit: limit, pending: make(map[string]struct{})}
}

// add queues hash and returns the entry evicted to make room, if any.
func (b *invalidationBacklog) add(hash string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[hash]; ok {
		return "", false
	}
	var dropped string
	var didDrop bool
	if len(b.order) >= b.limit {
		dropped = b.order[0]
		b.order = b.order[1:]
		delete(b.pending, dropped)
		didDrop = true
	}
	b.order = append(b.order, hash)
	b.pending[hash] = struct{}{}
	return dropped, didDrop
}

func (b *invalidationBacklog) contains(hash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[hash]
	return ok
}

func (b *invalidationBacklog) items() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (b *invalidationBacklog) remove(hashes []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, hash := range hashes {
		delete(b.pending, hash)
	}
	kept := b.order[:0]
	for _, hash := range b.order {
		if _, ok := b.pending[hash]; ok {
			kept = append(kept, hash)
		}
	}
	b.order = kept
}

func (b *invalidationBacklog) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
