package engine

// processedSet is a bounded set of news event ids the engine has already
// acted on. Once the set exceeds maxEntries it is trimmed, oldest first,
// down to trimTo entries, bounding memory while keeping recent dedup
// coverage. It is only touched from the news loop, so it carries no lock.
type processedSet struct {
	ids        map[int64]struct{}
	order      []int64
	maxEntries int
	trimTo     int
}

// newProcessedSet creates a processed set with the default bounds.
func newProcessedSet() *processedSet {
	return newProcessedSetWithBounds(1000, 500)
}

func newProcessedSetWithBounds(maxEntries, trimTo int) *processedSet {
	return &processedSet{
		ids:        make(map[int64]struct{}),
		order:      make([]int64, 0, maxEntries),
		maxEntries: maxEntries,
		trimTo:     trimTo,
	}
}

// Contains reports whether the id has already been acted on.
func (p *processedSet) Contains(id int64) bool {
	_, ok := p.ids[id]
	return ok
}

// Add marks an id as acted on. Adding an existing id is a no-op.
func (p *processedSet) Add(id int64) {
	if p.Contains(id) {
		return
	}
	p.ids[id] = struct{}{}
	p.order = append(p.order, id)

	if len(p.order) > p.maxEntries {
		evict := p.order[:len(p.order)-p.trimTo]
		for _, old := range evict {
			delete(p.ids, old)
		}
		kept := make([]int64, p.trimTo)
		copy(kept, p.order[len(p.order)-p.trimTo:])
		p.order = kept
	}
}

// Len returns the number of tracked ids.
func (p *processedSet) Len() int {
	return len(p.order)
}
