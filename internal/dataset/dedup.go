package dataset

import (
	"sync"

	"finsight/internal/textproc"
)

// Deduper remembers the short hash of every text it has seen
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduper creates an empty deduper
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Seen reports whether text was already offered, recording it otherwise
func (d *Deduper) Seen(text string) bool {
	h := textproc.ShortHash(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[h]; ok {
		return true
	}
	d.seen[h] = struct{}{}
	return false
}

// Len returns the number of distinct texts recorded
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
