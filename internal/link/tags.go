package link

import (
	"fmt"
	"sync"
)

// tagMax bounds the cyclic tag space T001..T999.
const tagMax = 999

// tagAllocator hands out correlation tags. The counter wraps back to 1
// and any value still held by an in-flight request is skipped, so a tag
// never identifies two pending requests at once.
type tagAllocator struct {
	mu   sync.Mutex
	last int
}

// allocate returns the next free tag, or "" if every tag is taken.
func (a *tagAllocator) allocate(taken func(string) bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < tagMax; i++ {
		a.last++
		if a.last > tagMax {
			a.last = 1
		}
		tag := fmt.Sprintf("T%03d", a.last)
		if taken == nil || !taken(tag) {
			return tag
		}
	}
	return ""
}
