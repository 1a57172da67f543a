package link

import (
	"sync"
	"time"
)

// Server flood-control contract: short delay for the first few packets
// in a window, long delay after that, counter reset when idle.
const (
	rateResetAfter = 120 * time.Second
	shortDelay     = 2 * time.Second
	longDelay      = 6 * time.Second
	shortBurst     = 5
)

// Ban backoff escalation; vars so tests can shrink the sleeps.
var (
	banBase = 2 * time.Hour
	banMax  = 48 * time.Hour
)

// pacer tracks send history and computes the wait before the next
// datagram may go out.
type pacer struct {
	mu       sync.Mutex
	lastSend time.Time
	count    int
}

// delay returns how long to wait before the next send. Idle beyond the
// reset threshold clears the window; otherwise the target delay minus
// time already elapsed, floored at zero.
func (p *pacer) delay(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSend.IsZero() {
		return 0
	}
	age := now.Sub(p.lastSend)
	if age > rateResetAfter {
		p.count = 0
		return 0
	}
	target := shortDelay
	if p.count >= shortBurst {
		target = longDelay
	}
	if d := target - age; d > 0 {
		return d
	}
	return 0
}

func (p *pacer) recordSend(now time.Time) {
	p.mu.Lock()
	p.count++
	p.lastSend = now
	p.mu.Unlock()
}

// banState counts consecutive ban signals. A strike arms one backoff
// sleep, served by the sender before its next transmission; successful
// authentication clears the count.
type banState struct {
	mu      sync.Mutex
	count   int
	pending bool
}

func (b *banState) strike() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	b.pending = true
	return b.count
}

func (b *banState) reset() {
	b.mu.Lock()
	b.count = 0
	b.pending = false
	b.mu.Unlock()
}

// takePending returns the armed backoff duration once per strike.
func (b *banState) takePending() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pending {
		return 0, false
	}
	b.pending = false
	return banBackoff(b.count), true
}

// banBackoff doubles per consecutive ban, capped at banMax.
func banBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := banBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= banMax {
			return banMax
		}
	}
	if d > banMax {
		return banMax
	}
	return d
}
