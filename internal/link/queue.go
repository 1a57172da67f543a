package link

import (
	"sync"

	"dev.c0redev.anidb/internal/wire"
)

// sendQueue orders not-yet-sent commands. Priority items (retries after
// recoverable protocol errors) are always served before normal traffic;
// within each class order is FIFO. pop blocks until an item is available
// or the queue is closed.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	prio   []*wire.Command
	normal []*wire.Command
	closed bool
}

func newSendQueue() *sendQueue {
	q := &sendQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) push(c *wire.Command, prio bool) {
	q.mu.Lock()
	if prio {
		q.prio = append(q.prio, c)
	} else {
		q.normal = append(q.normal, c)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// requeue puts a popped command back at the head of its class, keeping
// its position relative to later arrivals.
func (q *sendQueue) requeue(c *wire.Command, prio bool) {
	q.mu.Lock()
	if prio {
		q.prio = append([]*wire.Command{c}, q.prio...)
	} else {
		q.normal = append([]*wire.Command{c}, q.normal...)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// pop returns the next command, preferring the priority class. ok is
// false once the queue is closed.
func (q *sendQueue) pop() (c *wire.Command, prio, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.prio) == 0 && len(q.normal) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false, false
	}
	if len(q.prio) > 0 {
		c = q.prio[0]
		q.prio = q.prio[1:]
		return c, true, true
	}
	c = q.normal[0]
	q.normal = q.normal[1:]
	return c, false, true
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// drain empties the queue and returns what was pending, for failing
// callbacks at shutdown.
func (q *sendQueue) drain() []*wire.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append(q.prio, q.normal...)
	q.prio, q.normal = nil, nil
	return out
}
