package link

import (
	"sync"
	"time"

	"dev.c0redev.anidb/internal/wire"
)

// inflightTable maps tag -> transmitted-but-unresolved command. All
// mutation funnels through its mutex; a command is inserted exactly once
// per transmission attempt and removed exactly once.
type inflightTable struct {
	mu   sync.Mutex
	cmds map[string]*wire.Command
}

func newInflightTable() *inflightTable {
	return &inflightTable{cmds: make(map[string]*wire.Command)}
}

// insert adds the command under its tag; false on tag collision.
func (t *inflightTable) insert(c *wire.Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.cmds[c.Tag]; dup {
		return false
	}
	t.cmds[c.Tag] = c
	return true
}

// take removes and returns the command for tag.
func (t *inflightTable) take(tag string) (*wire.Command, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cmds[tag]
	if ok {
		delete(t.cmds, tag)
	}
	return c, ok
}

func (t *inflightTable) has(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.cmds[tag]
	return ok
}

func (t *inflightTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cmds)
}

// expire removes and returns every command transmitted longer than
// timeout ago.
func (t *inflightTable) expire(now time.Time, timeout time.Duration) []*wire.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*wire.Command
	for tag, c := range t.cmds {
		if !c.Started.IsZero() && now.Sub(c.Started) > timeout {
			delete(t.cmds, tag)
			out = append(out, c)
		}
	}
	return out
}

// drain empties the table, for failing callbacks at shutdown.
func (t *inflightTable) drain() []*wire.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*wire.Command, 0, len(t.cmds))
	for tag, c := range t.cmds {
		delete(t.cmds, tag)
		out = append(out, c)
	}
	return out
}
