package link

import (
	"testing"
	"time"

	"dev.c0redev.anidb/internal/wire"
)

func cmdNamed(name string) *wire.Command {
	return &wire.Command{Name: name}
}

func TestQueuePriorityBeforeNormal(t *testing.T) {
	q := newSendQueue()
	q.push(cmdNamed("A"), false)
	q.push(cmdNamed("B"), false)
	q.push(cmdNamed("R1"), true)
	q.push(cmdNamed("R2"), true)

	var got []string
	for i := 0; i < 4; i++ {
		c, _, ok := q.pop()
		if !ok {
			t.Fatal("queue closed early")
		}
		got = append(got, c.Name)
	}
	want := []string{"R1", "R2", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
}

func TestQueueRequeueKeepsHeadOfClass(t *testing.T) {
	q := newSendQueue()
	q.push(cmdNamed("A"), false)
	q.push(cmdNamed("B"), false)
	c, prio, _ := q.pop()
	if c.Name != "A" || prio {
		t.Fatalf("pop: %s prio=%v", c.Name, prio)
	}
	q.requeue(c, prio)
	q.push(cmdNamed("R"), true)

	c, _, _ = q.pop()
	if c.Name != "R" {
		t.Fatalf("priority should jump a requeued normal: got %s", c.Name)
	}
	c, _, _ = q.pop()
	if c.Name != "A" {
		t.Fatalf("requeued item lost its place: got %s", c.Name)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newSendQueue()
	done := make(chan string, 1)
	go func() {
		c, _, ok := q.pop()
		if !ok {
			done <- ""
			return
		}
		done <- c.Name
	}()
	select {
	case <-done:
		t.Fatal("pop returned before push")
	case <-time.After(50 * time.Millisecond):
	}
	q.push(cmdNamed("X"), false)
	select {
	case name := <-done:
		if name != "X" {
			t.Fatalf("got %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never woke")
	}
}

func TestQueueCloseReleasesPop(t *testing.T) {
	q := newSendQueue()
	done := make(chan bool, 1)
	go func() {
		_, _, ok := q.pop()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	q.close()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("pop should report closed")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not release pop")
	}
}

func TestQueueDrain(t *testing.T) {
	q := newSendQueue()
	q.push(cmdNamed("A"), false)
	q.push(cmdNamed("R"), true)
	q.close()
	left := q.drain()
	if len(left) != 2 {
		t.Fatalf("drain: %d", len(left))
	}
}
