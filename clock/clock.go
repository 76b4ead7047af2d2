// Package clock implements the virtual-time event scheduler described in
// spec.md §4.1: a single-threaded cooperative scheduler advancing integer
// virtual time in milliseconds, running processes that yield sleeps.
//
// Go has no generators, so each spawned process is instead a goroutine that
// the scheduler hands control to one at a time: a process runs until it
// calls Sleep, at which point it blocks and the scheduler resumes whichever
// other process is due next. Exactly one process goroutine is ever
// unblocked at a time, so the cooperative, non-preemptive semantics spec.md
// §5 requires hold even though the implementation uses real goroutines.
// This generalizes the teacher's container/heap alarm queue
// (dispatcher/alarm_mgr.go), from "one pending alarm per node" to "one
// pending wakeup per spawned process".
package clock

import "container/heap"

// Ever represents a time far enough in the future to mean "never", avoiding
// special-casing an optional/sentinel value throughout the scheduler.
const Ever uint64 = 1 << 62

// Process is the handle a spawned function uses to read the current virtual
// time and yield control back to the scheduler for a given duration.
type Process struct {
	clk    *Clock
	seq    int
	resume chan struct{}
	yield  chan yieldMsg
}

type yieldMsg struct {
	sleepMs  uint64
	finished bool
}

// Now returns the current virtual time in milliseconds.
func (p *Process) Now() uint64 { return p.clk.now }

// Sleep yields control for dt milliseconds. It is the only suspension point
// available to process bodies (spec.md §5): no other call may block a
// process's logical progress.
func (p *Process) Sleep(dt uint64) {
	p.yield <- yieldMsg{sleepMs: dt}
	<-p.resume
}

type wakeItem struct {
	time  uint64
	seq   int // spawn-order tie-break, per spec.md §4.1
	proc  *Process
	index int
}

type wakeHeap []*wakeItem

func (h wakeHeap) Len() int { return len(h) }
func (h wakeHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h wakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *wakeHeap) Push(x interface{}) {
	item := x.(*wakeItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *wakeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Clock is a single virtual-time scheduler instance. It is not safe for
// concurrent use: only RunUntil advances time, and it must be called from a
// single goroutine (spec.md §5).
type Clock struct {
	now     uint64
	heap    wakeHeap
	nextSeq int
}

// New creates an empty scheduler at virtual time 0.
func New() *Clock {
	c := &Clock{}
	heap.Init(&c.heap)
	return c
}

// Now returns the scheduler's current virtual time in milliseconds.
func (c *Clock) Now() uint64 { return c.now }

// Spawn starts fn as a new process, scheduled to run for the first time at
// the current virtual time. fn must call p.Sleep to yield; when fn returns,
// the process is considered finished and is never resumed again.
func (c *Clock) Spawn(fn func(p *Process)) {
	p := &Process{
		clk:    c,
		seq:    c.nextSeq,
		resume: make(chan struct{}),
		yield:  make(chan yieldMsg),
	}
	c.nextSeq++

	go func() {
		<-p.resume
		fn(p)
		p.yield <- yieldMsg{finished: true}
	}()

	heap.Push(&c.heap, &wakeItem{time: c.now, seq: p.seq, proc: p})
}

// RunUntil advances virtual time to T, running every process event that
// falls at or before T in (timestamp, spawn-order) order.
func (c *Clock) RunUntil(t uint64) {
	for {
		if c.heap.Len() == 0 {
			break
		}
		next := c.heap[0]
		if next.time > t {
			break
		}
		heap.Pop(&c.heap)
		c.now = next.time

		p := next.proc
		p.resume <- struct{}{}
		msg := <-p.yield
		if !msg.finished {
			heap.Push(&c.heap, &wakeItem{time: c.now + msg.sleepMs, seq: p.seq, proc: p})
		}
	}
	if t > c.now {
		c.now = t
	}
}
