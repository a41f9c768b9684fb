// Package queue implements the bounded work queue used by the collation
// core's scatter and gather pipelines (spec §5, §9): a fixed-capacity FIFO
// with non-blocking push/pop and a full/empty probe, meant to be driven by a
// caller-side spin loop rather than blocking channel sends.
package queue

import "sync"

// Ring is a fixed-capacity, mutex-guarded FIFO safe for concurrent use by
// multiple producers and multiple consumers. It never blocks: TryPush and
// TryPop report failure instead, so callers spin (spec §9's "Bounded queue
// choice" note).
//
// Adapted from solarisdb-solaris/golibs/container.RingBuffer, which is a
// single-threaded ring with the same Write/Read/Len/Cap shape; this version
// adds the mutex and the IsFull/IsEmpty probes the spin-wait callers need.
type Ring struct {
	mu    sync.Mutex
	buf   []interface{}
	head  int // next read position
	count int
}

// NewRing creates a Ring with the given fixed capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]interface{}, capacity)}
}

// TryPush appends v to the queue. It returns false without blocking if the
// queue is full.
func (q *Ring) TryPush(v interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.buf) {
		return false
	}
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = v
	q.count++
	return true
}

// TryPop removes and returns the oldest queued value. It returns
// (nil, false) without blocking if the queue is empty.
func (q *Ring) TryPop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

// IsFull reports whether the next TryPush would fail.
func (q *Ring) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == len(q.buf)
}

// IsEmpty reports whether the next TryPop would fail.
func (q *Ring) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == 0
}

// Len returns the number of values currently queued.
func (q *Ring) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue's fixed capacity.
func (q *Ring) Cap() int {
	return len(q.buf)
}

// SpinPush pushes v, busy-waiting while the queue is full. Used by the
// scatter pipeline's reader thread (spec §4.4 step 3).
func (q *Ring) SpinPush(v interface{}) {
	for !q.TryPush(v) {
		for q.IsFull() {
		}
	}
}
