// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/linksim"
)

// compactThreshold is the number of consumed slots after which a fifo
// reclaims the head of its backing slice.
const compactThreshold = 1024

// An Entry is a packet waiting in a queue together with the time it was
// admitted.
type Entry struct {
	Packet     linksim.Packet
	EnqueuedAt time.Duration
}

// fifo is a mutex protected queue with an optional capacity. Occupancy is
// tracked separately so that a slot can be reserved before the packet is
// published.
type fifo struct {
	capacity  int64
	occupancy atomic.Int64

	mu    sync.Mutex
	items []Entry
	head  int
}

func (f *fifo) reserve() bool {
	if f.capacity <= 0 {
		f.occupancy.Add(1)

		return true
	}
	for {
		n := f.occupancy.Load()
		if n >= f.capacity {
			return false
		}
		if f.occupancy.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (f *fifo) release() {
	f.occupancy.Add(-1)
}

func (f *fifo) push(e Entry) {
	f.mu.Lock()
	f.items = append(f.items, e)
	f.mu.Unlock()
}

func (f *fifo) pop() (Entry, bool) {
	f.mu.Lock()
	if f.head == len(f.items) {
		f.mu.Unlock()

		return Entry{}, false
	}
	e := f.items[f.head]
	f.items[f.head] = Entry{}
	f.head++
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	} else if f.head >= compactThreshold && f.head*2 >= len(f.items) {
		n := copy(f.items, f.items[f.head:])
		f.items = f.items[:n]
		f.head = 0
	}
	f.mu.Unlock()
	f.release()

	return e, true
}

// QueuePair holds one FIFO queue per priority class. Admit is safe for
// concurrent use; RemoveNext must only be called by a single consumer.
type QueuePair struct {
	queues [linksim.NumPriorities]*fifo
}

// NewQueuePair creates a queue pair where each class holds at most capacity
// packets. A capacity of zero or less means unbounded.
func NewQueuePair(capacity int) *QueuePair {
	q := &QueuePair{}
	for i := range q.queues {
		q.queues[i] = &fifo{capacity: int64(capacity)}
	}

	return q
}

// Admit appends p to the queue of its priority class. It returns false if
// the queue is full or the priority is invalid.
func (q *QueuePair) Admit(p linksim.Packet) bool {
	ok, _ := q.AdmitFunc(Entry{Packet: p}, nil)

	return ok
}

// AdmitFunc admits e and calls onAdmit after a slot was reserved but before
// the entry becomes visible to RemoveNext. onAdmit may fill in the entry but
// must keep its priority. If onAdmit fails the slot is released and its
// error returned.
func (q *QueuePair) AdmitFunc(e Entry, onAdmit func(*Entry) error) (bool, error) {
	if !e.Packet.Priority.Valid() {
		return false, nil
	}
	f := q.queues[e.Packet.Priority]
	if !f.reserve() {
		return false, nil
	}
	if onAdmit != nil {
		if err := onAdmit(&e); err != nil {
			f.release()

			return false, err
		}
	}
	f.push(e)

	return true, nil
}

// RemoveNext removes the head of the high priority queue, or of the low
// priority queue if no high priority packet is waiting.
func (q *QueuePair) RemoveNext() (linksim.Packet, bool) {
	e, ok := q.RemoveNextEntry()

	return e.Packet, ok
}

// RemoveNextEntry is RemoveNext returning the admission time as well.
func (q *QueuePair) RemoveNextEntry() (Entry, bool) {
	for _, f := range q.queues {
		if e, ok := f.pop(); ok {
			return e, true
		}
	}

	return Entry{}, false
}

// Len returns the number of packets admitted to the queue of priority p and
// not yet removed, including admissions still in progress.
func (q *QueuePair) Len(p linksim.Priority) int {
	if !p.Valid() {
		return 0
	}

	return int(q.queues[p].occupancy.Load())
}
