// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package linksim

import (
	"fmt"
	"time"
)

// EventKind identifies what happened to a packet.
type EventKind uint8

const (
	// EventEnqueue is recorded when a packet is admitted to its queue.
	EventEnqueue EventKind = iota

	// EventDequeue is recorded when the link removes a packet for service.
	EventDequeue

	// NumEventKinds is the number of known kinds. Per packet records keep one
	// slot per kind.
	NumEventKinds = 2
)

// Trace tokens of the event kinds.
const (
	TokenEnqueue = "ENQUEUE"
	TokenDequeue = "DEQUEUE"
	TokenUnknown = "UNKNOWN"
)

// Token returns the trace token of k.
func (k EventKind) Token() string {
	switch k {
	case EventEnqueue:
		return TokenEnqueue
	case EventDequeue:
		return TokenDequeue
	default:
		return TokenUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case EventEnqueue:
		return "enqueue"
	case EventDequeue:
		return "dequeue"
	default:
		return fmt.Sprintf("invalid event kind: %d", uint8(k))
	}
}

// An Event records a state change of a packet. Events are immutable once
// created.
type Event struct {
	Kind   EventKind
	Packet Packet

	// Timestamp is a monotonic clock reading taken when the event happened,
	// not when it was written.
	Timestamp time.Duration
}

// NewEvent creates an event for packet p at ts.
func NewEvent(kind EventKind, p Packet, ts time.Duration) Event {
	return Event{
		Kind:      kind,
		Packet:    p,
		Timestamp: ts,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%v at (%d): Packet %d - Priority %v", e.Kind.Token(), e.Timestamp.Nanoseconds(), e.Packet.ID, e.Packet.Priority.Token())
}

// Clock returns monotonic readings relative to a fixed epoch.
type Clock interface {
	Now() time.Duration
}

// MonotonicClock reads the runtime monotonic clock relative to the time it
// was created.
type MonotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock creates a clock whose epoch is the current time.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

// Now returns the time elapsed since the epoch.
func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.epoch)
}
