// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"time"

	"github.com/pion/linksim"
)

// A Record pairs the enqueue and dequeue events of one packet. It holds at
// most one event per kind.
type Record struct {
	events [linksim.NumEventKinds]linksim.Event
	filled [linksim.NumEventKinds]bool

	// queued is set once the record was scheduled for folding.
	queued bool
}

// Set stores e in the slot of its kind and reports whether an earlier event
// was overwritten. Events of unknown kinds are ignored.
func (r *Record) Set(e linksim.Event) bool {
	if e.Kind >= linksim.NumEventKinds {
		return false
	}
	overwritten := r.filled[e.Kind]
	r.events[e.Kind] = e
	r.filled[e.Kind] = true

	return overwritten
}

// Event returns the event of the given kind, if recorded.
func (r *Record) Event(kind linksim.EventKind) (linksim.Event, bool) {
	if kind >= linksim.NumEventKinds || !r.filled[kind] {
		return linksim.Event{}, false
	}

	return r.events[kind], true
}

// Complete reports whether both slots are filled.
func (r *Record) Complete() bool {
	return r.filled[linksim.EventEnqueue] && r.filled[linksim.EventDequeue]
}

// Packet returns the packet of the record. The enqueue event wins if the
// two events disagree.
func (r *Record) Packet() linksim.Packet {
	if r.filled[linksim.EventEnqueue] {
		return r.events[linksim.EventEnqueue].Packet
	}

	return r.events[linksim.EventDequeue].Packet
}

// Delay returns the queueing delay of a complete record.
func (r *Record) Delay() time.Duration {
	return r.events[linksim.EventDequeue].Timestamp - r.events[linksim.EventEnqueue].Timestamp
}
