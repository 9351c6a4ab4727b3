// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package linksim

import "fmt"

// Priority is the service class of a packet. High priority packets are
// always serviced before low priority packets.
type Priority uint8

const (
	// PriorityHigh is serviced first.
	PriorityHigh Priority = iota

	// PriorityLow is serviced only when no high priority packet is queued.
	PriorityLow

	// NumPriorities is the number of priority classes. Per class state is
	// kept in arrays of this length, indexed by Priority.
	NumPriorities = 2
)

// Trace tokens of the priority classes.
const (
	TokenPriorityHigh = "PACKET_PRIORITY_HIGH"
	TokenPriorityLow  = "PACKET_PRIORITY_LOW"
)

// Priorities lists all priority classes in service order.
func Priorities() [NumPriorities]Priority {
	return [NumPriorities]Priority{PriorityHigh, PriorityLow}
}

// Valid reports whether p is one of the defined classes.
func (p Priority) Valid() bool {
	return p < NumPriorities
}

// Token returns the trace token of p.
func (p Priority) Token() string {
	switch p {
	case PriorityHigh:
		return TokenPriorityHigh
	case PriorityLow:
		return TokenPriorityLow
	default:
		return fmt.Sprintf("PACKET_PRIORITY_INVALID_%d", uint8(p))
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("invalid priority: %d", uint8(p))
	}
}
