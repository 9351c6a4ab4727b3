// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package linksim

import (
	"fmt"
	"sync/atomic"
)

// A Packet is a unit of work sent over the simulated link. Packets carry no
// payload, only an identity and a priority class.
type Packet struct {
	// ID is assigned at admission time by a PacketFactory. IDs MUST be unique
	// over a run and increase in order of creation.
	ID uint64

	// Priority selects the queue the packet is admitted to and the statistics
	// bucket its delay is folded into.
	Priority Priority
}

func (p Packet) String() string {
	return fmt.Sprintf("id=%v, priority=%v", p.ID, p.Priority)
}

// PacketFactory hands out packets with strictly increasing IDs. It is safe
// for concurrent use by many producers.
type PacketFactory struct {
	first uint64
	next  atomic.Uint64
}

// NewPacketFactory creates a factory whose first packet has ID first.
func NewPacketFactory(first uint64) *PacketFactory {
	f := &PacketFactory{first: first}
	f.next.Store(first)

	return f
}

// NewPacket returns the next packet with the given priority.
func (f *PacketFactory) NewPacket(priority Priority) Packet {
	return Packet{
		ID:       f.next.Add(1) - 1,
		Priority: priority,
	}
}

// Issued returns the number of packets created so far.
func (f *PacketFactory) Issued() uint64 {
	return f.next.Load() - f.first
}
