// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pion/linksim"
)

var (
	// ErrUnknownKind is returned for lines that name neither an enqueue nor
	// a dequeue event.
	ErrUnknownKind = errors.New("trace: unknown event kind")

	// ErrMalformedLine is returned for lines that do not carry a priority
	// token and exactly two integers.
	ErrMalformedLine = errors.New("trace: malformed line")
)

var (
	enqueueToken = strings.ToLower(linksim.TokenEnqueue)
	dequeueToken = strings.ToLower(linksim.TokenDequeue)
	highToken    = strings.ToLower(linksim.TokenPriorityHigh)
	lowToken     = strings.ToLower(linksim.TokenPriorityLow)
)

// ParseLine parses one trace line. Tokens are matched case-insensitively
// anywhere in the line. The first integer in the line is the timestamp in
// nanoseconds, the second the packet ID.
func ParseLine(line string) (linksim.Event, error) {
	lower := strings.ToLower(line)

	var kind linksim.EventKind
	switch {
	case strings.Contains(lower, dequeueToken):
		kind = linksim.EventDequeue
	case strings.Contains(lower, enqueueToken):
		kind = linksim.EventEnqueue
	default:
		return linksim.Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, line)
	}

	var priority linksim.Priority
	switch {
	case strings.Contains(lower, highToken):
		priority = linksim.PriorityHigh
	case strings.Contains(lower, lowToken):
		priority = linksim.PriorityLow
	default:
		return linksim.Event{}, fmt.Errorf("%w: missing priority: %q", ErrMalformedLine, line)
	}

	fields := strings.Fields(strings.Map(keepDigitsAndSpace, line))
	if len(fields) != 2 {
		return linksim.Event{}, fmt.Errorf("%w: want 2 integers, got %d: %q", ErrMalformedLine, len(fields), line)
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return linksim.Event{}, fmt.Errorf("%w: timestamp: %w", ErrMalformedLine, err)
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return linksim.Event{}, fmt.Errorf("%w: packet id: %w", ErrMalformedLine, err)
	}

	return linksim.NewEvent(kind, linksim.Packet{ID: id, Priority: priority}, time.Duration(ts)), nil
}

func keepDigitsAndSpace(r rune) rune {
	if ('0' <= r && r <= '9') || unicode.IsSpace(r) {
		return r
	}

	return -1
}
