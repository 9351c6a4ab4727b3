// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"fmt"
	"time"
)

const (
	trendSmoothingCoeff = 0.9
	trendWindowSize     = 20

	// congestionThreshold is the delay growth in microseconds per
	// millisecond of run time above which a queue counts as building.
	congestionThreshold = 1.0
)

// Congestion classifies the delay trend of a priority class.
type Congestion int

const (
	// CongestionStable means the queueing delay neither grows nor shrinks.
	CongestionStable Congestion = iota
	// CongestionDraining means the queue empties faster than it fills.
	CongestionDraining
	// CongestionBuilding means packets arrive faster than the link serves
	// them.
	CongestionBuilding
)

func (c Congestion) String() string {
	switch c {
	case CongestionStable:
		return "stable"
	case CongestionDraining:
		return "draining"
	case CongestionBuilding:
		return "building"
	default:
		return fmt.Sprintf("invalid congestion: %d", int(c))
	}
}

func classifyTrend(trend float64) Congestion {
	switch {
	case trend > congestionThreshold:
		return CongestionBuilding
	case trend < -congestionThreshold:
		return CongestionDraining
	default:
		return CongestionStable
	}
}

type delaySample struct {
	enqueuedMS      float64
	smoothedDelayUS float64
}

// delayTrend fits a line through the smoothed queueing delays of the last
// trendWindowSize packets over their enqueue time.
type delayTrend struct {
	initialized   bool
	firstEnqueue  time.Duration
	smoothedDelay float64
	history       []delaySample
	trend         float64
}

func (e *delayTrend) update(enqueued, delay time.Duration) {
	delayUS := float64(delay) / float64(time.Microsecond)
	if !e.initialized {
		e.initialized = true
		e.firstEnqueue = enqueued
		e.smoothedDelay = delayUS
	} else {
		e.smoothedDelay = trendSmoothingCoeff*e.smoothedDelay + (1-trendSmoothingCoeff)*delayUS
	}

	e.history = append(e.history, delaySample{
		enqueuedMS:      float64(enqueued-e.firstEnqueue) / float64(time.Millisecond),
		smoothedDelayUS: e.smoothedDelay,
	})
	if len(e.history) > trendWindowSize {
		e.history = e.history[1:]
	}

	if trend, ok := fitSlope(e.history); ok {
		e.trend = trend
	}
}

// value returns the last fitted slope in microseconds of delay per
// millisecond.
func (e *delayTrend) value() float64 {
	return e.trend
}

func fitSlope(samples []delaySample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	sumX := 0.0
	sumY := 0.0
	for _, s := range samples {
		sumX += s.enqueuedMS
		sumY += s.smoothedDelayUS
	}
	avgX := sumX / float64(len(samples))
	avgY := sumY / float64(len(samples))

	numerator := 0.0
	denominator := 0.0
	for _, s := range samples {
		numerator += (s.enqueuedMS - avgX) * (s.smoothedDelayUS - avgY)
		denominator += (s.enqueuedMS - avgX) * (s.enqueuedMS - avgX)
	}
	if denominator == 0 {
		return 0, false
	}

	return numerator / denominator, true
}
