// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"testing"
	"time"

	"github.com/pion/linksim"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
)

func completeRecord(id uint64, priority linksim.Priority, enqueued, dequeued time.Duration) Record {
	p := linksim.Packet{ID: id, Priority: priority}
	r := Record{}
	r.Set(linksim.NewEvent(linksim.EventEnqueue, p, enqueued))
	r.Set(linksim.NewEvent(linksim.EventDequeue, p, dequeued))

	return r
}

func TestAggregatorFold(t *testing.T) {
	type fold struct {
		priority linksim.Priority
		delay    time.Duration
	}
	cases := []struct {
		name          string
		threshold     time.Duration
		folds         []fold
		expectedHigh  PriorityStats
		expectedLow   PriorityStats
		expectedAvg   [linksim.NumPriorities]time.Duration
		expectedTotal time.Duration
	}{
		{
			name:          "empty",
			threshold:     time.Microsecond,
			folds:         []fold{},
			expectedHigh:  PriorityStats{Priority: linksim.PriorityHigh},
			expectedLow:   PriorityStats{Priority: linksim.PriorityLow},
			expectedTotal: 0,
		},
		{
			name:      "singleHigh",
			threshold: 200,
			folds: []fold{
				{linksim.PriorityHigh, 250},
			},
			expectedHigh:  PriorityStats{Priority: linksim.PriorityHigh, EnqueueCount: 1, DequeueCount: 1, DelayedCount: 1},
			expectedLow:   PriorityStats{Priority: linksim.PriorityLow},
			expectedAvg:   [linksim.NumPriorities]time.Duration{250, 0},
			expectedTotal: 250,
		},
		{
			name:      "thresholdIsExclusive",
			threshold: 200,
			folds: []fold{
				{linksim.PriorityLow, 200},
				{linksim.PriorityLow, 201},
			},
			expectedHigh:  PriorityStats{Priority: linksim.PriorityHigh},
			expectedLow:   PriorityStats{Priority: linksim.PriorityLow, EnqueueCount: 2, DequeueCount: 2, DelayedCount: 1},
			expectedAvg:   [linksim.NumPriorities]time.Duration{0, 200},
			expectedTotal: 200,
		},
		{
			name:      "bothClasses",
			threshold: time.Second,
			folds: []fold{
				{linksim.PriorityHigh, 100},
				{linksim.PriorityLow, 300},
				{linksim.PriorityHigh, 100},
				{linksim.PriorityLow, 300},
			},
			expectedHigh:  PriorityStats{Priority: linksim.PriorityHigh, EnqueueCount: 2, DequeueCount: 2},
			expectedLow:   PriorityStats{Priority: linksim.PriorityLow, EnqueueCount: 2, DequeueCount: 2},
			expectedAvg:   [linksim.NumPriorities]time.Duration{100, 300},
			expectedTotal: 200,
		},
		{
			name:      "zeroDelay",
			threshold: 0,
			folds: []fold{
				{linksim.PriorityHigh, 0},
			},
			expectedHigh:  PriorityStats{Priority: linksim.PriorityHigh, EnqueueCount: 1, DequeueCount: 1},
			expectedLow:   PriorityStats{Priority: linksim.PriorityLow},
			expectedTotal: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAggregator(tc.threshold, logging.NewDefaultLoggerFactory())
			for i, f := range tc.folds {
				a.Fold(completeRecord(uint64(i), f.priority, 1000, 1000+f.delay))
			}

			for p, expected := range map[linksim.Priority]PriorityStats{
				linksim.PriorityHigh: tc.expectedHigh,
				linksim.PriorityLow:  tc.expectedLow,
			} {
				s := a.Stats(p)
				assert.Equal(t, expected.Priority, s.Priority)
				assert.Equal(t, expected.EnqueueCount, s.EnqueueCount)
				assert.Equal(t, expected.DequeueCount, s.DequeueCount)
				assert.Equal(t, expected.DelayedCount, s.DelayedCount)
				assert.Equal(t, tc.expectedAvg[p], s.AverageDelay())
			}
			report := a.Finalize()
			assert.Equal(t, tc.expectedTotal, report.Total.AverageDelay)
			assert.Equal(t, tc.expectedHigh.EnqueueCount+tc.expectedLow.EnqueueCount, report.Total.EnqueueCount)
			assert.Zero(t, report.Anomalies.Total())
		})
	}
}

func TestAggregatorNegativeDelay(t *testing.T) {
	a := NewAggregator(0, nil)
	a.Fold(completeRecord(1, linksim.PriorityHigh, 500, 100))

	assert.Equal(t, uint64(1), a.Anomalies().NegativeDelays)
	assert.Zero(t, a.Stats(linksim.PriorityHigh).DequeueCount)
}

func TestAggregatorIncompleteRecords(t *testing.T) {
	a := NewAggregator(0, nil)

	enqueued := Record{}
	enqueued.Set(linksim.NewEvent(linksim.EventEnqueue, linksim.Packet{ID: 1, Priority: linksim.PriorityLow}, 10))
	a.Fold(enqueued)

	dequeued := Record{}
	dequeued.Set(linksim.NewEvent(linksim.EventDequeue, linksim.Packet{ID: 2, Priority: linksim.PriorityLow}, 10))
	a.Fold(dequeued)

	low := a.Stats(linksim.PriorityLow)
	assert.Equal(t, uint64(1), low.EnqueueCount)
	assert.Equal(t, uint64(1), low.Unserviced)
	assert.Zero(t, low.DequeueCount)
	assert.Equal(t, uint64(1), a.Anomalies().Orphans)
}

func TestPriorityStatsDelayedPercent(t *testing.T) {
	s := PriorityStats{}
	assert.Zero(t, s.DelayedPercent())

	s = PriorityStats{DequeueCount: 8, DelayedCount: 2}
	assert.InDelta(t, 25.0, s.DelayedPercent(), 1e-9)
}

func TestAggregatorCongestion(t *testing.T) {
	a := NewAggregator(time.Second, nil)
	for i := 0; i < 50; i++ {
		enqueued := time.Duration(i) * time.Millisecond
		// High stays constant while the low queue grows without bound.
		a.Fold(completeRecord(uint64(2*i), linksim.PriorityHigh, enqueued, enqueued+20*time.Microsecond))
		a.Fold(completeRecord(uint64(2*i+1), linksim.PriorityLow, enqueued, enqueued+time.Duration(i)*time.Millisecond))
	}
	report := a.Finalize()

	assert.Equal(t, CongestionStable, report.Priority(linksim.PriorityHigh).Congestion)
	assert.InDelta(t, 0, report.Priority(linksim.PriorityHigh).DelayTrend, 1e-6)
	assert.Equal(t, CongestionBuilding, report.Priority(linksim.PriorityLow).Congestion)
	assert.Greater(t, report.Priority(linksim.PriorityLow).DelayTrend, 100.0)
	assert.Equal(t, CongestionBuilding, report.Total.Congestion)
}
