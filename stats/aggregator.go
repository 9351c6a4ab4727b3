// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"time"

	"github.com/pion/linksim"
	"github.com/pion/logging"
)

// Anomalies counts trace lines and records the reconciler could not use.
type Anomalies struct {
	// Malformed lines had no parseable id, timestamp or priority.
	Malformed uint64
	// Unknown lines named neither an enqueue nor a dequeue event.
	Unknown uint64
	// Orphans are dequeue events without a matching enqueue event.
	Orphans uint64
	// NegativeDelays are records dequeued before they were enqueued.
	NegativeDelays uint64
	// Duplicates are events that replaced an earlier event of the same kind
	// for the same packet.
	Duplicates uint64
}

// Total returns the sum of all anomaly counters.
func (a Anomalies) Total() uint64 {
	return a.Malformed + a.Unknown + a.Orphans + a.NegativeDelays + a.Duplicates
}

// PriorityStats accumulates the records of one priority class.
type PriorityStats struct {
	Priority     linksim.Priority
	EnqueueCount uint64
	DequeueCount uint64
	DelayedCount uint64
	// Unserviced counts packets enqueued but never dequeued.
	Unserviced uint64

	delay runningAverage
	trend delayTrend
}

// AverageDelay returns the running average queueing delay.
func (s *PriorityStats) AverageDelay() time.Duration {
	return time.Duration(s.delay.avg())
}

// DelayTrend returns the recent growth of the queueing delay in
// microseconds per millisecond of run time.
func (s *PriorityStats) DelayTrend() float64 {
	return s.trend.value()
}

// DelayedPercent returns the share of dequeued packets whose delay exceeded
// the threshold, in percent.
func (s *PriorityStats) DelayedPercent() float64 {
	if s.DequeueCount == 0 {
		return 0
	}

	return float64(s.DelayedCount) / float64(s.DequeueCount) * 100
}

// Aggregator folds complete records into per priority statistics.
type Aggregator struct {
	log       logging.LeveledLogger
	threshold time.Duration

	stats     [linksim.NumPriorities]PriorityStats
	anomalies Anomalies
}

// NewAggregator creates an Aggregator that counts a record as delayed when
// its queueing delay is strictly greater than threshold.
func NewAggregator(threshold time.Duration, lf logging.LoggerFactory) *Aggregator {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	a := &Aggregator{
		log:       lf.NewLogger("linksim_aggregator"),
		threshold: threshold,
	}
	for _, p := range linksim.Priorities() {
		a.stats[p].Priority = p
	}

	return a
}

// Threshold returns the delay threshold.
func (a *Aggregator) Threshold() time.Duration {
	return a.threshold
}

// Fold adds a complete record to the statistics of its priority class.
// Incomplete records, invalid priorities and negative delays are counted as
// anomalies instead.
func (a *Aggregator) Fold(r Record) {
	switch {
	case !r.Complete():
		if _, ok := r.Event(linksim.EventEnqueue); ok {
			a.Unserviced(r.Packet().Priority)
		} else {
			a.anomalies.Orphans++
		}

		return
	case !r.Packet().Priority.Valid():
		a.anomalies.Malformed++

		return
	}

	delay := r.Delay()
	if delay < 0 {
		a.log.Warnf("packet %d dequeued %v before it was enqueued", r.Packet().ID, -delay)
		a.anomalies.NegativeDelays++

		return
	}

	s := &a.stats[r.Packet().Priority]
	s.EnqueueCount++
	s.DequeueCount++
	s.delay.update(float64(delay))
	enqueue, _ := r.Event(linksim.EventEnqueue)
	s.trend.update(enqueue.Timestamp, delay)
	if delay > a.threshold {
		s.DelayedCount++
	}
}

// Unserviced counts a packet of priority p that was enqueued but never left
// the link.
func (a *Aggregator) Unserviced(p linksim.Priority) {
	if !p.Valid() {
		a.anomalies.Malformed++

		return
	}
	a.stats[p].EnqueueCount++
	a.stats[p].Unserviced++
}

// Stats returns the statistics of priority p.
func (a *Aggregator) Stats(p linksim.Priority) PriorityStats {
	if !p.Valid() {
		return PriorityStats{Priority: p}
	}

	return a.stats[p]
}

// Anomalies returns the anomaly counters.
func (a *Aggregator) Anomalies() Anomalies {
	return a.anomalies
}

// Finalize builds the report. The total row sums the counters of all
// classes. Its average delay and delay trend are the means over classes that
// dequeued at least one packet.
func (a *Aggregator) Finalize() Report {
	report := Report{
		DelayThreshold: a.threshold,
		Anomalies:      a.anomalies,
		Total:          Row{Name: "total"},
	}

	var avgSum, trendSum float64
	classes := 0
	for _, p := range linksim.Priorities() {
		s := &a.stats[p]
		row := Row{
			Name:         p.String(),
			EnqueueCount: s.EnqueueCount,
			DequeueCount: s.DequeueCount,
			AverageDelay: s.AverageDelay(),
			DelayedCount: s.DelayedCount,
			Unserviced:   s.Unserviced,
			DelayTrend:   s.DelayTrend(),
			Congestion:   classifyTrend(s.DelayTrend()),
		}
		row.DelayedPercent = s.DelayedPercent()
		report.Priorities[p] = row

		report.Total.EnqueueCount += row.EnqueueCount
		report.Total.DequeueCount += row.DequeueCount
		report.Total.DelayedCount += row.DelayedCount
		report.Total.Unserviced += row.Unserviced
		if s.DequeueCount > 0 {
			avgSum += s.delay.avg()
			trendSum += s.DelayTrend()
			classes++
		}
	}
	if classes > 0 {
		report.Total.AverageDelay = time.Duration(avgSum / float64(classes))
		report.Total.DelayTrend = trendSum / float64(classes)
		report.Total.Congestion = classifyTrend(report.Total.DelayTrend)
	}
	if report.Total.DequeueCount > 0 {
		report.Total.DelayedPercent = float64(report.Total.DelayedCount) / float64(report.Total.DequeueCount) * 100
	}

	return report
}
