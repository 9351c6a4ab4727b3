// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pion/linksim"
)

// Row is one line of a Report.
type Row struct {
	Name           string
	EnqueueCount   uint64
	DequeueCount   uint64
	AverageDelay   time.Duration
	DelayedCount   uint64
	DelayedPercent float64
	Unserviced     uint64

	// DelayTrend is the delay growth in microseconds per millisecond.
	DelayTrend float64
	Congestion Congestion
}

// AverageDelayMicros returns the average delay in microseconds.
func (r Row) AverageDelayMicros() float64 {
	return float64(r.AverageDelay) / float64(time.Microsecond)
}

// Report is the result of reconciling one trace.
type Report struct {
	Priorities     [linksim.NumPriorities]Row
	Total          Row
	DelayThreshold time.Duration
	Anomalies      Anomalies

	// Lines is the number of trace lines read.
	Lines int
	// PeakPending is the largest number of records held in memory at once.
	PeakPending int
}

// Priority returns the row of priority p.
func (r Report) Priority(p linksim.Priority) Row {
	if !p.Valid() {
		return Row{Name: p.String()}
	}

	return r.Priorities[p]
}

// WriteTo writes the report as an aligned text table.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "priority\tenqueued\tdequeued\tavg delay (us)\tdelayed (>%v)\tdelayed %%\tunserviced\ttrend (us/ms)\tqueue\t\n",
		r.DelayThreshold)
	rows := append(r.Priorities[:], r.Total)
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%d\t%.2f\t%d\t%.3f\t%v\t\n",
			row.Name, row.EnqueueCount, row.DequeueCount, row.AverageDelayMicros(),
			row.DelayedCount, row.DelayedPercent, row.Unserviced, row.DelayTrend, row.Congestion)
	}
	if err := tw.Flush(); err != nil {
		return cw.n, err
	}
	if a := r.Anomalies; a.Total() > 0 {
		if _, err := fmt.Fprintf(cw, "anomalies: malformed=%d unknown=%d orphans=%d negative=%d duplicates=%d\n",
			a.Malformed, a.Unknown, a.Orphans, a.NegativeDelays, a.Duplicates); err != nil {
			return cw.n, err
		}
	}

	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}

	return n, err
}
