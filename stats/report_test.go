// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/linksim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportWriteTo(t *testing.T) {
	a := NewAggregator(200, nil)
	a.Fold(completeRecord(1, linksim.PriorityHigh, 100, 350))
	a.Fold(completeRecord(2, linksim.PriorityLow, 100, 1100))
	a.Unserviced(linksim.PriorityLow)
	report := a.Finalize()

	buf := &bytes.Buffer{}
	n, err := report.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "avg delay (us)")
	assert.Contains(t, lines[0], "trend (us/ms)")
	assert.Equal(t, []string{"high", "1", "1", "0.250", "1", "100.00", "0", "0.000", "stable"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"low", "2", "1", "1.000", "1", "100.00", "1", "0.000", "stable"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"total", "3", "2", "0.625", "2", "100.00", "1", "0.000", "stable"}, strings.Fields(lines[3]))
}

func TestReportWriteToAnomalies(t *testing.T) {
	report := Report{Anomalies: Anomalies{Orphans: 2, Unknown: 1}}

	buf := &bytes.Buffer{}
	_, err := report.WriteTo(buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unknown=1 orphans=2")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestReportWriteToError(t *testing.T) {
	_, err := Report{}.WriteTo(failingWriter{})
	assert.Error(t, err)
}

func TestReportPriority(t *testing.T) {
	report := Report{}
	report.Priorities[linksim.PriorityLow] = Row{Name: "low", AverageDelay: 1500 * time.Nanosecond}

	assert.InDelta(t, 1.5, report.Priority(linksim.PriorityLow).AverageDelayMicros(), 1e-9)
	assert.Equal(t, "invalid priority: 7", report.Priority(7).Name)
}
