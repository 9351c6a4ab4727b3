// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

// runningAverage halves the distance to every new sample: the first sample
// sets the average, every later sample s gives (avg + s) / 2. Recent samples
// dominate and the result depends on sample order; it is not the mean.
type runningAverage struct {
	initialized bool
	average     float64
}

func (a *runningAverage) update(sample float64) {
	if !a.initialized {
		a.initialized = true
		a.average = sample

		return
	}
	a.average = (a.average + sample) / 2
}

func (a *runningAverage) avg() float64 {
	return a.average
}
