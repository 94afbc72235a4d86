/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats rolls up periodic summaries of the update loop's offset,
// frequency and delay samples: rms and max-abs for offset, mean and stddev
// for frequency and delay.
package stats

import (
	"fmt"
	"math"

	"github.com/eclesh/welford"
)

// aggregator accumulates one series between resets. welford.Stats carries
// the running mean/variance; sumSquares and maxAbs are kept alongside it
// since RMS and max-abs aren't part of that API.
type aggregator struct {
	w          *welford.Stats
	sumSquares float64
	maxAbs     float64
	count      int
}

func newAggregator() *aggregator {
	return &aggregator{w: welford.New()}
}

func (a *aggregator) push(v float64) {
	a.w.Add(v)
	a.sumSquares += v * v
	if abs := math.Abs(v); abs > a.maxAbs {
		a.maxAbs = abs
	}
	a.count++
}

func (a *aggregator) rms() float64 {
	if a.count == 0 {
		return 0
	}
	return math.Sqrt(a.sumSquares / float64(a.count))
}

func (a *aggregator) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.w.Mean()
}

func (a *aggregator) stddev() float64 {
	if a.count < 2 {
		return 0
	}
	return a.w.Stddev()
}

func (a *aggregator) reset() {
	a.w = welford.New()
	a.sumSquares = 0
	a.maxAbs = 0
	a.count = 0
}

// Summary is one emitted rollup, covering stats_max_count samples.
type Summary struct {
	Samples int

	OffsetRMSNS    float64
	OffsetMaxAbsNS float64

	FreqMeanPPB   float64
	FreqStddevPPB float64

	HasDelay       bool
	DelayMeanNS    float64
	DelayStddevNS  float64
}

func (s Summary) String() string {
	base := fmt.Sprintf("rms %10.0f max %10.0f freq %+10.0f +/- %7.0f",
		s.OffsetRMSNS, s.OffsetMaxAbsNS, s.FreqMeanPPB, s.FreqStddevPPB)
	if !s.HasDelay {
		return base
	}
	return fmt.Sprintf("%s delay %7.0f +/- %6.0f", base, s.DelayMeanNS, s.DelayStddevNS)
}

// Tracker holds the three independent rolling aggregators described by the
// update path: offset and freq are pushed on every sample, delay only when
// a delay measurement is present. Once the offset aggregator reaches
// MaxCount samples, Push returns a Summary and resets all three.
type Tracker struct {
	MaxCount int

	offset *aggregator
	freq   *aggregator
	delay  *aggregator
}

// NewTracker builds a Tracker that emits a Summary every maxCount samples.
func NewTracker(maxCount int) *Tracker {
	return &Tracker{
		MaxCount: maxCount,
		offset:   newAggregator(),
		freq:     newAggregator(),
		delay:    newAggregator(),
	}
}

// Push feeds one update-path sample into the rolling aggregators. ok is
// true exactly when MaxCount samples have now been collected, in which
// case summary is populated and all three aggregators are reset.
func (t *Tracker) Push(offsetNS int64, freqPPB float64, delayNS int64, hasDelay bool) (summary Summary, ok bool) {
	t.offset.push(float64(offsetNS))
	t.freq.push(freqPPB)
	if hasDelay {
		t.delay.push(float64(delayNS))
	}

	if t.offset.count < t.MaxCount {
		return Summary{}, false
	}

	summary = Summary{
		Samples:       t.offset.count,
		OffsetRMSNS:   t.offset.rms(),
		OffsetMaxAbsNS: t.offset.maxAbs,
		FreqMeanPPB:   t.freq.mean(),
		FreqStddevPPB: t.freq.stddev(),
	}
	if t.delay.count > 0 {
		summary.HasDelay = true
		summary.DelayMeanNS = t.delay.mean()
		summary.DelayStddevNS = t.delay.stddev()
	}

	t.offset.reset()
	t.freq.reset()
	t.delay.reset()
	return summary, true
}
