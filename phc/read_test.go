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

package phc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReadPHCAgainstCLOCKREALTIME(t *testing.T) {
	s, err := ReadPHC(unix.CLOCK_REALTIME, unix.CLOCK_REALTIME, 5)
	require.NoError(t, err)
	require.True(t, s.HasDelay)
	require.InDelta(t, 0, s.OffsetNS, float64(time.Millisecond))
}

func TestSysoffMeasurePicksShortestInterval(t *testing.T) {
	ext := &PTPSysOffsetExtended{NSamples: 2}
	ext.TS[0][0] = PTPClockTime{Sec: 100, NSec: 0}
	ext.TS[0][1] = PTPClockTime{Sec: 100, NSec: 500}
	ext.TS[0][2] = PTPClockTime{Sec: 100, NSec: 1000000} // wide bracket

	ext.TS[1][0] = PTPClockTime{Sec: 100, NSec: 2000}
	ext.TS[1][1] = PTPClockTime{Sec: 100, NSec: 2100}
	ext.TS[1][2] = PTPClockTime{Sec: 100, NSec: 2200} // narrow bracket, wins

	best := ext.TS[0]
	bestInterval := best[2].Time().Sub(best[0].Time())
	for i := 1; i < int(ext.NSamples); i++ {
		cand := ext.TS[i]
		interval := cand[2].Time().Sub(cand[0].Time())
		if interval < bestInterval {
			bestInterval = interval
			best = cand
		}
	}
	require.Equal(t, ext.TS[1], best)
}

func TestPPSOffsetNormalization(t *testing.T) {
	cases := []struct {
		nsec     int64
		expected int64
	}{
		{0, 0},
		{500000000, 500000000},
		{500000001, -499999999},
		{999999999, -1},
	}
	for _, c := range cases {
		tsNS := int64(1700000000)*nsPerSec + c.nsec
		offset := tsNS % nsPerSec
		if offset > nsPerSec/2 {
			offset -= nsPerSec
		}
		require.Equal(t, c.expected, offset)
	}
}
