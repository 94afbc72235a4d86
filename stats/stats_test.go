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

package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerEmitsAfterMaxCount(t *testing.T) {
	tr := NewTracker(3)

	_, ok := tr.Push(10, 1.0, 0, false)
	require.False(t, ok)
	_, ok = tr.Push(-10, -1.0, 0, false)
	require.False(t, ok)

	summary, ok := tr.Push(20, 2.0, 0, false)
	require.True(t, ok)
	require.Equal(t, 3, summary.Samples)
	require.False(t, summary.HasDelay)
	require.InDelta(t, 20.0, summary.OffsetMaxAbsNS, 1e-9)
}

func TestTrackerResetsAfterEmit(t *testing.T) {
	tr := NewTracker(2)

	_, ok := tr.Push(100, 0, 0, false)
	require.False(t, ok)
	_, ok = tr.Push(100, 0, 0, false)
	require.True(t, ok)

	// a fresh window should not remember the prior max
	_, ok = tr.Push(1, 0, 0, false)
	require.False(t, ok)
	summary, ok := tr.Push(2, 0, 0, false)
	require.True(t, ok)
	require.InDelta(t, 2.0, summary.OffsetMaxAbsNS, 1e-9)
}

func TestTrackerTracksDelayOnlyWhenPresent(t *testing.T) {
	tr := NewTracker(2)

	_, ok := tr.Push(0, 0, 500, true)
	require.False(t, ok)
	summary, ok := tr.Push(0, 0, 0, false)
	require.True(t, ok)
	require.True(t, summary.HasDelay)
}

func TestSummaryStringOmitsDelayWhenAbsent(t *testing.T) {
	s := Summary{OffsetRMSNS: 1, OffsetMaxAbsNS: 2, FreqMeanPPB: 3, FreqStddevPPB: 4}
	require.NotContains(t, s.String(), "delay")
}
