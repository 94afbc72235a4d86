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

package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clocksyncd/clocksyncd/servo"
)

func TestUpdateLockedCallsSetFreqOnceNoStep(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked, nextPPB: 42}
	c := newTestContext(clk, sv)

	ok := c.Update(1000, 1, 0, false)
	require.True(t, ok)
	require.Empty(t, clk.steps)
	require.Equal(t, []float64{-42}, clk.freqCalls)
}

func TestUpdateJumpStepsThenSetsFreq(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateJump, nextPPB: 7}
	c := newTestContext(clk, sv)

	ok := c.Update(500, 1, 0, false)
	require.True(t, ok)
	require.Equal(t, []time.Duration{-500}, clk.steps)
	require.Equal(t, []float64{-7}, clk.freqCalls)
}

func TestUpdateUnlockedTakesNoAction(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateUnlocked}
	c := newTestContext(clk, sv)

	ok := c.Update(0, 1, 0, false)
	require.True(t, ok)
	require.Empty(t, clk.steps)
	require.Empty(t, clk.freqCalls)
}

func TestUpdateFoldsSyncOffsetWhenDirectionSet(t *testing.T) {
	clk := &fakeClock{}
	sv := &recordingServo{nextState: servo.StateLocked}
	c := newTestContext(clk, &fakeServo{nextState: servo.StateLocked})
	c.Servo = sv
	c.SyncOffset = 37
	c.SyncOffsetDirection = -1

	c.Update(100, 1, 0, false)
	require.Equal(t, int64(100-37*int64(time.Second)), sv.lastOffset)
}

// recordingServo captures the offset it was called with, so tests can
// assert on sync-offset folding without inspecting the clock.
type recordingServo struct {
	nextState  servo.State
	lastOffset int64
}

func (r *recordingServo) Sample(offsetNS int64, tsNS uint64) (float64, servo.State) {
	r.lastOffset = offsetNS
	return 0, r.nextState
}
func (r *recordingServo) Unlock()            {}
func (r *recordingServo) State() servo.State { return r.nextState }
