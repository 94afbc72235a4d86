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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/clocksyncd/clocksyncd/servo"
)

// fakeClock is a recording Clock fake used across the package's tests.
type fakeClock struct {
	freq         float64
	steps        []time.Duration
	freqCalls    []float64
	leapCalls    []int
	failSetFreq  bool
}

func (f *fakeClock) GetFreq() float64 { return f.freq }
func (f *fakeClock) SetFreq(ppb float64) error {
	if f.failSetFreq {
		return errFake
	}
	f.freqCalls = append(f.freqCalls, ppb)
	return nil
}
func (f *fakeClock) Step(delta time.Duration) error {
	f.steps = append(f.steps, delta)
	return nil
}
func (f *fakeClock) SetLeap(direction int) error {
	f.leapCalls = append(f.leapCalls, direction)
	return nil
}

var errFake = fakeErr("fake clock failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

// fakeServo lets tests dictate exactly which state a Sample call returns.
type fakeServo struct {
	nextState servo.State
	nextPPB   float64
	calls     int
}

func (f *fakeServo) Sample(offsetNS int64, tsNS uint64) (float64, servo.State) {
	f.calls++
	return f.nextPPB, f.nextState
}
func (f *fakeServo) Unlock()            {}
func (f *fakeServo) State() servo.State { return f.nextState }

func newTestContext(clk *fakeClock, sv *fakeServo) *Context {
	logger := log.New()
	logger.SetOutput(nopWriter{})
	return &Context{
		Clock:       clk,
		Servo:       sv,
		SourceLabel: "test",
		Log:         logger,
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
