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

// Package sync is the synchronization engine: it selects a measurement
// loop, runs the update path (leap gate, sync-offset fold-in, servo,
// clock action, stats) on every sample, and owns the clock context that
// ties the clock capability, servo, leap tracker and management client
// together for the life of the process.
package sync

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/clocksyncd/clocksyncd/leap"
	"github.com/clocksyncd/clocksyncd/pmc"
	"github.com/clocksyncd/clocksyncd/servo"
	"github.com/clocksyncd/clocksyncd/stats"
)

// Clock is the capability contract the engine steers: get/set frequency,
// step, and arm a kernel leap second. clockadj.Clock satisfies this.
type Clock interface {
	GetFreq() float64
	SetFreq(ppb float64) error
	Step(delta time.Duration) error
	SetLeap(direction int) error
}

// Servo converts a measured offset into a frequency correction and a
// tri-state action. servo.PIServo satisfies this.
type Servo interface {
	Sample(offsetNS int64, tsNS uint64) (ppb float64, state servo.State)
	Unlock()
	State() servo.State
}

// PMCUpdateInterval is the minimum spacing, in nanoseconds, between
// management-channel polls performed by the leap tracker.
const PMCUpdateInterval = 60 * 1e9

// Context is the clock context: the one process-lifetime instance that
// the update path and loop drivers operate on.
type Context struct {
	Clock       Clock
	IsRTC       bool // true iff the slave clock is CLOCK_REALTIME
	MasterIsRTC bool // true iff a companion master clock is CLOCK_REALTIME

	Servo      Servo
	SourceLabel string

	OffsetStats *stats.Tracker // nil iff stats_max_count == 0

	SyncOffset          int64 // seconds
	SyncOffsetDirection int   // -1, 0, +1

	Leap       int // pending leap direction from management data
	LeapSet    int // leap direction currently armed in the kernel
	KernelLeap bool

	PMC             *pmc.Client
	PMCWaitSync     bool
	PMCGetUTCOffset bool
	pmcLastUpdate   uint64
	pmcHasUpdated   bool

	LeapTable *leap.Table

	Log *log.Logger
}

// NewContext builds a Context, reading the slave clock's free-running
// frequency once and re-asserting it before constructing the servo so
// the very first Sample() call starts from a known frequency.
func NewContext(clk Clock, sourceLabel string, cfg *servo.Config) (*Context, error) {
	freq := clk.GetFreq()
	if err := clk.SetFreq(freq); err != nil {
		return nil, fmt.Errorf("re-asserting initial frequency: %w", err)
	}
	return &Context{
		Clock:       clk,
		Servo:       servo.NewPIServo(cfg, -freq),
		SourceLabel: sourceLabel,
		Log:         log.StandardLogger(),
	}, nil
}
