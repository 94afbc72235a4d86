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

	"github.com/clocksyncd/clocksyncd/servo"
)

// leapOutcome is what the leap gate decided about the current sample.
type leapOutcome int

const (
	leapProceed leapOutcome = iota
	leapSuspend
)

// runLeapGate is the leap/UTC tracker's per-sample algorithm. It polls the
// management channel at most once every PMCUpdateInterval, keeps
// SyncOffset and Leap/LeapSet current, and suspends samples that fall in
// the ambiguous second before a scheduled leap boundary.
func (c *Context) runLeapGate(offsetNS int64, tsNS uint64) leapOutcome {
	// Step 1: poll the management channel, wrap-safe: a plain subtraction
	// of two uint64 timestamps is compared as a signed duration so a
	// wrapped tsNS is still handled correctly.
	if c.PMC != nil {
		elapsed := int64(tsNS - c.pmcLastUpdate)
		if !c.pmcHasUpdated || elapsed >= PMCUpdateInterval {
			if res, err := c.PMC.Cycle(0, c.PMCWaitSync, c.PMCGetUTCOffset); err == nil {
				c.pmcLastUpdate = tsNS
				c.pmcHasUpdated = true
				if res.TimePropertiesSeen {
					c.SyncOffset = int64(res.CurrentUTCOffset)
					c.Leap = res.Leap
				}
			} else {
				c.Log.Warnf("management cycle failed: %v", err)
			}
		}
	}

	// Step 2.
	if c.Leap == 0 && c.LeapSet == 0 {
		return leapProceed
	}

	// Step 3: choose the reference timestamp for leap classification.
	refTS := tsNS
	if !c.IsRTC {
		refTS = uint64(time.Now().UnixNano())
	} else if c.Servo.State() == servo.StateUnlocked {
		refTS = uint64(int64(tsNS) - offsetNS - c.SyncOffset*int64(time.Second)*int64(c.SyncOffsetDirection))
	}

	// Step 4: ambiguous-second gate.
	if c.LeapTable != nil && c.LeapTable.IsAmbiguous(time.Unix(0, int64(refTS)).UTC()) {
		c.Log.Warn("suspending updates: inside the ambiguous second before a scheduled leap")
		return leapSuspend
	}

	// Step 5: derive the correct armed direction for the current instant.
	newDirection := c.LeapSet
	if c.Leap != 0 {
		newDirection = c.Leap
	} else if c.LeapSet != 0 {
		// a previously armed leap has now passed: consume it.
		c.SyncOffset -= int64(c.LeapSet)
		newDirection = 0
		c.Leap = 0
	}

	// Step 6: apply the change. When the slave is the real-time clock and
	// kernel leap arming is enabled, arm it in the kernel; otherwise fold
	// the second directly into SyncOffset, which Update folds into every
	// sample's offset.
	if newDirection != c.LeapSet {
		if c.IsRTC && c.KernelLeap {
			if err := c.Clock.SetLeap(newDirection); err != nil {
				c.Log.Warnf("arming kernel leap %d: %v", newDirection, err)
			} else {
				c.LeapSet = newDirection
			}
		} else {
			c.SyncOffset += int64(newDirection - c.LeapSet)
			c.LeapSet = newDirection
		}
	}

	return leapProceed
}
