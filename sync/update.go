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

// Update is the update path: leap gate, sync-offset fold-in, servo,
// clock action, stats/log. delayNS is ignored (absent) when hasDelay is
// false. It returns true iff the sample was applied (not dropped by the
// leap gate).
func (c *Context) Update(offsetNS int64, tsNS uint64, delayNS int64, hasDelay bool) bool {
	if c.runLeapGate(offsetNS, tsNS) == leapSuspend {
		return false
	}

	if c.SyncOffsetDirection != 0 {
		offsetNS += c.SyncOffset * int64(time.Second) * int64(c.SyncOffsetDirection)
	}

	ppb, state := c.Servo.Sample(offsetNS, tsNS)

	switch state {
	case servo.StateUnlocked:
		// no clock action
	case servo.StateJump:
		if err := c.Clock.Step(-time.Duration(offsetNS)); err != nil {
			c.Log.Warnf("stepping clock: %v", err)
		}
		if err := c.Clock.SetFreq(-ppb); err != nil {
			c.Log.Warnf("setting frequency: %v", err)
		}
	case servo.StateLocked:
		if err := c.Clock.SetFreq(-ppb); err != nil {
			c.Log.Warnf("setting frequency: %v", err)
		}
	}

	c.recordStats(offsetNS, ppb, delayNS, hasDelay, state)
	return true
}

func (c *Context) recordStats(offsetNS int64, ppb float64, delayNS int64, hasDelay bool, state servo.State) {
	if c.OffsetStats == nil {
		if hasDelay {
			c.Log.Infof("%s offset %10d s%d freq %+7.0f delay %6d", c.SourceLabel, offsetNS, state, ppb, delayNS)
		} else {
			c.Log.Infof("%s offset %10d s%d freq %+7.0f", c.SourceLabel, offsetNS, state, ppb)
		}
		return
	}

	summary, ok := c.OffsetStats.Push(offsetNS, ppb, delayNS, hasDelay)
	if ok {
		c.Log.Infof("%s %s", c.SourceLabel, summary.String())
	}
}
