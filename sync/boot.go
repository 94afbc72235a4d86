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
	"fmt"
	"time"
)

// DeriveSyncOffsetDirection implements the boot sequence's direction
// table: +1 if only the master is the real-time clock, -1 if only
// the slave is, 0 otherwise (both or neither).
func DeriveSyncOffsetDirection(slaveIsRTC, masterIsRTC bool) int {
	switch {
	case !slaveIsRTC && masterIsRTC:
		return 1
	case slaveIsRTC && !masterIsRTC:
		return -1
	default:
		return 0
	}
}

// ValidatePreconditions checks that a PPS configuration requires the slave
// to be CLOCK_REALTIME, and that at least one of {PPS device, master clock}
// is present.
func ValidatePreconditions(hasPPS, slaveIsRTC, hasMaster bool) error {
	if hasPPS && !slaveIsRTC {
		return fmt.Errorf("a PPS source requires the slave clock to be CLOCK_REALTIME")
	}
	if !hasPPS && !hasMaster {
		return fmt.Errorf("need at least one of a PPS device or a master clock")
	}
	return nil
}

// WaitSync blocks, polling the management channel with a PMCPollInterval
// timeout, until a full management cycle reports "complete". Only this
// initial bootstrap wait uses a non-zero poll timeout; the steady-state
// leap tracker polls non-blocking.
func (c *Context) WaitSync() error {
	if c.PMC == nil {
		return fmt.Errorf("wait_sync requested but no management client is open")
	}
	for {
		result, err := c.PMC.Cycle(int(PMCPollInterval.Milliseconds()), c.PMCWaitSync, c.PMCGetUTCOffset)
		if err != nil {
			return fmt.Errorf("management cycle during bootstrap: %w", err)
		}
		if result.Complete {
			return nil
		}
		if result.TimePropertiesSeen {
			c.SyncOffset = int64(result.CurrentUTCOffset)
			c.Leap = result.Leap
		}
	}
}

// Boot finishes the boot sequence once WaitSync (if requested) has
// run: it derives sync_offset_direction from which clock is the
// real-time clock, honors a user-forced -O offset, and reports whether
// the management client may now be closed.
func (c *Context) Boot(forcedOffset *int64) (closeManagement bool) {
	if forcedOffset != nil {
		c.SyncOffsetDirection = -1
		c.SyncOffset = *forcedOffset
		return true
	}

	c.SyncOffsetDirection = DeriveSyncOffsetDirection(c.IsRTC, c.MasterIsRTC)
	return c.SyncOffsetDirection == 0
}

// PMCPollInterval is the poll timeout WaitSync gives each management
// cycle while blocked waiting for the bootstrap PORT_DATA_SET/
// TIME_PROPERTIES_DATA_SET exchange to complete.
const PMCPollInterval = time.Second
