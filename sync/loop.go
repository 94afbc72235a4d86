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

	"github.com/clocksyncd/clocksyncd/phc"
)

// Mode is the tagged-variant loop mode chosen once at startup (design
// notes: avoid runtime dispatch, pick one mode and stick to it).
type Mode int

// Loop modes, in selection-priority order.
const (
	ModePPS Mode = iota
	ModeSysoff
	ModePHC
)

func (m Mode) String() string {
	switch m {
	case ModePPS:
		return "pps"
	case ModeSysoff:
		return "sysoff"
	default:
		return "phc"
	}
}

// SelectMode implements the loop driver's mode selection:
// PPS if a PPS fd is present, else SYSOFF if the slave is the real-time
// clock and sysoff is supported, else PHC.
func SelectMode(hasPPS, isRTC, sysoffSupported bool) Mode {
	switch {
	case hasPPS:
		return ModePPS
	case isRTC && sysoffSupported:
		return ModeSysoff
	default:
		return ModePHC
	}
}

// PHCLoop runs the rate-limited dual-clock measurement loop: sleep
// 1e6/rate microseconds, read_phc, update. A read error is logged and the
// sample is skipped, not fatal.
func (c *Context) PHCLoop(srcClockID, refClockID int32, n int, rateHz int, stop <-chan struct{}) error {
	interval := time.Duration(1e6/float64(rateHz)) * time.Microsecond
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		time.Sleep(interval)

		sample, err := phc.ReadPHC(srcClockID, refClockID, n)
		if err != nil {
			c.Log.Warnf("phc read failed, skipping sample: %v", err)
			continue
		}
		c.Update(sample.OffsetNS, sample.TSNS, sample.DelayNS, sample.HasDelay)
	}
}

// SysoffLoop runs the rate-limited kernel-assisted measurement loop.
// A sysoff failure is fatal: the loop returns with an error.
func (c *Context) SysoffLoop(dev *phc.Device, nsamples uint32, rateHz int, stop <-chan struct{}) error {
	interval := time.Duration(1e6/float64(rateHz)) * time.Microsecond
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		time.Sleep(interval)

		sample, err := phc.SysoffMeasure(dev, nsamples)
		if err != nil {
			return fmt.Errorf("sysoff measurement failed: %w", err)
		}
		c.Update(sample.OffsetNS, sample.TSNS, sample.DelayNS, sample.HasDelay)
	}
}

// PPSLoop runs the untimed PPS-edge-driven loop. It owns the PPS device's
// external-timestamp arming for its entire lifetime: it enables timestamps
// on pinIndex before reading any edge and disarms and closes the device on
// every return path, fatal or not. If companionRefID is non-nil, each edge
// is also cross-checked against a read of the companion master PHC to
// realign the integer-second part; misaligned samples are logged and
// dropped, not fatal. A failed read of the companion PHC is fatal, since
// without it the edge's second boundary cannot be trusted.
func (c *Context) PPSLoop(dev *phc.Device, pinIndex uint32, companionSrcID, companionRefID *int32, n int, stop <-chan struct{}) error {
	defer dev.Close()
	if err := dev.EnableExtTimestamps(pinIndex); err != nil {
		return fmt.Errorf("arming PPS external timestamps: %w", err)
	}
	defer dev.DisableExtTimestamps(pinIndex)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		pps, err := phc.ReadPPS(dev, pinIndex)
		if err != nil {
			return fmt.Errorf("pps read failed: %w", err)
		}

		if companionSrcID == nil {
			c.Update(pps.OffsetNS, pps.TSNS, 0, false)
			continue
		}

		phcSample, err := phc.ReadPHC(*companionSrcID, *companionRefID, n)
		if err != nil {
			return fmt.Errorf("phc read failed in pps-with-phc path: %w", err)
		}

		phcTSPrime := int64(phcSample.TSNS) - phcSample.OffsetNS
		mod := phcTSPrime % int64(time.Second)
		if mod < 0 {
			mod += int64(time.Second)
		}
		if mod > int64(phc.PHCPPSOffsetLimit) {
			c.Log.Warnf("pps not aligned with phc: %d ns from second boundary, dropping sample", mod)
			continue
		}

		truncated := phcTSPrime - mod
		ppsOffset := int64(pps.TSNS) - truncated
		c.Update(ppsOffset, pps.TSNS, 0, false)
	}
}
