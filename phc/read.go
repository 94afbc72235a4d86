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
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PHCPPSOffsetLimit is the largest acceptable distance, in nanoseconds,
// between a PPS edge and the PHC's idea of the second boundary before the
// PPS loop considers the two misaligned.
const PHCPPSOffsetLimit = 1e7

// nsPerSec is the number of nanoseconds in a second, used throughout the
// measurement primitives for second-boundary arithmetic.
const nsPerSec = int64(time.Second)

// Sample is a single measurement: offset of the reference clock minus the
// source clock, the observed timestamp, and (when available) the quickest
// bracket interval.
type Sample struct {
	OffsetNS int64
	TSNS     uint64
	DelayNS  int64
	HasDelay bool
}

func clockGettimeNS(clockid int32) (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		return 0, err
	}
	return ts.Sec*nsPerSec + int64(ts.Nsec), nil
}

// ReadPHC performs the dual-clock quickest-read: it brackets n reads of
// source clock src with two reads of reference clock ref, keeps the
// iteration with the smallest bracket interval, and returns the offset in
// the "reference minus source" sign convention.
func ReadPHC(src, ref int32, n int) (Sample, error) {
	if n < 1 {
		n = 1
	}
	var best Sample
	var bestInterval int64 = -1

	for i := 0; i < n; i++ {
		r1, err := clockGettimeNS(ref)
		if err != nil {
			return Sample{}, fmt.Errorf("reading reference clock: %w", err)
		}
		s, err := clockGettimeNS(src)
		if err != nil {
			return Sample{}, fmt.Errorf("reading source clock: %w", err)
		}
		r2, err := clockGettimeNS(ref)
		if err != nil {
			return Sample{}, fmt.Errorf("reading reference clock: %w", err)
		}

		interval := r2 - r1
		if bestInterval == -1 || interval < bestInterval {
			bestInterval = interval
			best = Sample{
				OffsetNS: (r1 - s) + interval/2,
				TSNS:     uint64(r2),
				DelayNS:  interval,
				HasDelay: true,
			}
		}
	}
	return best, nil
}

// SysoffMeasure performs the kernel-assisted quickest-read between the
// system clock and the given PHC device via PTP_SYS_OFFSET_EXTENDED,
// picking the sample with the shortest (sys1, sys2) bracket.
func SysoffMeasure(dev *Device, nsamples uint32) (Sample, error) {
	ext, err := dev.ReadSysoffExtended(nsamples)
	if err != nil {
		return Sample{}, err
	}

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

	sysTS := best[0].Time().Add(bestInterval / 2)
	phcTS := best[1].Time()
	offset := sysTS.Sub(phcTS)

	return Sample{
		OffsetNS: offset.Nanoseconds(),
		TSNS:     uint64(sysTS.UnixNano()),
		DelayNS:  bestInterval.Nanoseconds(),
		HasDelay: true,
	}, nil
}

// ReadPPS blocks on dev (already armed for external timestamps on pinIndex)
// for the next rising-edge event, with a 10s deadline, and returns the
// pulse's timestamp offset normalized into (-5e8, +5e8] ns.
func ReadPPS(dev *Device, pinIndex uint32) (Sample, error) {
	ev, err := dev.ReadEvent(10 * time.Second)
	if err != nil {
		return Sample{}, fmt.Errorf("reading PPS event: %w", err)
	}
	tsNS := ev.T.Sec*nsPerSec + int64(ev.T.NSec)
	offset := tsNS % nsPerSec
	if offset > nsPerSec/2 {
		offset -= nsPerSec
	}
	return Sample{
		OffsetNS: offset,
		TSNS:     uint64(tsNS),
		HasDelay: false,
	}, nil
}
